// Package lunar derives moon phase and fishing guidance from calendar dates
// and from the moon phase labels reported by the weather API.
package lunar

import (
	"math"
	"time"
)

// synodicMonth is the mean length in days of one lunation.
const synodicMonth = 29.5305882

// Quality labels shown next to a phase.
const (
	QualityExcellent = "Excelente"
	QualityGood      = "Boa"
	QualityModerate  = "Moderada"
)

const (
	adviceFullMoon = "Período excelente para pesca! Lua cheia aumenta atividade dos peixes."
	adviceNewMoon  = "Período bom para pesca. Lua nova favorece peixes de fundo."
	adviceModerate = "Período moderado. Melhor pescar ao amanhecer ou entardecer."
)

// Phase is the moon phase for a calendar date.
type Phase struct {
	Index   int    `json:"index"`
	Key     string `json:"key"`
	Name    string `json:"name"`
	Quality string `json:"quality"`
	Advice  string `json:"advice"`
}

var phaseKeys = [8]string{
	"new_moon",
	"waxing_crescent",
	"first_quarter",
	"waxing_gibbous",
	"full_moon",
	"waning_gibbous",
	"last_quarter",
	"waning_crescent",
}

var phaseNames = [8]string{
	"Lua Nova",
	"Crescente",
	"Quarto Crescente",
	"Crescente Gibosa",
	"Lua Cheia",
	"Minguante Gibosa",
	"Quarto Minguante",
	"Minguante",
}

var phaseQuality = [8]string{
	QualityGood,
	QualityModerate,
	QualityGood,
	QualityExcellent,
	QualityExcellent,
	QualityExcellent,
	QualityGood,
	QualityModerate,
}

// PhaseOf returns the phase for the calendar day of t. Only the year, month
// and day fields are used; the time of day and location are ignored.
func PhaseOf(t time.Time) Phase {
	return phaseFromIndex(PhaseIndex(t.Year(), t.Month(), t.Day()))
}

// PhaseIndex buckets the lunation position of a date into 0..7, 0 being the
// new moon and 4 the full moon. It uses the low-precision formula
// jd = 365.25*y + 30.6*(m+1) + d - 694039.09 with Jan/Feb counted as months
// 13/14 of the previous year.
func PhaseIndex(year int, month time.Month, day int) int {
	y := year
	m := int(month)
	if m < 3 {
		y--
		m += 12
	}
	m++

	c := 365.25 * float64(y)
	e := 30.6 * float64(m)
	jd := c + e + float64(day) - 694039.09
	jd /= synodicMonth

	frac := jd - math.Trunc(jd)
	// Dates before the formula's epoch produce a negative fraction.
	if frac < 0 {
		frac++
	}

	idx := int(math.Floor(frac*8 + 0.5))
	if idx >= 8 {
		idx = 0
	}
	return idx
}

func phaseFromIndex(idx int) Phase {
	return Phase{
		Index:   idx,
		Key:     phaseKeys[idx],
		Name:    phaseNames[idx],
		Quality: phaseQuality[idx],
		Advice:  adviceFor(idx),
	}
}

func adviceFor(idx int) string {
	switch {
	case idx >= 3 && idx <= 5:
		return adviceFullMoon
	case idx == 0:
		return adviceNewMoon
	default:
		return adviceModerate
	}
}

// CalendarDay pairs a date with its phase.
type CalendarDay struct {
	Date  string `json:"date"`
	Phase Phase  `json:"phase"`
}

// Calendar returns the phase of every day in the given month.
func Calendar(year int, month time.Month) []CalendarDay {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	days := first.AddDate(0, 1, -1).Day()
	out := make([]CalendarDay, 0, days)
	for d := 1; d <= days; d++ {
		day := time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
		out = append(out, CalendarDay{
			Date:  day.Format(time.DateOnly),
			Phase: PhaseOf(day),
		})
	}
	return out
}
