package service

import (
	"time"

	"github.com/kjstillabower/lunar-fishing-service/internal/lunar"
	"github.com/kjstillabower/lunar-fishing-service/internal/models"
)

// Forecast is a weather snapshot with the fishing rating of the reported
// moon phase and the locally computed phase for the same day.
type Forecast struct {
	models.WeatherSnapshot
	Classification string      `json:"classification,omitempty"`
	MoonPhase      lunar.Phase `json:"moonPhase"`
}

// DecorateForecast attaches lunar.Classify for the snapshot's astro label and
// lunar.PhaseOf for its forecast day. fallback is used when the snapshot
// carries no parseable date.
func DecorateForecast(snap models.WeatherSnapshot, fallback time.Time) Forecast {
	day := fallback
	if snap.Date != "" {
		if d, err := time.Parse(time.DateOnly, snap.Date); err == nil {
			day = d
		}
	}
	f := Forecast{
		WeatherSnapshot: snap,
		MoonPhase:       lunar.PhaseOf(day),
	}
	if snap.Astro != nil {
		f.Classification = lunar.Classify(snap.Astro.MoonPhase)
	}
	return f
}
