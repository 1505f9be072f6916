package lunar

import (
	"testing"
	"time"
)

func TestPhaseOf_ReferenceDates(t *testing.T) {
	tests := []struct {
		name      string
		date      time.Time
		wantIndex int
		wantName  string
		wantQual  string
	}{
		{"new moon 2024-01-11", time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC), 0, "Lua Nova", QualityGood},
		{"full moon 2024-01-25", time.Date(2024, 1, 25, 0, 0, 0, 0, time.UTC), 4, "Lua Cheia", QualityExcellent},
		{"regression 2000-01-01", time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), 7, "Minguante", QualityModerate},
		{"first quarter 2024-01-18", time.Date(2024, 1, 18, 0, 0, 0, 0, time.UTC), 2, "Quarto Crescente", QualityGood},
		{"last quarter 2024-03-03", time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC), 6, "Quarto Minguante", QualityGood},
		{"new moon 2025-10-21", time.Date(2025, 10, 21, 0, 0, 0, 0, time.UTC), 0, "Lua Nova", QualityGood},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PhaseOf(tt.date)
			if got.Index != tt.wantIndex {
				t.Errorf("PhaseOf(%s).Index = %d, want %d", tt.date.Format(time.DateOnly), got.Index, tt.wantIndex)
			}
			if got.Name != tt.wantName {
				t.Errorf("PhaseOf(%s).Name = %q, want %q", tt.date.Format(time.DateOnly), got.Name, tt.wantName)
			}
			if got.Quality != tt.wantQual {
				t.Errorf("PhaseOf(%s).Quality = %q, want %q", tt.date.Format(time.DateOnly), got.Quality, tt.wantQual)
			}
		})
	}
}

func TestPhaseOf_IgnoresTimeOfDay(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	morning := time.Date(2024, 1, 25, 0, 1, 0, 0, loc)
	night := time.Date(2024, 1, 25, 23, 59, 0, 0, loc)
	if PhaseOf(morning) != PhaseOf(night) {
		t.Errorf("PhaseOf differs within the same calendar day: %+v vs %+v", PhaseOf(morning), PhaseOf(night))
	}
}

func TestPhaseIndex_AlwaysInRange(t *testing.T) {
	start := time.Date(1800, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2200, 1, 1, 0, 0, 0, 0, time.UTC)
	for d := start; d.Before(end); d = d.AddDate(0, 0, 7) {
		p := PhaseOf(d)
		if p.Index < 0 || p.Index > 7 {
			t.Fatalf("PhaseOf(%s).Index = %d, out of range", d.Format(time.DateOnly), p.Index)
		}
		if p.Name == "" || p.Quality == "" || p.Advice == "" || p.Key == "" {
			t.Fatalf("PhaseOf(%s) has empty labels: %+v", d.Format(time.DateOnly), p)
		}
	}
}

func TestPhaseIndex_PreEpochDate(t *testing.T) {
	// The raw fraction for 1850-06-01 is about -0.31; normalized it is 0.69.
	if got := PhaseIndex(1850, time.June, 1); got != 6 {
		t.Errorf("PhaseIndex(1850-06-01) = %d, want 6", got)
	}
}

func TestAdviceFor(t *testing.T) {
	for idx := 0; idx < 8; idx++ {
		got := adviceFor(idx)
		var want string
		switch idx {
		case 3, 4, 5:
			want = adviceFullMoon
		case 0:
			want = adviceNewMoon
		default:
			want = adviceModerate
		}
		if got != want {
			t.Errorf("adviceFor(%d) = %q, want %q", idx, got, want)
		}
	}
}

func TestCalendar(t *testing.T) {
	days := Calendar(2024, time.February)
	if len(days) != 29 {
		t.Fatalf("Calendar(2024, Feb) len = %d, want 29", len(days))
	}
	if days[0].Date != "2024-02-01" {
		t.Errorf("first day = %q, want 2024-02-01", days[0].Date)
	}
	if days[8].Phase.Index != 0 {
		t.Errorf("2024-02-09 index = %d, want 0", days[8].Phase.Index)
	}
}
