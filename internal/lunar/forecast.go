package lunar

import "strings"

// Forecast classifications returned by Classify.
const (
	ForecastExcellent = "Excellent for Fishing"
	ForecastRegular   = "Regular"
)

// excellentMarkers are the new and full moon names as reported by the
// weather API, in English and Portuguese.
var excellentMarkers = []string{
	"New Moon",
	"Full Moon",
	"Lua Nova",
	"Lua Cheia",
}

// Classify rates a moon phase label reported by the weather API.
//
// The result is independent of Phase.Quality; the API label and the local
// index can disagree on the quarter and gibbous phases.
func Classify(moonPhaseLabel string) string {
	for _, marker := range excellentMarkers {
		if strings.Contains(moonPhaseLabel, marker) {
			return ForecastExcellent
		}
	}
	return ForecastRegular
}
