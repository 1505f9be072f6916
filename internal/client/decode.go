package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kjstillabower/lunar-fishing-service/internal/models"
)

type locationJSON struct {
	Name    string `json:"name"`
	Region  string `json:"region"`
	Country string `json:"country"`
}

type conditionJSON struct {
	Text string `json:"text"`
	Icon string `json:"icon"`
}

type currentJSON struct {
	TempC      *float64       `json:"temp_c"`
	Condition  *conditionJSON `json:"condition"`
	WindKph    float64        `json:"wind_kph"`
	Humidity   int            `json:"humidity"`
	PressureMb float64        `json:"pressure_mb"`
}

type astroJSON struct {
	MoonPhase        string  `json:"moon_phase"`
	MoonIllumination flexInt `json:"moon_illumination"`
	Moonrise         string  `json:"moonrise"`
	Moonset          string  `json:"moonset"`
}

type forecastResponse struct {
	Location *locationJSON `json:"location"`
	Current  *currentJSON  `json:"current"`
	Forecast *struct {
		Forecastday []struct {
			Date  string     `json:"date"`
			Astro *astroJSON `json:"astro"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

type astronomyResponse struct {
	Location  *locationJSON `json:"location"`
	Astronomy *struct {
		Astro *astroJSON `json:"astro"`
	} `json:"astronomy"`
}

// decodeForecast validates the forecast payload. Location and current
// conditions are required; the forecast day (and its astro block) is optional.
func decodeForecast(body []byte) (models.WeatherSnapshot, error) {
	var raw forecastResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return models.WeatherSnapshot{}, &ParseError{Field: "$", Err: err}
	}
	if raw.Location == nil || raw.Location.Name == "" {
		return models.WeatherSnapshot{}, &ParseError{Field: "location.name"}
	}
	if raw.Current == nil {
		return models.WeatherSnapshot{}, &ParseError{Field: "current"}
	}
	if raw.Current.TempC == nil {
		return models.WeatherSnapshot{}, &ParseError{Field: "current.temp_c"}
	}
	if raw.Current.Condition == nil {
		return models.WeatherSnapshot{}, &ParseError{Field: "current.condition"}
	}

	snap := models.WeatherSnapshot{
		Location: toLocation(raw.Location),
		Current: models.Current{
			TempC:      *raw.Current.TempC,
			Condition:  models.Condition{Text: raw.Current.Condition.Text, Icon: raw.Current.Condition.Icon},
			WindKph:    raw.Current.WindKph,
			Humidity:   raw.Current.Humidity,
			PressureMb: raw.Current.PressureMb,
		},
		FetchedAt: time.Now().UTC(),
	}
	if raw.Forecast != nil && len(raw.Forecast.Forecastday) > 0 {
		day := raw.Forecast.Forecastday[0]
		snap.Date = day.Date
		if day.Astro != nil {
			astro := toAstro(day.Astro)
			snap.Astro = &astro
		}
	}
	return snap, nil
}

func decodeAstronomy(body []byte) (models.AstronomySnapshot, error) {
	var raw astronomyResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return models.AstronomySnapshot{}, &ParseError{Field: "$", Err: err}
	}
	if raw.Location == nil || raw.Location.Name == "" {
		return models.AstronomySnapshot{}, &ParseError{Field: "location.name"}
	}
	if raw.Astronomy == nil || raw.Astronomy.Astro == nil {
		return models.AstronomySnapshot{}, &ParseError{Field: "astronomy.astro"}
	}
	if raw.Astronomy.Astro.MoonPhase == "" {
		return models.AstronomySnapshot{}, &ParseError{Field: "astronomy.astro.moon_phase", Err: fmt.Errorf("empty")}
	}
	return models.AstronomySnapshot{
		Location:  toLocation(raw.Location),
		Astro:     toAstro(raw.Astronomy.Astro),
		FetchedAt: time.Now().UTC(),
	}, nil
}

func toLocation(l *locationJSON) models.Location {
	return models.Location{Name: l.Name, Region: l.Region, Country: l.Country}
}

func toAstro(a *astroJSON) models.Astro {
	return models.Astro{
		MoonPhase:        a.MoonPhase,
		MoonIllumination: int(a.MoonIllumination),
		Moonrise:         a.Moonrise,
		Moonset:          a.Moonset,
	}
}
