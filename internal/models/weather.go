package models

import "time"

// Location identifies the place a weather query resolved to.
type Location struct {
	Name    string `json:"name"`
	Region  string `json:"region"`
	Country string `json:"country"`
}

// Condition is the textual weather condition and its icon URL.
type Condition struct {
	Text string `json:"text"`
	Icon string `json:"icon"`
}

// Current holds the conditions observed at query time.
type Current struct {
	TempC      float64   `json:"tempC"`
	Condition  Condition `json:"condition"`
	WindKph    float64   `json:"windKph"`
	Humidity   int       `json:"humidity"`
	PressureMb float64   `json:"pressureMb"`
}

// Astro is the moon data for one forecast day.
type Astro struct {
	MoonPhase        string `json:"moonPhase"`
	MoonIllumination int    `json:"moonIllumination"`
	Moonrise         string `json:"moonrise"`
	Moonset          string `json:"moonset"`
}

// WeatherSnapshot is one forecast response: current conditions plus the
// astronomy of the first forecast day.
type WeatherSnapshot struct {
	Location  Location  `json:"location"`
	Current   Current   `json:"current"`
	Astro     *Astro    `json:"astro,omitempty"`
	Date      string    `json:"date,omitempty"` // YYYY-MM-DD of the forecast day
	FetchedAt time.Time `json:"fetchedAt"`
}

// AstronomySnapshot is the astronomy endpoint response for a date.
type AstronomySnapshot struct {
	Location  Location  `json:"location"`
	Astro     Astro     `json:"astro"`
	Date      string    `json:"date"`
	FetchedAt time.Time `json:"fetchedAt"`
}
