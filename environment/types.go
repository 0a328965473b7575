package environment

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Coordinates is a GPS fix.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks the coordinate ranges.
func (c Coordinates) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude %.4f out of range", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude %.4f out of range", c.Longitude)
	}
	return nil
}

// Weather is the current weather at a location.
type Weather struct {
	TemperatureC float64  `json:"temperature_c"`
	Humidity     float64  `json:"humidity"`
	RainfallMM   *float64 `json:"rainfall_mm,omitempty"`
	WeatherAlert string   `json:"weather_alert,omitempty"`
}

// Rainfall returns the rainfall amount, treating unknown as zero.
func (w Weather) Rainfall() float64 {
	if w.RainfallMM == nil {
		return 0
	}
	return *w.RainfallMM
}

// Soil is the topsoil reading at a location.
type Soil struct {
	SoilType     string   `json:"soil_type,omitempty"`
	SoilPH       *float64 `json:"soil_ph,omitempty"`
	SoilMoisture *float64 `json:"soil_moisture,omitempty"`
	Composition  string   `json:"composition,omitempty"`
}

// PH returns the pH or def when unknown.
func (s Soil) PH(def float64) float64 {
	if s.SoilPH == nil {
		return def
	}
	return *s.SoilPH
}

// Moisture returns the moisture percentage or def when unknown.
func (s Soil) Moisture(def float64) float64 {
	if s.SoilMoisture == nil {
		return def
	}
	return *s.SoilMoisture
}

// Place is a reverse-geocoded administrative location.
type Place struct {
	District string `json:"district"`
	State    string `json:"state"`
}

// Name renders "district, state".
func (p Place) Name() string {
	return p.District + ", " + p.State
}

// Origin records where a sub-field of the context came from.
type Origin string

const (
	OriginLive      Origin = "live"
	OriginSynthetic Origin = "synthetic"
)

// Sources names the origin of each sub-field.
type Sources struct {
	Weather     Origin `json:"weather"`
	WeatherName string `json:"weather_source,omitempty"`
	Soil        Origin `json:"soil"`
	SoilName    string `json:"soil_source,omitempty"`
}

// Context is the environmental grounding for one farmer session. Location is
// nil when no GPS fix was supplied.
type Context struct {
	Location  *Coordinates `json:"location,omitempty"`
	Place     *Place       `json:"place,omitempty"`
	Weather   Weather      `json:"weather"`
	Soil      Soil         `json:"soil"`
	Sources   Sources      `json:"sources"`
	Timestamp time.Time    `json:"timestamp"`
}

// HeavyRain reports whether the context forecasts or records heavy rain at
// or above thresholdMM, or carries a heavy-rain alert.
func (c Context) HeavyRain(thresholdMM float64) bool {
	if IsHeavyRainAlert(c.Weather.WeatherAlert) {
		return true
	}
	return thresholdMM > 0 && c.Weather.RainfallMM != nil && *c.Weather.RainfallMM >= thresholdMM
}

// IsHeavyRainAlert reports whether an alert text describes heavy precipitation.
func IsHeavyRainAlert(alert string) bool {
	a := strings.ToLower(alert)
	if a == "" || a == "none" {
		return false
	}
	for _, kw := range []string{"heavy rain", "heavy rainfall", "thunderstorm", "downpour", "flood", "storm", "cyclone"} {
		if strings.Contains(a, kw) {
			return true
		}
	}
	return false
}

// WeatherSource fetches current weather for a coordinate.
type WeatherSource interface {
	Name() string
	FetchWeather(ctx context.Context, at Coordinates) (Weather, error)
}

// SoilSource fetches a soil reading for a coordinate.
type SoilSource interface {
	Name() string
	FetchSoil(ctx context.Context, at Coordinates) (Soil, error)
}

// Geocoder resolves a coordinate into an administrative place.
type Geocoder interface {
	Reverse(ctx context.Context, at Coordinates) (Place, error)
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
