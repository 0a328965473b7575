package prompt

import (
	"github.com/sweetpotato0/agri-advisor/environment"
)

// Environment renders an environmental context as the bullet block the
// prompts expect. Unknown readings are spelled out rather than omitted.
func Environment(env environment.Context) string {
	b := NewBuilder()
	if env.Place != nil {
		b.AddFormat("- Location: %s\n", env.Place.Name())
	} else if env.Location != nil {
		b.AddFormat("- Location: %.4f, %.4f\n", env.Location.Latitude, env.Location.Longitude)
	} else {
		b.AddLine("- Location: not shared")
	}

	w := env.Weather
	b.AddFormat("- Temperature: %.1f°C\n", w.TemperatureC)
	b.AddFormat("- Humidity: %.0f%%\n", w.Humidity)
	if w.RainfallMM != nil {
		b.AddFormat("- Rainfall: %.1f mm\n", *w.RainfallMM)
	} else {
		b.AddLine("- Rainfall: unknown")
	}
	alert := w.WeatherAlert
	if alert == "" {
		alert = "None"
	}
	b.AddFormat("- Weather alert: %s\n", alert)

	s := env.Soil
	soilType := s.SoilType
	if soilType == "" {
		soilType = "unknown"
	}
	b.AddFormat("- Soil type: %s\n", soilType)
	if s.SoilPH != nil {
		b.AddFormat("- Soil pH: %.1f\n", *s.SoilPH)
	} else {
		b.AddLine("- Soil pH: unknown")
	}
	if s.SoilMoisture != nil {
		b.AddFormat("- Soil moisture: %.0f%%\n", *s.SoilMoisture)
	} else {
		b.AddLine("- Soil moisture: unknown")
	}
	if s.Composition != "" {
		b.AddFormat("- Composition: %s\n", s.Composition)
	}
	if env.Sources.Weather == environment.OriginSynthetic || env.Sources.Soil == environment.OriginSynthetic {
		b.AddLine("- Note: some readings are estimates because live data was unavailable")
	}
	return b.Build()
}
