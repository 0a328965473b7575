package openmeteo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sweetpotato0/agri-advisor/environment"
)

const defaultBaseURL = "https://api.open-meteo.com/v1/forecast"

// Config holds Open-Meteo settings. The service needs no key.
type Config struct {
	BaseURL string
	Client  *http.Client
}

// Source reads current weather and today's precipitation from Open-Meteo.
type Source struct {
	config Config
}

// New creates an Open-Meteo source.
func New(cfg Config) *Source {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Source{config: cfg}
}

// Name implements environment.WeatherSource
func (s *Source) Name() string { return "open-meteo" }

type response struct {
	CurrentWeather *struct {
		Time        string  `json:"time"`
		Temperature float64 `json:"temperature"`
		WeatherCode int     `json:"weathercode"`
	} `json:"current_weather"`
	Hourly struct {
		Time     []string   `json:"time"`
		Humidity []*float64 `json:"relative_humidity_2m"`
	} `json:"hourly"`
	Daily struct {
		Precipitation []*float64 `json:"precipitation_sum"`
	} `json:"daily"`
}

// FetchWeather implements environment.WeatherSource
func (s *Source) FetchWeather(ctx context.Context, at environment.Coordinates) (environment.Weather, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(at.Latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(at.Longitude, 'f', 4, 64))
	q.Set("current_weather", "true")
	q.Set("hourly", "relative_humidity_2m")
	q.Set("daily", "precipitation_sum")
	q.Set("forecast_days", "1")
	q.Set("timezone", "auto")

	var resp response
	if err := environment.GetJSON(ctx, s.config.Client, s.config.BaseURL, q, nil, &resp); err != nil {
		return environment.Weather{}, fmt.Errorf("open-meteo: %w", err)
	}
	if resp.CurrentWeather == nil {
		return environment.Weather{}, errors.New("open-meteo: response has no current_weather")
	}

	rain := 0.0
	if len(resp.Daily.Precipitation) > 0 && resp.Daily.Precipitation[0] != nil {
		rain = *resp.Daily.Precipitation[0]
	}
	return environment.Weather{
		TemperatureC: resp.CurrentWeather.Temperature,
		Humidity:     humidityAt(resp.Hourly.Time, resp.Hourly.Humidity, resp.CurrentWeather.Time),
		RainfallMM:   environment.Float(rain),
		WeatherAlert: environment.AlertFor(resp.CurrentWeather.WeatherCode, rain),
	}, nil
}

// humidityAt picks the hourly humidity matching the current observation time,
// falling back to the first known value.
func humidityAt(times []string, values []*float64, now string) float64 {
	for i, ts := range times {
		if ts == now && i < len(values) && values[i] != nil {
			return *values[i]
		}
	}
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return 0
}
