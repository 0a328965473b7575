package openweather

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sweetpotato0/agri-advisor/environment"
)

const defaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"

// Config holds OpenWeatherMap settings.
type Config struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// Source reads current conditions from OpenWeatherMap.
type Source struct {
	config Config
}

// New creates a source. It fails every call when no key is configured.
func New(cfg Config) *Source {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Source{config: cfg}
}

// Name implements environment.WeatherSource
func (s *Source) Name() string { return "openweather" }

type response struct {
	Main struct {
		Temp     *float64 `json:"temp"`
		Humidity float64  `json:"humidity"`
	} `json:"main"`
	Rain struct {
		OneHour   *float64 `json:"1h"`
		ThreeHour *float64 `json:"3h"`
	} `json:"rain"`
	Weather []struct {
		ID          int    `json:"id"`
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
}

// FetchWeather implements environment.WeatherSource
func (s *Source) FetchWeather(ctx context.Context, at environment.Coordinates) (environment.Weather, error) {
	if s.config.APIKey == "" {
		return environment.Weather{}, errors.New("openweather: API key not configured")
	}
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(at.Latitude, 'f', 5, 64))
	q.Set("lon", strconv.FormatFloat(at.Longitude, 'f', 5, 64))
	q.Set("appid", s.config.APIKey)
	q.Set("units", "metric")

	var resp response
	if err := environment.GetJSON(ctx, s.config.Client, s.config.BaseURL, q, nil, &resp); err != nil {
		return environment.Weather{}, fmt.Errorf("openweather: %w", err)
	}
	if resp.Main.Temp == nil {
		return environment.Weather{}, errors.New("openweather: response has no temperature")
	}

	w := environment.Weather{
		TemperatureC: *resp.Main.Temp,
		Humidity:     resp.Main.Humidity,
	}
	switch {
	case resp.Rain.OneHour != nil:
		w.RainfallMM = environment.Float(*resp.Rain.OneHour)
	case resp.Rain.ThreeHour != nil:
		w.RainfallMM = environment.Float(*resp.Rain.ThreeHour)
	default:
		w.RainfallMM = environment.Float(0)
	}
	if len(resp.Weather) > 0 {
		w.WeatherAlert = alertFor(resp.Weather[0].ID, resp.Weather[0].Description, w.Rainfall())
	}
	return w, nil
}

// alertFor maps OpenWeatherMap condition codes: 2xx thunderstorm, 502-504 and
// 522 heavy rain, other 5xx rain.
func alertFor(id int, description string, rainMM float64) string {
	switch {
	case id >= 200 && id < 300:
		return "Thunderstorm warning: heavy rain expected"
	case id == 502 || id == 503 || id == 504 || id == 522 || rainMM >= environment.HeavyRainMM:
		return "Heavy rain alert"
	case id >= 500 && id < 600:
		return "Rain expected: " + description
	default:
		return ""
	}
}
