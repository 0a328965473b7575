package ambee

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sweetpotato0/agri-advisor/environment"
)

const defaultBaseURL = "https://api.ambeedata.com/soil/latest/by-lat-lng"

// ErrNoData is returned when Ambee rejects the key or has no reading for
// the location.
var ErrNoData = errors.New("ambee: no soil data")

// Config holds Ambee settings.
type Config struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// Source reads soil type, pH and moisture from Ambee.
type Source struct {
	config Config
}

// New creates an Ambee source.
func New(cfg Config) *Source {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Source{config: cfg}
}

// Name implements environment.SoilSource
func (s *Source) Name() string { return "ambee" }

// FetchSoil implements environment.SoilSource
func (s *Source) FetchSoil(ctx context.Context, at environment.Coordinates) (environment.Soil, error) {
	if s.config.APIKey == "" {
		return environment.Soil{}, errors.New("ambee: API key not configured")
	}
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(at.Latitude, 'f', 5, 64))
	q.Set("lng", strconv.FormatFloat(at.Longitude, 'f', 5, 64))
	header := http.Header{}
	header.Set("x-api-key", s.config.APIKey)
	header.Set("Content-Type", "application/json")

	var raw map[string]any
	if err := environment.GetJSON(ctx, s.config.Client, s.config.BaseURL, q, header, &raw); err != nil {
		var se *environment.HTTPStatusError
		if errors.As(err, &se) && (se.StatusCode == http.StatusForbidden || se.StatusCode == http.StatusNotFound) {
			return environment.Soil{}, fmt.Errorf("%w: status %d", ErrNoData, se.StatusCode)
		}
		return environment.Soil{}, fmt.Errorf("ambee: %w", err)
	}

	soil := parse(raw)
	if soil.SoilType == "" && soil.SoilPH == nil && soil.SoilMoisture == nil {
		return environment.Soil{}, ErrNoData
	}
	return soil, nil
}

// parse accepts the reading at the root, under "soil", or as the first
// element of "data".
func parse(raw map[string]any) environment.Soil {
	info := raw
	if nested, ok := raw["soil"].(map[string]any); ok {
		info = nested
	} else if list, ok := raw["data"].([]any); ok && len(list) > 0 {
		if first, ok := list[0].(map[string]any); ok {
			info = first
		}
	}

	var out environment.Soil
	if v, ok := firstString(info, "soilType", "soil_type"); ok {
		out.SoilType = v
	}
	if v, ok := firstNumber(info, "ph", "soilPH", "soil_ph"); ok && v >= 0 && v <= 14 {
		out.SoilPH = environment.Float(v)
	}
	if v, ok := firstNumber(info, "moisture", "soilMoisture", "soil_moisture"); ok && v >= 0 && v <= 100 {
		out.SoilMoisture = environment.Float(v)
	}
	return out
}

func firstString(m map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func firstNumber(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}
