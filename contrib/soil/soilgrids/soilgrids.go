package soilgrids

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sweetpotato0/agri-advisor/environment"
)

const defaultBaseURL = "https://rest.isric.org/soilgrids/v2.0/properties/query"

// Config holds SoilGrids settings. The service needs no key.
type Config struct {
	BaseURL string
	Depth   string
	Client  *http.Client
}

// Source derives soil texture and pH from ISRIC SoilGrids.
type Source struct {
	config Config
}

// New creates a SoilGrids source.
func New(cfg Config) *Source {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Depth == "" {
		cfg.Depth = "0-5cm"
	}
	return &Source{config: cfg}
}

// Name implements environment.SoilSource
func (s *Source) Name() string { return "soilgrids" }

type response struct {
	Properties struct {
		Layers []struct {
			Name   string `json:"name"`
			Depths []struct {
				Values struct {
					Mean *float64 `json:"mean"`
				} `json:"values"`
			} `json:"depths"`
		} `json:"layers"`
	} `json:"properties"`
}

// FetchSoil implements environment.SoilSource. SoilGrids has no moisture
// data, so SoilMoisture stays nil.
func (s *Source) FetchSoil(ctx context.Context, at environment.Coordinates) (environment.Soil, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(at.Latitude, 'f', 5, 64))
	q.Set("lon", strconv.FormatFloat(at.Longitude, 'f', 5, 64))
	for _, p := range []string{"clay", "sand", "silt", "phh2o"} {
		q.Add("property", p)
	}
	q.Set("depth", s.config.Depth)
	q.Set("value", "mean")

	var resp response
	if err := environment.GetJSON(ctx, s.config.Client, s.config.BaseURL, q, nil, &resp); err != nil {
		return environment.Soil{}, fmt.Errorf("soilgrids: %w", err)
	}

	values := make(map[string]float64)
	for _, layer := range resp.Properties.Layers {
		if len(layer.Depths) == 0 || layer.Depths[0].Values.Mean == nil {
			continue
		}
		values[layer.Name] = *layer.Depths[0].Values.Mean
	}
	if len(values) == 0 {
		return environment.Soil{}, errors.New("soilgrids: no values for location")
	}

	clay, sand, silt := values["clay"], values["sand"], values["silt"]
	out := environment.Soil{
		SoilType:    Texture(clay, sand, silt),
		Composition: fmt.Sprintf("Clay: %.1f%%, Sand: %.1f%%, Silt: %.1f%%", clay/10, sand/10, silt/10),
	}
	if ph, ok := values["phh2o"]; ok {
		out.SoilPH = environment.Float(math.Round(ph) / 10)
	}
	return out, nil
}

// Texture classifies soil from clay/sand/silt fractions in g/kg.
func Texture(clay, sand, silt float64) string {
	switch {
	case clay > 350:
		return "clay"
	case sand > 500:
		return "sandy"
	case silt > 400:
		return "silty"
	default:
		return "loamy"
	}
}
