package nominatim

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/sweetpotato0/agri-advisor/environment"
)

const defaultBaseURL = "https://nominatim.openstreetmap.org/reverse"

// Config holds Nominatim settings. UserAgent is required by the usage policy.
type Config struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client
	// Interval between requests; the public instance allows one per second.
	Interval time.Duration
}

// Geocoder reverse-geocodes coordinates to district and state.
type Geocoder struct {
	config  Config
	limiter *rate.Limiter
}

// New creates a Nominatim geocoder.
func New(cfg Config) *Geocoder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "agri-advisor/1.0"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Geocoder{
		config:  cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.Interval), 1),
	}
}

type response struct {
	Address struct {
		StateDistrict string `json:"state_district"`
		County        string `json:"county"`
		City          string `json:"city"`
		State         string `json:"state"`
	} `json:"address"`
	Error string `json:"error"`
}

// Reverse implements environment.Geocoder
func (g *Geocoder) Reverse(ctx context.Context, at environment.Coordinates) (environment.Place, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return environment.Place{}, fmt.Errorf("nominatim: %w", err)
	}

	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(at.Latitude, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(at.Longitude, 'f', 6, 64))
	q.Set("accept-language", "en")
	header := http.Header{}
	header.Set("User-Agent", g.config.UserAgent)

	var resp response
	if err := environment.GetJSON(ctx, g.config.Client, g.config.BaseURL, q, header, &resp); err != nil {
		return environment.Place{}, fmt.Errorf("nominatim: %w", err)
	}
	if resp.Error != "" {
		return environment.Place{}, fmt.Errorf("nominatim: %s", resp.Error)
	}

	place := environment.Place{District: "Unknown District", State: "Unknown State"}
	for _, d := range []string{resp.Address.StateDistrict, resp.Address.County, resp.Address.City} {
		if d != "" {
			place.District = d
			break
		}
	}
	if resp.Address.State != "" {
		place.State = resp.Address.State
	}
	return place, nil
}
