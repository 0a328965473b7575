package environment

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweetpotato0/agri-advisor/pkg/logging"
)

// Provider assembles an environmental context from live sources, falling
// back to synthetic readings per sub-field. It never returns an error and
// performs no retries.
type Provider struct {
	weather   []WeatherSource
	soil      []SoilSource
	geocoder  Geocoder
	synthetic *Synthetic
	timeout   time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithWeatherSources sets the weather sources, tried in order.
func WithWeatherSources(sources ...WeatherSource) Option {
	return func(p *Provider) { p.weather = append(p.weather, sources...) }
}

// WithSoilSources sets the soil sources, tried in order.
func WithSoilSources(sources ...SoilSource) Option {
	return func(p *Provider) { p.soil = append(p.soil, sources...) }
}

// WithGeocoder enables reverse geocoding.
func WithGeocoder(g Geocoder) Option {
	return func(p *Provider) { p.geocoder = g }
}

// WithTimeout bounds each upstream call.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithSynthetic replaces the synthetic generator.
func WithSynthetic(s *Synthetic) Option {
	return func(p *Provider) {
		if s != nil {
			p.synthetic = s
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// WithLogger sets the provider logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProvider creates a provider. With no sources every fetch is synthetic.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		synthetic: NewSynthetic(),
		timeout:   5 * time.Second,
		now:       time.Now,
		logger:    logging.WithComponent("environment"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Fetch returns the context for at. A nil or out-of-range coordinate yields a
// fully synthetic context with no location.
func (p *Provider) Fetch(ctx context.Context, at *Coordinates) Context {
	out := Context{Timestamp: p.now().UTC()}

	if at == nil {
		p.fillSynthetic(&out)
		return out
	}
	if err := at.Validate(); err != nil {
		p.logger.Warn("ignoring invalid coordinates", "error", err)
		p.fillSynthetic(&out)
		return out
	}

	loc := *at
	out.Location = &loc

	var (
		g       errgroup.Group
		weather Weather
		wName   string
		wOK     bool
		soil    Soil
		sName   string
		sOK     bool
		place   Place
		pOK     bool
	)
	g.Go(func() error {
		weather, wName, wOK = p.fetchWeather(ctx, loc)
		return nil
	})
	g.Go(func() error {
		soil, sName, sOK = p.fetchSoil(ctx, loc)
		return nil
	})
	if p.geocoder != nil {
		g.Go(func() error {
			place, pOK = p.reverse(ctx, loc)
			return nil
		})
	}
	_ = g.Wait()

	if wOK {
		out.Weather = weather
		out.Sources.Weather = OriginLive
		out.Sources.WeatherName = wName
	} else {
		out.Weather = p.synthetic.Weather()
		out.Sources.Weather = OriginSynthetic
	}
	if sOK {
		out.Soil = soil
		out.Sources.Soil = OriginLive
		out.Sources.SoilName = sName
	} else {
		out.Soil = p.synthetic.Soil()
		out.Sources.Soil = OriginSynthetic
	}
	if pOK {
		out.Place = &place
	}

	p.logger.Debug("environment resolved",
		"lat", loc.Latitude,
		"lon", loc.Longitude,
		"weather_source", out.Sources.Weather,
		"soil_source", out.Sources.Soil,
	)
	return out
}

func (p *Provider) fillSynthetic(out *Context) {
	out.Weather = p.synthetic.Weather()
	out.Soil = p.synthetic.Soil()
	out.Sources = Sources{Weather: OriginSynthetic, Soil: OriginSynthetic}
}

func (p *Provider) fetchWeather(ctx context.Context, at Coordinates) (Weather, string, bool) {
	for _, src := range p.weather {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		w, err := src.FetchWeather(callCtx, at)
		cancel()
		if err == nil {
			return w, src.Name(), true
		}
		p.logger.Warn("weather source failed", "source", src.Name(), "error", err)
	}
	return Weather{}, "", false
}

func (p *Provider) fetchSoil(ctx context.Context, at Coordinates) (Soil, string, bool) {
	for _, src := range p.soil {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		s, err := src.FetchSoil(callCtx, at)
		cancel()
		if err == nil {
			return s, src.Name(), true
		}
		p.logger.Warn("soil source failed", "source", src.Name(), "error", err)
	}
	return Soil{}, "", false
}

func (p *Provider) reverse(ctx context.Context, at Coordinates) (Place, bool) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	place, err := p.geocoder.Reverse(callCtx, at)
	if err != nil {
		p.logger.Warn("reverse geocoding failed", "error", err)
		return Place{}, false
	}
	return place, true
}
