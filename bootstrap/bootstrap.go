// Package bootstrap wires configuration into a running advisory service.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sweetpotato0/agri-advisor/advisory"
	"github.com/sweetpotato0/agri-advisor/api"
	"github.com/sweetpotato0/agri-advisor/audit"
	auditstore "github.com/sweetpotato0/agri-advisor/audit/store"
	"github.com/sweetpotato0/agri-advisor/config"
	"github.com/sweetpotato0/agri-advisor/contrib/geocode/nominatim"
	"github.com/sweetpotato0/agri-advisor/contrib/provider/claude"
	"github.com/sweetpotato0/agri-advisor/contrib/provider/gemini"
	"github.com/sweetpotato0/agri-advisor/contrib/provider/openai"
	"github.com/sweetpotato0/agri-advisor/contrib/session/inmemory"
	"github.com/sweetpotato0/agri-advisor/contrib/soil/ambee"
	"github.com/sweetpotato0/agri-advisor/contrib/soil/soilgrids"
	"github.com/sweetpotato0/agri-advisor/contrib/tokenizer/tiktoken"
	"github.com/sweetpotato0/agri-advisor/contrib/weather/openmeteo"
	"github.com/sweetpotato0/agri-advisor/contrib/weather/openweather"
	"github.com/sweetpotato0/agri-advisor/environment"
	"github.com/sweetpotato0/agri-advisor/gateway"
	"github.com/sweetpotato0/agri-advisor/mcpserver"
	"github.com/sweetpotato0/agri-advisor/middleware"
	"github.com/sweetpotato0/agri-advisor/middleware/enricher"
	"github.com/sweetpotato0/agri-advisor/middleware/errorhandler"
	"github.com/sweetpotato0/agri-advisor/middleware/limiter"
	"github.com/sweetpotato0/agri-advisor/middleware/logger"
	"github.com/sweetpotato0/agri-advisor/middleware/validator"
	"github.com/sweetpotato0/agri-advisor/pkg/logging"
	"github.com/sweetpotato0/agri-advisor/pkg/telemetry"
	"github.com/sweetpotato0/agri-advisor/session"
	sessionstore "github.com/sweetpotato0/agri-advisor/session/store"
	"github.com/sweetpotato0/agri-advisor/simulator"
	"github.com/sweetpotato0/agri-advisor/tokenizer"
)

// App holds the wired services. Close releases stores and flushes traces.
type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	Gateway     *gateway.Gateway
	Environment *environment.Provider
	Sessions    *session.Manager
	Pipeline    *advisory.Pipeline
	Chat        *advisory.ChatService
	Analyst     *advisory.Analyst
	Limiter     *limiter.RateLimiter
	Chain       *middleware.Chain

	closers []func(context.Context) error
}

// New builds every service from cfg. On error, anything already opened is
// closed.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	if cfg == nil {
		cfg = config.Default()
	}
	log := logging.Configure(logging.Options{
		Format:     cfg.Log.Format,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  50,
		MaxBackups: 5,
		MaxAgeDays: 14,
	})
	app := &App{Config: cfg, Logger: log}
	defer func() {
		if err != nil {
			_ = app.Close(context.WithoutCancel(ctx))
		}
	}()

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "agri-advisor",
		ServiceVersion: Version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		Disable:        cfg.Telemetry.Disable,
		Logger:         logging.WithComponent("telemetry"),
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: telemetry: %w", err)
	}
	app.closers = append(app.closers, shutdown)

	app.Gateway = NewGateway(cfg)
	app.Environment = NewEnvironment(cfg)

	sessions, err := app.newSessions(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Sessions = sessions

	recorder, err := app.newRecorder(ctx, cfg)
	if err != nil {
		return nil, err
	}

	counter := newCounter(cfg.Session.TokenizerModel, log)

	opts := []advisory.Option{
		advisory.WithTemperature(cfg.LLM.Temperature),
		advisory.WithMaxTokens(cfg.LLM.MaxTokens),
		advisory.WithHistoryBudget(cfg.Session.HistoryTokenBudget),
		advisory.WithTokenCounter(counter),
		advisory.WithConflictPolicy(advisory.ConflictPolicy{
			BlockSevere: cfg.Conflict.BlockSevere,
			HeavyRainMM: cfg.Conflict.HeavyRainMM,
		}),
	}
	sim := simulator.New(cfg.Conflict.HeavyRainMM)

	app.Pipeline, err = advisory.NewPipeline(app.Gateway, app.Environment, sim, append(opts, advisory.WithRecorder(recorder))...)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: pipeline: %w", err)
	}
	app.Chat = advisory.NewChatService(app.Gateway, sim, opts...)
	app.Analyst = advisory.NewAnalyst(app.Gateway, sim, opts...)

	app.Limiter = limiter.NewRateLimiter(cfg.Server.RequestsPerSecond, cfg.Server.Burst)
	app.Chain = middleware.NewChain(
		errorhandler.NewErrorHandler(nil),
		logger.NewRequestLogger(nil),
		app.Limiter,
		validator.NewRequestValidator(0),
		enricher.NewSessionEnricher(app.Sessions),
	)

	log.Info("advisory service ready",
		"backends", app.Gateway.Backends(),
		"session_store", cfg.Session.Store,
		"audit_store", cfg.Audit.Store,
		"middleware", app.Chain.Names(),
	)
	return app, nil
}

// NewGateway registers the three model backends in priority order. Backends
// without a key are never selected.
func NewGateway(cfg *config.Config) *gateway.Gateway {
	gem := gemini.DefaultConfig(cfg.LLM.GeminiAPIKey)
	gem.Model = cfg.LLM.GeminiModel
	gem.MaxTokens = int32(cfg.LLM.MaxTokens)
	gem.Temperature = float32(cfg.LLM.Temperature)

	oai := openai.DefaultConfig(cfg.LLM.OpenAIAPIKey)
	oai.Model = cfg.LLM.OpenAIModel
	oai.BaseURL = cfg.LLM.OpenAIBaseURL
	oai.MaxTokens = int64(cfg.LLM.MaxTokens)
	oai.Temperature = cfg.LLM.Temperature

	cl := claude.DefaultConfig(cfg.LLM.AnthropicAPIKey)
	cl.Model = cfg.LLM.AnthropicModel
	cl.MaxTokens = int64(cfg.LLM.MaxTokens)
	cl.Temperature = cfg.LLM.Temperature

	policy := gateway.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.Retry.MaxAttempts
	policy.BaseDelay = cfg.Retry.BaseDelay
	policy.Multiplier = cfg.Retry.Multiplier

	return gateway.New(
		[]gateway.Descriptor{gemini.Descriptor(gem), openai.Descriptor(oai), claude.Descriptor(cl)},
		gateway.WithRetryPolicy(policy),
		gateway.WithCallTimeout(cfg.LLM.CallTimeout),
		gateway.WithLogger(logging.WithComponent("gateway")),
	)
}

// NewEnvironment builds the environment provider. Keyed sources come first;
// the keyless public ones back them up.
func NewEnvironment(cfg *config.Config) *environment.Provider {
	ec := cfg.Environment
	client := &http.Client{Timeout: ec.Timeout}

	var weather []environment.WeatherSource
	if ec.OpenWeatherAPIKey != "" {
		weather = append(weather, openweather.New(openweather.Config{APIKey: ec.OpenWeatherAPIKey, Client: client}))
	}
	if ec.EnableOpenMeteo {
		weather = append(weather, openmeteo.New(openmeteo.Config{Client: client}))
	}

	var soil []environment.SoilSource
	if ec.AmbeeAPIKey != "" {
		soil = append(soil, ambee.New(ambee.Config{APIKey: ec.AmbeeAPIKey, Client: client}))
	}
	if ec.EnableSoilGrids {
		soil = append(soil, soilgrids.New(soilgrids.Config{Client: client}))
	}

	opts := []environment.Option{
		environment.WithWeatherSources(weather...),
		environment.WithSoilSources(soil...),
		environment.WithTimeout(ec.Timeout),
		environment.WithLogger(logging.WithComponent("environment")),
	}
	if ec.EnableGeocoding {
		opts = append(opts, environment.WithGeocoder(nominatim.New(nominatim.Config{UserAgent: ec.UserAgent, Client: client})))
	}
	return environment.NewProvider(opts...)
}

func (a *App) newSessions(ctx context.Context, cfg *config.Config) (*session.Manager, error) {
	var store session.Store
	switch cfg.Session.Store {
	case "redis":
		rs := sessionstore.NewRedisStore(&sessionstore.RedisConfig{
			Addr:     cfg.Session.RedisAddr,
			Password: cfg.Session.RedisPassword,
			DB:       cfg.Session.RedisDB,
			Prefix:   cfg.Session.RedisPrefix,
			TTL:      cfg.Session.TTL,
		})
		a.closers = append(a.closers, func(context.Context) error { return rs.Close() })
		if err := rs.Ping(ctx); err != nil {
			return nil, fmt.Errorf("bootstrap: redis session store: %w", err)
		}
		store = rs
	default:
		store = inmemory.NewInMemoryStoreWithTTL(cfg.Session.TTL)
	}
	return session.NewManager(
		session.WithStore(store),
		session.WithEnvironmentSource(a.Environment),
	), nil
}

func (a *App) newRecorder(ctx context.Context, cfg *config.Config) (*audit.Recorder, error) {
	var store audit.Store
	switch cfg.Audit.Store {
	case "postgres":
		ps, err := auditstore.NewPostgresStore(ctx, cfg.Audit.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: postgres audit store: %w", err)
		}
		store = ps
	case "mongo":
		ms, err := auditstore.NewMongoStore(ctx, &auditstore.MongoConfig{
			URI:        cfg.Audit.MongoURI,
			Database:   cfg.Audit.MongoDatabase,
			Collection: cfg.Audit.MongoCollection,
		})
		if err != nil {
			return nil, fmt.Errorf("bootstrap: mongo audit store: %w", err)
		}
		store = ms
	default:
		return audit.NewRecorder(nil, 0), nil
	}
	a.closers = append(a.closers, store.Close)
	return audit.NewRecorder(store, auditTimeout), nil
}

// newCounter loads a tiktoken encoding for model. An empty model, or one
// whose encoding cannot be loaded, counts tokens approximately.
func newCounter(model string, log *slog.Logger) tokenizer.Counter {
	if model == "" {
		return tokenizer.Approximate{}
	}
	tk, err := tiktoken.New(model)
	if err != nil {
		log.Warn("tiktoken unavailable, using approximate token counts", "model", model, "error", err)
		return tokenizer.Approximate{}
	}
	return tk
}

// HTTPHandler returns the HTTP API.
func (a *App) HTTPHandler() http.Handler {
	return api.NewServer(api.Deps{
		Pipeline:    a.Pipeline,
		Chat:        a.Chat,
		Analyst:     a.Analyst,
		Sessions:    a.Sessions,
		Environment: a.Environment,
		Chain:       a.Chain,
		Limiter:     a.Limiter,
		Logger:      logging.WithComponent("api"),
	}).Handler()
}

// MCPServer returns the MCP tool server.
func (a *App) MCPServer() *mcp.Server {
	return mcpserver.NewServer(mcpserver.Deps{
		Pipeline:    a.Pipeline,
		Chain:       a.Chain,
		Environment: a.Environment,
		Version:     Version,
		Logger:      logging.WithComponent("mcp"),
	})
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
