package advisory

import (
	"log/slog"
	"time"

	"github.com/sweetpotato0/agri-advisor/environment"
	"github.com/sweetpotato0/agri-advisor/gateway"
	"github.com/sweetpotato0/agri-advisor/pkg/logging"
	"github.com/sweetpotato0/agri-advisor/prompt"
	"github.com/sweetpotato0/agri-advisor/tokenizer"
)

// ConflictPolicy decides when a claim/sensor conflict may block advice.
// Conflicts are advisory unless BlockSevere is set and the farmer asks for
// field work while rain at or above HeavyRainMM (or a heavy-rain alert) is
// forecast.
type ConflictPolicy struct {
	BlockSevere bool
	HeavyRainMM float64
}

// DefaultConflictPolicy never blocks.
func DefaultConflictPolicy() ConflictPolicy {
	return ConflictPolicy{HeavyRainMM: environment.HeavyRainMM}
}

// Config controls the stages and the pipeline built from them.
type Config struct {
	Name           string  // Logical name for logging and traces
	Temperature    float64 // Sampling temperature for every stage
	MaxTokens      int     // Output cap per model call
	HistoryBudget  int     // Token budget for history in advice prompts
	GraphMaxVisits int     // Safety guard for graph execution
	Policy         ConflictPolicy

	prompts  *prompt.Manager
	counter  tokenizer.Counter
	logger   *slog.Logger
	clock    func() time.Time
	recorder Recorder
}

// Option customises the configuration.
type Option func(*Config)

// WithName labels logs and traces.
func WithName(name string) Option {
	return func(cfg *Config) {
		if name != "" {
			cfg.Name = name
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(cfg *Config) {
		if t >= 0 {
			cfg.Temperature = t
		}
	}
}

// WithMaxTokens caps model output.
func WithMaxTokens(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.MaxTokens = n
		}
	}
}

// WithHistoryBudget sets how many tokens of history reach the advice prompt.
func WithHistoryBudget(tokens int) Option {
	return func(cfg *Config) {
		if tokens >= 0 {
			cfg.HistoryBudget = tokens
		}
	}
}

// WithConflictPolicy sets the blocking policy.
func WithConflictPolicy(p ConflictPolicy) Option {
	return func(cfg *Config) {
		if p.HeavyRainMM <= 0 {
			p.HeavyRainMM = environment.HeavyRainMM
		}
		cfg.Policy = p
	}
}

// WithPrompts replaces the built-in prompt templates.
func WithPrompts(m *prompt.Manager) Option {
	return func(cfg *Config) {
		if m != nil {
			cfg.prompts = m
		}
	}
}

// WithTokenCounter sets the counter used to trim history.
func WithTokenCounter(c tokenizer.Counter) Option {
	return func(cfg *Config) {
		if c != nil {
			cfg.counter = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *Config) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithClock overrides the time source for trace entries.
func WithClock(now func() time.Time) Option {
	return func(cfg *Config) {
		if now != nil {
			cfg.clock = now
		}
	}
}

func defaultConfig() *Config {
	return &Config{
		Name:           "advisory",
		Temperature:    0.2,
		MaxTokens:      1024,
		HistoryBudget:  1500,
		GraphMaxVisits: 10,
		Policy:         DefaultConflictPolicy(),
	}
}

func applyOptions(opts []Option) *Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if cfg.prompts == nil {
		cfg.prompts = prompt.Default()
	}
	if cfg.counter == nil {
		cfg.counter = tokenizer.Approximate{}
	}
	if cfg.logger == nil {
		cfg.logger = logging.WithComponent(cfg.Name)
	}
	if cfg.clock == nil {
		cfg.clock = time.Now
	}
	return cfg
}

// WithRecorder persists every finished pipeline run.
func WithRecorder(r Recorder) Option {
	return func(cfg *Config) { cfg.recorder = r }
}

func (cfg *Config) request(name string, vars prompt.Vars) (gateway.Request, error) {
	system, user, err := cfg.prompts.RenderPair(name, vars)
	if err != nil {
		return gateway.Request{}, err
	}
	return gateway.Request{
		System:      system,
		Prompt:      user,
		Temperature: gateway.Float(cfg.Temperature),
		MaxTokens:   cfg.MaxTokens,
	}, nil
}
