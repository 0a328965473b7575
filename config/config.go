package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration of the advisory service.
type Config struct {
	LLM         LLMConfig         `mapstructure:"llm"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Environment EnvironmentConfig `mapstructure:"environment"`
	Conflict    ConflictConfig    `mapstructure:"conflict"`
	Server      ServerConfig      `mapstructure:"server"`
	Session     SessionConfig     `mapstructure:"session"`
	Audit       AuditConfig       `mapstructure:"audit"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Log         LogConfig         `mapstructure:"log"`
}

// LLMConfig holds backend credentials and model settings. An empty key
// removes that backend from selection.
type LLMConfig struct {
	GeminiAPIKey    string        `mapstructure:"gemini_api_key"`
	GeminiModel     string        `mapstructure:"gemini_model"`
	OpenAIAPIKey    string        `mapstructure:"openai_api_key"`
	OpenAIModel     string        `mapstructure:"openai_model"`
	OpenAIBaseURL   string        `mapstructure:"openai_base_url"`
	AnthropicAPIKey string        `mapstructure:"anthropic_api_key"`
	AnthropicModel  string        `mapstructure:"anthropic_model"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	CallTimeout     time.Duration `mapstructure:"call_timeout"`
}

// RetryConfig parameterizes the rate-limit retry policy.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
}

// EnvironmentConfig configures weather, soil and geocoding sources.
type EnvironmentConfig struct {
	OpenWeatherAPIKey string        `mapstructure:"openweather_api_key"`
	AmbeeAPIKey       string        `mapstructure:"ambee_api_key"`
	EnableOpenMeteo   bool          `mapstructure:"enable_open_meteo"`
	EnableSoilGrids   bool          `mapstructure:"enable_soilgrids"`
	EnableGeocoding   bool          `mapstructure:"enable_geocoding"`
	UserAgent         string        `mapstructure:"user_agent"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// ConflictConfig controls when a claim/sensor conflict blocks advice.
type ConflictConfig struct {
	BlockSevere bool    `mapstructure:"block_severe"`
	HeavyRainMM float64 `mapstructure:"heavy_rain_mm"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

// SessionConfig selects the session store and history budget.
type SessionConfig struct {
	Store              string        `mapstructure:"store"`
	RedisAddr          string        `mapstructure:"redis_addr"`
	RedisPassword      string        `mapstructure:"redis_password"`
	RedisDB            int           `mapstructure:"redis_db"`
	RedisPrefix        string        `mapstructure:"redis_prefix"`
	TTL                time.Duration `mapstructure:"ttl"`
	HistoryTokenBudget int           `mapstructure:"history_token_budget"`
	TokenizerModel     string        `mapstructure:"tokenizer_model"`
}

// AuditConfig selects where run traces are persisted.
type AuditConfig struct {
	Store           string `mapstructure:"store"`
	PostgresDSN     string `mapstructure:"postgres_dsn"`
	MongoURI        string `mapstructure:"mongo_uri"`
	MongoDatabase   string `mapstructure:"mongo_database"`
	MongoCollection string `mapstructure:"mongo_collection"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	Disable      bool    `mapstructure:"disable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `mapstructure:"format"`
	Level  string `mapstructure:"level"`
	File   string `mapstructure:"file"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.gemini_model", "gemini-1.5-flash")
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.openai_model", "gpt-4o-mini")
	v.SetDefault("llm.openai_base_url", "")
	v.SetDefault("llm.anthropic_api_key", "")
	v.SetDefault("llm.anthropic_model", "claude-3-5-haiku-latest")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.call_timeout", 60*time.Second)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", 2*time.Second)
	v.SetDefault("retry.multiplier", 2.0)

	v.SetDefault("environment.openweather_api_key", "")
	v.SetDefault("environment.ambee_api_key", "")
	v.SetDefault("environment.enable_open_meteo", true)
	v.SetDefault("environment.enable_soilgrids", true)
	v.SetDefault("environment.enable_geocoding", true)
	v.SetDefault("environment.user_agent", "agri-advisor/1.0")
	v.SetDefault("environment.timeout", 5*time.Second)

	v.SetDefault("conflict.block_severe", false)
	v.SetDefault("conflict.heavy_rain_mm", 50.0)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.requests_per_second", 5.0)
	v.SetDefault("server.burst", 10)
	v.SetDefault("server.request_timeout", 3*time.Minute)

	v.SetDefault("session.store", "memory")
	v.SetDefault("session.redis_addr", "localhost:6379")
	v.SetDefault("session.redis_password", "")
	v.SetDefault("session.redis_db", 0)
	v.SetDefault("session.redis_prefix", "agri:session:")
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.history_token_budget", 1500)
	v.SetDefault("session.tokenizer_model", "gpt-4o-mini")

	v.SetDefault("audit.store", "none")
	v.SetDefault("audit.postgres_dsn", "")
	v.SetDefault("audit.mongo_uri", "")
	v.SetDefault("audit.mongo_database", "agri_advisor")
	v.SetDefault("audit.mongo_collection", "pipeline_runs")

	v.SetDefault("telemetry.disable", true)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.sample_ratio", 1.0)

	v.SetDefault("log.format", "json")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// Credentials are also accepted under their conventional provider names.
var credentialAliases = map[string]string{
	"llm.gemini_api_key":              "GEMINI_API_KEY",
	"llm.openai_api_key":              "OPENAI_API_KEY",
	"llm.anthropic_api_key":           "ANTHROPIC_API_KEY",
	"environment.openweather_api_key": "OPENWEATHER_API_KEY",
	"environment.ambee_api_key":       "AMBEE_API_KEY",
	"telemetry.otlp_endpoint":         "OTEL_EXPORTER_OTLP_ENDPOINT",
}

// Load reads configuration from defaults, an optional YAML file and AGRI_*
// environment variables, in increasing order of precedence. An empty path
// looks for agri-advisor.yaml in the working directory.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AGRI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, alias := range credentialAliases {
		envKey := "AGRI_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, alias); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else {
		v.SetConfigName("agri-advisor")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.LLM.GeminiAPIKey = cleanCredential(cfg.LLM.GeminiAPIKey)
	cfg.LLM.OpenAIAPIKey = cleanCredential(cfg.LLM.OpenAIAPIKey)
	cfg.LLM.AnthropicAPIKey = cleanCredential(cfg.LLM.AnthropicAPIKey)
	cfg.Environment.OpenWeatherAPIKey = cleanCredential(cfg.Environment.OpenWeatherAPIKey)
	cfg.Environment.AmbeeAPIKey = cleanCredential(cfg.Environment.AmbeeAPIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// cleanCredential strips whitespace and surrounding quotes that often leak in
// from .env files.
func cleanCredential(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"'`)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	v := NewValidator()

	v.RequirePositive("retry.max_attempts", c.Retry.MaxAttempts)
	v.RequirePositiveDuration("retry.base_delay", c.Retry.BaseDelay)
	v.ValidateFloatRange("retry.multiplier", c.Retry.Multiplier, 1, 10)
	v.ValidateFloatRange("llm.temperature", c.LLM.Temperature, 0, 2)
	v.RequirePositive("llm.max_tokens", c.LLM.MaxTokens)
	v.RequirePositiveDuration("llm.call_timeout", c.LLM.CallTimeout)
	v.RequirePositiveDuration("environment.timeout", c.Environment.Timeout)
	v.ValidateFloatRange("conflict.heavy_rain_mm", c.Conflict.HeavyRainMM, 0, 1000)
	v.RequireNonEmpty("server.addr", c.Server.Addr)
	v.RequirePositive("server.burst", c.Server.Burst)
	v.ValidateOneOf("session.store", c.Session.Store, "memory", "redis")
	v.ValidateOneOf("audit.store", c.Audit.Store, "none", "postgres", "mongo")
	v.ValidateOneOf("log.format", c.Log.Format, "json", "text")
	v.ValidateFloatRange("telemetry.sample_ratio", c.Telemetry.SampleRatio, 0, 1)

	if c.Session.Store == "redis" {
		v.RequireNonEmpty("session.redis_addr", c.Session.RedisAddr)
		v.ValidateRange("session.redis_db", c.Session.RedisDB, 0, 15)
	}
	switch c.Audit.Store {
	case "postgres":
		v.RequireNonEmpty("audit.postgres_dsn", c.Audit.PostgresDSN)
	case "mongo":
		v.RequireNonEmpty("audit.mongo_uri", c.Audit.MongoURI)
		v.RequireNonEmpty("audit.mongo_database", c.Audit.MongoDatabase)
		v.RequireNonEmpty("audit.mongo_collection", c.Audit.MongoCollection)
	}

	return v.Error()
}
