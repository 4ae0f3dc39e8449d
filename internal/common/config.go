package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string            `toml:"environment"` // "development" or "production"
	Server      ServerConfig      `toml:"server"`
	Storage     StorageConfig     `toml:"storage"`
	Logging     LoggingConfig     `toml:"logging"`
	MarketData  MarketDataConfig  `toml:"market_data"`
	Claude      ClaudeConfig      `toml:"claude"`
	Gemini      GeminiConfig      `toml:"gemini"`
	Analysis    AnalysisConfig    `toml:"analysis"`
	Cache       CacheConfig       `toml:"cache"`
	Scheduler   SchedulerConfig   `toml:"scheduler"`
	Indicators  []IndicatorConfig `toml:"indicators" validate:"min=1,dive"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs
}

// MarketDataConfig configures the external indicator API client.
type MarketDataConfig struct {
	BaseURL        string `toml:"base_url" validate:"required,url"`
	APIKey         string `toml:"api_key"`
	RateLimit      int    `toml:"rate_limit" validate:"gt=0"`      // Requests per second
	TimeoutSeconds int    `toml:"timeout_seconds" validate:"gt=0"` // HTTP timeout
}

// ClaudeConfig configures the Anthropic Claude provider.
type ClaudeConfig struct {
	Model       string  `toml:"model" validate:"required"`
	APIKey      string  `toml:"api_key"` // Prefer env or KV storage; config value is lowest priority
	MaxTokens   int     `toml:"max_tokens" validate:"gt=0"`
	Temperature float32 `toml:"temperature"`
}

// GeminiConfig configures the Google Gemini provider.
type GeminiConfig struct {
	Model       string  `toml:"model" validate:"required"`
	APIKey      string  `toml:"api_key"`
	Temperature float32 `toml:"temperature"`
}

// AnalysisConfig selects which commentary variants are active.
type AnalysisConfig struct {
	DefaultVariant  string   `toml:"default_variant" validate:"oneof=claude gemini"`
	EnabledVariants []string `toml:"enabled_variants" validate:"min=1,dive,oneof=claude gemini"`
}

// CacheConfig tunes the analysis cache and the similarity fallback.
// The weights and thresholds are empirical; they are configuration on
// purpose rather than compiled constants.
type CacheConfig struct {
	TTLHours         int     `toml:"ttl_hours" validate:"gt=0"`         // Entry lifetime for exact cache and fallback log
	FallbackLogSize  int     `toml:"fallback_log_size" validate:"gt=0"` // Max fallback entries kept per variant
	SimilarityWeight float64 `toml:"similarity_weight" validate:"gte=0,lte=1"`
	RecencyWeight    float64 `toml:"recency_weight" validate:"gte=0,lte=1"`
}

// TTL returns the cache entry lifetime as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

type SchedulerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // Cron schedule format
}

// IndicatorConfig describes one tracked indicator: the market data ticker it
// is fetched from, its quantization step and the minimum normalization range
// floor used by the similarity scorer (~1% of the indicator's typical
// historical range).
type IndicatorConfig struct {
	ID           string  `toml:"id" validate:"required"`
	Ticker       string  `toml:"ticker" validate:"required"`
	Step         float64 `toml:"step" validate:"gt=0"`
	MinThreshold float64 `toml:"min_threshold" validate:"gt=0"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/macropulse",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
		MarketData: MarketDataConfig{
			BaseURL:        "https://eodhd.com/api",
			RateLimit:      10,
			TimeoutSeconds: 30,
		},
		Claude: ClaudeConfig{
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   2048,
			Temperature: 0.3,
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.5-flash",
			Temperature: 0.3,
		},
		Analysis: AnalysisConfig{
			DefaultVariant:  "claude",
			EnabledVariants: []string{"claude"},
		},
		Cache: CacheConfig{
			TTLHours:         24,
			FallbackLogSize:  10,
			SimilarityWeight: 0.9,
			RecencyWeight:    0.1,
		},
		Scheduler: SchedulerConfig{
			Enabled:  true,
			Schedule: "0 * * * *", // Hourly
		},
		Indicators: DefaultIndicators(),
	}
}

// DefaultIndicators returns the tracked indicator set with empirically chosen
// quantization steps. Steps span orders of magnitude: sub-unit for yields and
// percentages, hundreds for index levels and crypto.
func DefaultIndicators() []IndicatorConfig {
	return []IndicatorConfig{
		{ID: "treasury_10y", Ticker: "US10Y.INDX", Step: 0.01, MinThreshold: 0.05},
		{ID: "treasury_2y", Ticker: "US2Y.INDX", Step: 0.01, MinThreshold: 0.05},
		{ID: "dxy", Ticker: "DXY.INDX", Step: 0.1, MinThreshold: 0.5},
		{ID: "sp500", Ticker: "GSPC.INDX", Step: 25, MinThreshold: 50},
		{ID: "nasdaq", Ticker: "IXIC.INDX", Step: 100, MinThreshold: 200},
		{ID: "gold", Ticker: "GC.COMM", Step: 5, MinThreshold: 20},
		{ID: "wti", Ticker: "CL.COMM", Step: 0.5, MinThreshold: 1},
		{ID: "vix", Ticker: "VIX.INDX", Step: 0.5, MinThreshold: 1},
		{ID: "btc", Ticker: "BTC-USD.CC", Step: 500, MinThreshold: 1000},
		{ID: "cpi_yoy", Ticker: "CPIYOY.INDX", Step: 0.1, MinThreshold: 0.2},
		{ID: "unemployment", Ticker: "UNRATE.INDX", Step: 0.1, MinThreshold: 0.2},
	}
}

// IndicatorSteps returns the per-indicator quantization steps keyed by ID.
func (c *Config) IndicatorSteps() map[string]float64 {
	steps := make(map[string]float64, len(c.Indicators))
	for _, ind := range c.Indicators {
		steps[ind.ID] = ind.Step
	}
	return steps
}

// MinThresholds returns the per-indicator normalization floors keyed by ID.
func (c *Config) MinThresholds() map[string]float64 {
	thresholds := make(map[string]float64, len(c.Indicators))
	for _, ind := range c.Indicators {
		thresholds[ind.ID] = ind.MinThreshold
	}
	return thresholds
}

// EnabledVariants returns the configured variant list, falling back to the
// default variant when the list is empty.
func (c *Config) EnabledVariants() []string {
	if len(c.Analysis.EnabledVariants) > 0 {
		return c.Analysis.EnabledVariants
	}
	return []string{c.Analysis.DefaultVariant}
}

// LoadFromFile loads configuration from a TOML file, merging over defaults.
// Environment variables override file values.
func LoadFromFile(path string) (*Config, error) {
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple TOML files in order;
// later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies MACROPULSE_* environment variables on top of
// whatever the config files produced.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("MACROPULSE_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("MACROPULSE_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("MACROPULSE_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if badgerPath := os.Getenv("MACROPULSE_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if level := os.Getenv("MACROPULSE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("MACROPULSE_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if baseURL := os.Getenv("MACROPULSE_MARKET_DATA_URL"); baseURL != "" {
		config.MarketData.BaseURL = baseURL
	}
	if apiKey := os.Getenv("MACROPULSE_MARKET_DATA_API_KEY"); apiKey != "" {
		config.MarketData.APIKey = apiKey
	}

	if schedule := os.Getenv("MACROPULSE_SCHEDULE"); schedule != "" {
		config.Scheduler.Schedule = schedule
	}
}

// ApplyFlagOverrides applies command-line flag values (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks structural constraints and the cron schedule. Weight and
// indicator sanity lives here so a bad config fails at startup, not at the
// first cache lookup.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Cache.SimilarityWeight+c.Cache.RecencyWeight <= 0 {
		return fmt.Errorf("invalid configuration: similarity and recency weights must not both be zero")
	}

	seen := make(map[string]bool, len(c.Indicators))
	for _, ind := range c.Indicators {
		if seen[ind.ID] {
			return fmt.Errorf("invalid configuration: duplicate indicator id %q", ind.ID)
		}
		seen[ind.ID] = true
	}

	if c.Scheduler.Enabled {
		if _, err := cron.ParseStandard(c.Scheduler.Schedule); err != nil {
			return fmt.Errorf("invalid scheduler schedule %q: %w", c.Scheduler.Schedule, err)
		}
	}

	return nil
}

// IsProduction returns true when the environment is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
