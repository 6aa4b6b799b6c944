package config

import (
	"fmt"
	"time"

	"github.com/Veraticus/statement-flow/internal/common"
	"github.com/spf13/viper"
)

// Config is the fully resolved application configuration.
type Config struct {
	Database DatabaseConfig
	Logging  LoggingConfig
	Enhancer EnhancerConfig
	Metrics  MetricsConfig
	Regex    RegexConfig
	Parsing  ParsingConfig
}

// DatabaseConfig locates the sqlite database.
type DatabaseConfig struct {
	Path string
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level  string
	Format string
}

// ParsingConfig tunes the orchestrator.
type ParsingConfig struct {
	MaxAttempts         int
	EarlyExitConfidence float64
	StrategyTimeout     time.Duration
	DropDuplicates      bool
	ExcerptChars        int
	LearningTextCap     int
}

// RegexConfig holds the over- and under-match ratio bounds for regex scoring.
type RegexConfig struct {
	OverMatchRatio  float64
	UnderMatchRatio float64
}

// EnhancerConfig configures the optional AI enhancer.
type EnhancerConfig struct {
	Provider          string
	APIKey            string
	Model             string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerMinute int
	Enabled           bool
}

// MetricsConfig schedules the daily rollup.
type MetricsConfig struct {
	Schedule string
	Timezone string
}

// Default values.
const (
	DefaultMaxAttempts         = 4
	DefaultEarlyExitConfidence = 0.85
	DefaultExcerptChars        = 2000
	DefaultLearningTextCap     = 10000
	DefaultOverMatchRatio      = 0.5
	DefaultUnderMatchRatio     = 0.1
	DefaultMetricsSchedule     = "15 0 * * *"
)

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath())
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("parsing.max_attempts", DefaultMaxAttempts)
	v.SetDefault("parsing.early_exit_confidence", DefaultEarlyExitConfidence)
	v.SetDefault("parsing.strategy_timeout", "0s")
	v.SetDefault("parsing.drop_duplicates", false)
	v.SetDefault("parsing.excerpt_chars", DefaultExcerptChars)
	v.SetDefault("parsing.learning_text_cap", DefaultLearningTextCap)

	v.SetDefault("regex.over_match_ratio", DefaultOverMatchRatio)
	v.SetDefault("regex.under_match_ratio", DefaultUnderMatchRatio)

	v.SetDefault("enhancer.enabled", false)
	v.SetDefault("enhancer.provider", "openai")
	v.SetDefault("enhancer.model", "gpt-4o-mini")
	v.SetDefault("enhancer.base_url", "https://api.openai.com/v1")
	v.SetDefault("enhancer.requests_per_minute", 30)
	v.SetDefault("enhancer.timeout", "30s")

	v.SetDefault("metrics.schedule", DefaultMetricsSchedule)
	v.SetDefault("metrics.timezone", "UTC")
}

// Load reads configuration from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Path: ExpandPath(v.GetString("database.path")),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		Parsing: ParsingConfig{
			MaxAttempts:         v.GetInt("parsing.max_attempts"),
			EarlyExitConfidence: v.GetFloat64("parsing.early_exit_confidence"),
			StrategyTimeout:     v.GetDuration("parsing.strategy_timeout"),
			DropDuplicates:      v.GetBool("parsing.drop_duplicates"),
			ExcerptChars:        v.GetInt("parsing.excerpt_chars"),
			LearningTextCap:     v.GetInt("parsing.learning_text_cap"),
		},
		Regex: RegexConfig{
			OverMatchRatio:  v.GetFloat64("regex.over_match_ratio"),
			UnderMatchRatio: v.GetFloat64("regex.under_match_ratio"),
		},
		Enhancer: EnhancerConfig{
			Enabled:           v.GetBool("enhancer.enabled"),
			Provider:          v.GetString("enhancer.provider"),
			APIKey:            v.GetString("enhancer.api_key"),
			Model:             v.GetString("enhancer.model"),
			BaseURL:           v.GetString("enhancer.base_url"),
			RequestsPerMinute: v.GetInt("enhancer.requests_per_minute"),
			Timeout:           v.GetDuration("enhancer.timeout"),
		},
		Metrics: MetricsConfig{
			Schedule: v.GetString("metrics.schedule"),
			Timezone: v.GetString("metrics.timezone"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Database.Path == "":
		return invalid("database.path", "must not be empty")
	case c.Parsing.MaxAttempts < 1:
		return invalid("parsing.max_attempts", "must be at least 1")
	case c.Parsing.EarlyExitConfidence <= 0 || c.Parsing.EarlyExitConfidence > 1:
		return invalid("parsing.early_exit_confidence", "must be in (0, 1]")
	case c.Parsing.StrategyTimeout < 0:
		return invalid("parsing.strategy_timeout", "must not be negative")
	case c.Parsing.ExcerptChars < 1:
		return invalid("parsing.excerpt_chars", "must be positive")
	case c.Parsing.LearningTextCap < 1:
		return invalid("parsing.learning_text_cap", "must be positive")
	case c.Regex.UnderMatchRatio < 0 || c.Regex.UnderMatchRatio >= c.Regex.OverMatchRatio:
		return invalid("regex.under_match_ratio", "must be non-negative and below regex.over_match_ratio")
	case c.Regex.OverMatchRatio > 1:
		return invalid("regex.over_match_ratio", "must be at most 1")
	case c.Metrics.Schedule == "":
		return invalid("metrics.schedule", "must not be empty")
	}

	if _, err := time.LoadLocation(c.Metrics.Timezone); err != nil {
		return invalid("metrics.timezone", err.Error())
	}

	if c.Enhancer.Enabled {
		if c.Enhancer.Provider != "openai" {
			return invalid("enhancer.provider", fmt.Sprintf("unsupported provider %q", c.Enhancer.Provider))
		}
		if c.Enhancer.APIKey == "" {
			return invalid("enhancer.api_key", "required when the enhancer is enabled")
		}
	}
	return nil
}

func invalid(key, reason string) error {
	return fmt.Errorf("%w: %s %s", common.ErrInvalidConfig, key, reason)
}
