// Package config handles loading and validating the sprachpfad configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"sprachpfad/pkg/analysis"
	"sprachpfad/pkg/coach"
)

// Config is the root configuration for the sprachpfad CLI.
type Config struct {
	Learner string        `mapstructure:"learner"`
	DBPath  string        `mapstructure:"db_path"`
	Audio   AudioConfig   `mapstructure:"audio"`
	ASR     ASRConfig     `mapstructure:"asr"`
	Coach   coach.Options `mapstructure:"coach"`
	Quality QualityConfig `mapstructure:"quality"`
	Texts   TextsConfig   `mapstructure:"texts"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// AudioConfig configures microphone capture and recording retention.
type AudioConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Dir        string  `mapstructure:"dir"`
	MaxMinutes float64 `mapstructure:"max_minutes"`
	KeepLast   int     `mapstructure:"keep_last"`
	KeepDays   int     `mapstructure:"keep_days"`
	CutAtPunkt bool    `mapstructure:"cut_at_punkt"`
}

// ASRConfig configures the whisper server client.
type ASRConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	// Type selects the wire protocol: "openai" or "webservice".
	Type     string `mapstructure:"type"`
	Model    string `mapstructure:"model"`
	Language string `mapstructure:"language"`
	APIKey   string `mapstructure:"api_key"`
}

// QualityConfig tunes the transcript quality checks.
type QualityConfig struct {
	Thresholds   analysis.Thresholds `mapstructure:"thresholds"`
	WarnPriority []string            `mapstructure:"warn_priority"`
}

// TextsConfig configures the text pools for read_respond steps.
type TextsConfig struct {
	NewsURLs      []string `mapstructure:"news_urls"`
	BookDir       string   `mapstructure:"book_dir"`
	WordsPerChunk int      `mapstructure:"words_per_chunk"`
	ProgressPath  string   `mapstructure:"progress_path"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Load reads the configuration from file, environment variables, and
// defaults. If configFile is non-empty it is used directly; otherwise
// ./sprachpfad.yaml, ./configs/sprachpfad.yaml, and
// ~/.config/sprachpfad/sprachpfad.yaml are searched.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("learner", "default")
	v.SetDefault("db_path", "sprachpfad.db")
	v.SetDefault("audio.enabled", false)
	v.SetDefault("audio.dir", "recordings")
	v.SetDefault("audio.max_minutes", 2.0)
	v.SetDefault("audio.keep_last", 20)
	v.SetDefault("audio.keep_days", 0)
	v.SetDefault("audio.cut_at_punkt", true)
	v.SetDefault("asr.endpoint", "http://localhost:8000")
	v.SetDefault("asr.type", "openai")
	v.SetDefault("asr.model", "small")
	v.SetDefault("asr.language", "de")
	v.SetDefault("coach.backend", "mock")
	v.SetDefault("coach.model", "gpt-4.1-mini")
	v.SetDefault("texts.book_dir", "texts")
	v.SetDefault("texts.words_per_chunk", 220)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("sprachpfad")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/sprachpfad")
		}
	}

	// Environment variables: SPRACHPFAD_LEARNER, SPRACHPFAD_ASR_ENDPOINT, etc.
	v.SetEnvPrefix("SPRACHPFAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references in sensitive fields (e.g. "${OPENAI_API_KEY}")
	cfg.Coach.APIKey = resolveEnvRef(cfg.Coach.APIKey)
	cfg.ASR.APIKey = resolveEnvRef(cfg.ASR.APIKey)

	return &cfg, nil
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the env var value.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		if envVal := os.Getenv(val[2 : len(val)-1]); envVal != "" {
			return envVal
		}
	}
	return val
}

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
