// Package config loads the server configuration from the environment.
//
// Values resolve as OS environment (highest) then an optional .env file.
// Missing or invalid values fail Load with a *ConfigError.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/lucasjlepore/vdot-analyzer/activity"
	"github.com/lucasjlepore/vdot-analyzer/forecast"
	"github.com/lucasjlepore/vdot-analyzer/pipeline"
)

// Config is the top-level configuration for vdot_server.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server   ServerConfig
	Store    StoreConfig
	Pipeline PipelineConfig
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080" validate:"required,numeric"`
	MaxUploadBytes  int64         `envconfig:"MAX_UPLOAD_BYTES" default:"33554432" validate:"gt=0"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// StoreConfig selects where analyzed runs are published.
type StoreConfig struct {
	Driver     string `envconfig:"STORE_DRIVER" default:"none" validate:"oneof=none postgres sqlite"`
	URL        string `envconfig:"DATABASE_URL" validate:"required_if=Driver postgres"`
	SQLitePath string `envconfig:"SQLITE_PATH" default:"vdot.db" validate:"required_if=Driver sqlite"`
}

// PipelineConfig holds the analysis defaults.
type PipelineConfig struct {
	Windows  []int  `envconfig:"FEATURE_WINDOWS" default:"14,30" validate:"min=1,unique,dive,gt=0"`
	Model    string `envconfig:"FORECAST_MODEL" default:"blended" validate:"oneof=blended statistical"`
	HRPolicy string `envconfig:"HR_POLICY" default:"drop" validate:"oneof=drop keep"`
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrParsing indicates an environment value could not be parsed into its
	// target type.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
)

// ConfigError is returned by Load.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Load reads .env (when present) and the environment into a validated Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}
	return &cfg, nil
}

// PipelineDefaults converts the environment settings into stage options.
func (c *Config) PipelineDefaults() pipeline.Config {
	pc := pipeline.DefaultConfig()
	pc.Windows = append([]int(nil), c.Pipeline.Windows...)
	pc.Normalize.HRPolicy = activity.HRPolicy(c.Pipeline.HRPolicy)
	return pc
}

// ForecastModel returns the configured default model.
func (c *Config) ForecastModel() forecast.Model {
	m, err := forecast.ParseModel(c.Pipeline.Model)
	if err != nil {
		return forecast.ModelBlended
	}
	return m
}

// SlogLevel maps LOG_LEVEL onto a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
