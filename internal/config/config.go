// Package config loads the process-wide configuration once at startup from the environment
// and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	EnvProduction = "production"
)

// Config is read once per process lifetime and passed explicitly into the server.
type Config struct {
	// APIKey is the credential clients must present as "Bearer <key>".
	APIKey string `mapstructure:"ANALYTICS_API_KEY" yaml:"analytics_api_key" validate:"required"`
	// DatabaseURL is the store DSN (a postgres URL, or a sqlite file DSN when DatabaseDriver is sqlite).
	DatabaseURL    string `mapstructure:"DATABASE_URL" yaml:"database_url" validate:"required"`
	DatabaseDriver string `mapstructure:"DATABASE_DRIVER" yaml:"database_driver" validate:"oneof=postgres sqlite"`

	ListenAddr string `mapstructure:"LISTEN_ADDR" yaml:"listen_addr" validate:"required"`
	// DebugAddr serves /healthcheck and pprof when set. Kept off the ingestion listener.
	DebugAddr  string `mapstructure:"DEBUG_ADDR" yaml:"debug_addr"`
	StatsdAddr string `mapstructure:"STATSD_ADDR" yaml:"statsd_addr"`
	Env        string `mapstructure:"APP_ENV" yaml:"app_env"`

	LogLevel string `mapstructure:"LOG_LEVEL" yaml:"log_level" validate:"oneof=trace debug info warn warning error"`
	LogFile  string `mapstructure:"LOG_FILE" yaml:"log_file"`
}

// Load reads .env (if present), then the environment, and validates the result. Env vars
// override .env. A missing .env is not an error.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("v.ReadInConfig: %w", err)
	}

	v.AutomaticEnv()

	v.SetDefault("ANALYTICS_API_KEY", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DATABASE_DRIVER", DriverPostgres)
	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("DEBUG_ADDR", "")
	v.SetDefault("STATSD_ADDR", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("viper.Unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

// Validate checks the required secrets and enumerated fields.
func (c *Config) Validate() error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
}

var envNames = map[string]string{
	"APIKey":         "ANALYTICS_API_KEY",
	"DatabaseURL":    "DATABASE_URL",
	"DatabaseDriver": "DATABASE_DRIVER",
	"ListenAddr":     "LISTEN_ADDR",
	"LogLevel":       "LOG_LEVEL",
}

func describe(fe validator.FieldError) string {
	name, ok := envNames[fe.StructField()]
	if !ok {
		name = fe.StructField()
	}
	switch fe.Tag() {
	case "required":
		return name + " must be set"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", name, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %q validation", name, fe.Tag())
	}
}

func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Redacted returns a copy safe to print: secrets are reduced to a presence marker.
func (c *Config) Redacted() Config {
	out := *c
	out.APIKey = presence(c.APIKey)
	out.DatabaseURL = presence(c.DatabaseURL)
	return out
}

func presence(s string) string {
	if s == "" {
		return "missing"
	}
	return "present"
}
