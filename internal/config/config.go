// Package config provides configuration management for opendiscourse tools.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (GOVINFO_API_KEY, CONGRESS_API_KEY,
//     OPENSTATES_API_KEY, DATABASE_URL)
//  2. Config file (~/.opendiscourse/config.yaml or ./config.yaml)
//  3. Default values
//
// CLI flags are applied by the cmd package on top of the loaded Config, so a
// flag always wins over an environment variable.
//
// Security: API keys and the database password are masked in MarshalJSON and
// String; never log the raw struct fields.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required upstream API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidHTTPTimeout indicates the HTTP timeout is out of range.
	ErrInvalidHTTPTimeout = errors.New("invalid HTTP timeout")

	// ErrInvalidMaxRetries indicates the retry budget is out of range.
	ErrInvalidMaxRetries = errors.New("invalid max retries")
)

// Config stores configuration shared by all ingestion commands.
type Config struct {
	// Upstream API keys. SENSITIVE: masked in MarshalJSON.
	GovInfoAPIKey    string `mapstructure:"govinfo_api_key" json:"govinfo_api_key"`
	CongressAPIKey   string `mapstructure:"congress_api_key" json:"congress_api_key"`
	OpenStatesAPIKey string `mapstructure:"openstates_api_key" json:"openstates_api_key"`

	// HTTP client behavior (see internal/apiclient).
	HTTPTimeoutSeconds int `mapstructure:"http_timeout_seconds" json:"http_timeout_seconds"`
	MaxRetries         int `mapstructure:"max_retries" json:"max_retries"`

	// Storage configuration (see storage.go).
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`
}

// Dir returns the opendiscourse configuration directory (~/.opendiscourse),
// creating it if necessary. The directory also holds per-dataset run locks.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting user home directory: %w", err)
	}
	dir := filepath.Join(home, ".opendiscourse")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	return dir, nil
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	configDir, err := Dir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".") // also support current directory

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, when set, overrides the individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("http_timeout_seconds", 30)
	v.SetDefault("max_retries", 3)

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "opendiscourse")
	v.SetDefault("postgres_password", "opendiscourse_dev_password")
	v.SetDefault("postgres_db_name", "opendiscourse")
	v.SetDefault("postgres_ssl_mode", "disable")
}

// bindEnvVariables binds the secret-bearing environment variables explicitly.
// DATABASE_URL is handled separately in parseDatabaseURL.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime error.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("govinfo_api_key", "GOVINFO_API_KEY")
	mustBind("congress_api_key", "CONGRESS_API_KEY")
	mustBind("openstates_api_key", "OPENSTATES_API_KEY")
}

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
// API keys are validated per command (see RequireKey) because each command
// needs only its own upstream's key.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.HTTPTimeoutSeconds < 1 || c.HTTPTimeoutSeconds > 600 {
		return fmt.Errorf("%w: must be between 1 and 600 seconds, got %d",
			ErrInvalidHTTPTimeout, c.HTTPTimeoutSeconds)
	}

	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("%w: must be between 0 and 10, got %d",
			ErrInvalidMaxRetries, c.MaxRetries)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d",
			ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	return nil
}

// RequireKey checks that the named upstream's API key is present.
// name is one of "govinfo", "congress", "openstates".
func (c *Config) RequireKey(name string) error {
	var key, envVar string
	switch name {
	case "govinfo":
		key, envVar = c.GovInfoAPIKey, "GOVINFO_API_KEY"
	case "congress":
		key, envVar = c.CongressAPIKey, "CONGRESS_API_KEY"
	case "openstates":
		key, envVar = c.OpenStatesAPIKey, "OPENSTATES_API_KEY"
	default:
		return fmt.Errorf("%w: unknown upstream %q", ErrMissingAPIKey, name)
	}
	if key == "" {
		return fmt.Errorf("%w: set %s or pass --api-key", ErrMissingAPIKey, envVar)
	}
	return nil
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks avoid accidental substring matches against real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8 characters
// or fewer are fully masked; longer ones keep the first and last 2 characters
// for debug utility. This defends against accidental logging, nothing more.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.GovInfoAPIKey = maskSecret(a.GovInfoAPIKey)
	a.CongressAPIKey = maskSecret(a.CongressAPIKey)
	a.OpenStatesAPIKey = maskSecret(a.OpenStatesAPIKey)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
