package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conduit-lang/jsonapi-store/internal/logging"
)

// ErrMissingBaseURL is returned by RequireBaseURL when no server is configured
var ErrMissingBaseURL = errors.New("base_url is not configured (set it in jsonapi.yaml or JSONAPI_BASE_URL)")

// Config represents the CLI configuration
type Config struct {
	BaseURL  string            `mapstructure:"base_url"`
	Timeout  time.Duration     `mapstructure:"timeout"`
	LogLevel string            `mapstructure:"log_level"`
	Headers  map[string]string `mapstructure:"headers"`
}

// New returns a viper instance with defaults, search paths and environment
// binding in place. Flags may be bound to it before Load.
func New() *viper.Viper {
	v := viper.New()

	// Set defaults
	v.SetDefault("base_url", "")
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("headers", map[string]string{})

	// Config file: ./jsonapi.yaml, then ~/.config/jsonapi/jsonapi.yaml
	v.SetConfigName("jsonapi")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "jsonapi"))
	}

	// JSONAPI_BASE_URL, JSONAPI_TIMEOUT, ...
	v.SetEnvPrefix("JSONAPI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the configuration. An explicit configFile must exist; otherwise a
// missing file falls back to defaults.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if v == nil {
		v = New()
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// RequireBaseURL fails when commands that talk to a server have no base URL
func (c *Config) RequireBaseURL() error {
	if c.BaseURL == "" {
		return ErrMissingBaseURL
	}
	return nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return fmt.Errorf("base_url is not a valid URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("base_url must use http or https, got: %s", cfg.BaseURL)
		}
		if u.Host == "" {
			return fmt.Errorf("base_url must be absolute, got: %s", cfg.BaseURL)
		}
		if strings.HasSuffix(cfg.BaseURL, "/") {
			return fmt.Errorf("base_url must not end with '/', got: %s", cfg.BaseURL)
		}
	}

	if cfg.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got: %s", cfg.Timeout)
	}

	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}
