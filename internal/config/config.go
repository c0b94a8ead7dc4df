// Package config loads runtime configuration from files, environment
// variables, and flags through viper. Precedence follows viper's usual
// order: explicit flags, then environment, then config file, then
// defaults.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/genomicsops/panelmap/pkg/errors"
)

// Config is the full runtime configuration.
type Config struct {
	// Database is the path of the SQLite database file.
	Database string `mapstructure:"database"`

	// PanelAppURL is the base URL of the upstream panel catalog API.
	PanelAppURL string `mapstructure:"panelapp_url"`

	// VariantValidatorURL is the base URL of the transcript resolver API.
	VariantValidatorURL string `mapstructure:"variantvalidator_url"`

	// HTTPTimeout bounds each upstream request.
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`

	// Server holds the HTTP API settings.
	Server ServerConfig `mapstructure:"server"`

	// Log holds logging settings.
	Log LogConfig `mapstructure:"log"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers default values on a viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database", "panelmap.db")
	v.SetDefault("panelapp_url", "https://panelapp.genomicsengland.co.uk/api/v1/panels")
	v.SetDefault("variantvalidator_url", "https://rest.variantvalidator.org/VariantValidator/tools/gene2transcripts_v2")
	v.SetDefault("http_timeout", 30*time.Second)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5001)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")
}

// Load reads configuration into a Config from the given viper instance.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix("PANELMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.WrapValidation("config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Database == "" {
		return errors.NewValidationError("database", c.Database, "database path is required")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.NewValidationError("server.port", c.Server.Port, "port must be between 0 and 65535")
	}
	if c.HTTPTimeout <= 0 {
		return errors.NewValidationError("http_timeout", c.HTTPTimeout, "timeout must be positive")
	}
	return nil
}
