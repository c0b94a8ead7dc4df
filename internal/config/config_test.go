package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genomicsops/panelmap/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "panelmap.db", cfg.Database)
	assert.Equal(t, "https://panelapp.genomicsengland.co.uk/api/v1/panels", cfg.PanelAppURL)
	assert.Equal(t, "https://rest.variantvalidator.org/VariantValidator/tools/gene2transcripts_v2", cfg.VariantValidatorURL)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 5001, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PANELMAP_DATABASE", "/var/lib/panelmap/panels.db")
	t.Setenv("PANELMAP_SERVER_PORT", "8080")
	t.Setenv("PANELMAP_LOG_LEVEL", "debug")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/panelmap/panels.db", cfg.Database)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database:    "panelmap.db",
			HTTPTimeout: 30 * time.Second,
			Server:      ServerConfig{Port: 5001},
		}
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Database = ""
	assert.True(t, errors.IsValidationError(cfg.Validate()))

	cfg = valid()
	cfg.Server.Port = 70000
	assert.True(t, errors.IsValidationError(cfg.Validate()))

	cfg = valid()
	cfg.HTTPTimeout = 0
	assert.True(t, errors.IsValidationError(cfg.Validate()))
}
