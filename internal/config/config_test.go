package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "./data", cfg.Data.Dir)
	assert.Equal(t, 30*time.Second, cfg.Model.TrainingTimeout)
	assert.Equal(t, 5000, cfg.Model.TransactionLimit)
	assert.Equal(t, 30, cfg.Model.MinSamples)
	assert.Equal(t, 20.0, cfg.Limiting.RequestsPerSecond)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRADE_SERVER_PORT", "9090")
	t.Setenv("TRADE_MODEL_MIN_SAMPLES", "50")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Model.MinSamples)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 0 }},
		{"zero training timeout", func(c *Config) { c.Model.TrainingTimeout = 0 }},
		{"min samples too small", func(c *Config) { c.Model.MinSamples = 1 }},
		{"non-positive rate limit", func(c *Config) { c.Limiting.RequestsPerSecond = 0 }},
		{"zero burst", func(c *Config) { c.Limiting.Burst = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
