package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Port     int           `env:"TEST_CFG_PORT" envDefault:"8080"`
	Statuses []string      `env:"TEST_CFG_STATUSES" envDefault:"approved" envSeparator:","`
	TTL      time.Duration `env:"TEST_CFG_TTL" envDefault:"5m"`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg testConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, []string{"approved"}, cfg.Statuses)
	assert.Equal(t, 5*time.Minute, cfg.TTL)
}

func TestLoad_FromEnvVars(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "9090")
	t.Setenv("TEST_CFG_STATUSES", "approved,pending")
	t.Setenv("TEST_CFG_TTL", "30s")

	var cfg testConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"approved", "pending"}, cfg.Statuses)
	assert.Equal(t, 30*time.Second, cfg.TTL)
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "not-a-number")

	var cfg testConfig
	err := Load(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

type requiredConfig struct {
	Secret string `env:"TEST_CFG_SECRET,required"`
}

func TestLoad_RequiredFieldMissing(t *testing.T) {
	var cfg requiredConfig
	assert.Error(t, Load(&cfg))
}

func TestLoad_WithEnvironment(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "7070")

	var cfg testConfig
	require.NoError(t, Load(&cfg, WithEnvironment(map[string]string{"TEST_CFG_TTL": "1m"})))

	assert.Equal(t, 8080, cfg.Port, "process environment is ignored")
	assert.Equal(t, time.Minute, cfg.TTL)
}

func TestLoad_WithPrefix(t *testing.T) {
	var cfg testConfig
	require.NoError(t, Load(&cfg,
		WithPrefix("SEED_"),
		WithEnvironment(map[string]string{"SEED_TEST_CFG_PORT": "6060", "TEST_CFG_PORT": "1"}),
	))

	assert.Equal(t, 6060, cfg.Port)
}
