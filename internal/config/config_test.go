package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("STORAGE", "")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 2*time.Minute, cfg.Optimizer.Timeout)
	assert.Equal(t, 100, cfg.Optimizer.Threshold)
	assert.Equal(t, 50, cfg.Optimizer.MinLogs)
	assert.Equal(t, "host=localhost port=5432 user=postgres password= dbname=benkyo sslmode=disable", cfg.Postgres.DSN())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("STORAGE", "memory")
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("OPTIMIZER_URL", "http://optimizer:8000")
	t.Setenv("OPTIMIZER_TIMEOUT", "30s")
	t.Setenv("OPTIMIZER_TIMEZONE", "Asia/Ho_Chi_Minh")
	t.Setenv("OPTIMIZATION_THRESHOLD", "20")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.InDelta(t, 2.5, cfg.RateLimitRPS, 1e-12)
	assert.Equal(t, "http://optimizer:8000", cfg.Optimizer.URL)
	assert.Equal(t, 30*time.Second, cfg.Optimizer.Timeout)
	assert.Equal(t, "Asia/Ho_Chi_Minh", cfg.Optimizer.Timezone)
	assert.Equal(t, 20, cfg.Optimizer.Threshold)
}

func TestLoadEnvFile(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.Error(t, LoadEnvFile())

	require.NoError(t, os.WriteFile(".env", []byte("HTTP_ADDR=:7070\nOPTIMIZATION_MIN_LOGS=10\n"), 0o600))
	t.Setenv("HTTP_ADDR", "")
	os.Unsetenv("HTTP_ADDR")
	t.Setenv("OPTIMIZATION_MIN_LOGS", "25")

	require.NoError(t, LoadEnvFile())
	t.Cleanup(func() { os.Unsetenv("HTTP_ADDR") })

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTPAddr)
	assert.Equal(t, 25, cfg.Optimizer.MinLogs)
}

func TestFromEnv_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"bad storage":     {"STORAGE": "mongo"},
		"bad int":         {"OPTIMIZATION_THRESHOLD": "many"},
		"bad duration":    {"OPTIMIZER_TIMEOUT": "soon"},
		"stale too short": {"STALE_AFTER": "1m"},
		"bad timezone":    {"OPTIMIZER_TIMEZONE": "Mars/Olympus"},
		"bad day start":   {"OPTIMIZER_DAY_START": "24"},
		"oauth no token":  {"OPTIMIZER_CLIENT_ID": "benkyo"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}
