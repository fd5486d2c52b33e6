package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conductor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
store:
  backend: redis
  redis:
    addr: redis:6379
    ttl: 1h
engine:
  max_iterations: 3
mcp:
  servers:
    docs:
      command: docs-mcp
      args: ["--stdio"]
`), 0o644))

	t.Setenv("CONDUCTOR_HTTP_ADDR", ":9999")
	t.Setenv("CONDUCTOR_REDIS_DB", "2")
	t.Setenv("CONDUCTOR_CONVERGENCE_THRESHOLD", "0.9")
	t.Setenv("CONDUCTOR_METRICS", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "redis:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, time.Hour, cfg.Store.Redis.TTL)
	assert.Equal(t, "conductor:", cfg.Store.Redis.Prefix)
	assert.Equal(t, 3, cfg.Engine.MaxIterations)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, 2, cfg.Store.Redis.DB)
	assert.InDelta(t, 0.9, cfg.Engine.ConvergenceThreshold, 1e-9)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, []string{"--stdio"}, cfg.MCP.Servers["docs"].Args)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DotEnvFile), []byte(
		"CONDUCTOR_LLM_PROVIDER=anthropic\nCONDUCTOR_LLM_MODEL=claude-test\nCONDUCTOR_RUN_KEY=a2V5\n"), 0o644))
	t.Setenv("CONDUCTOR_LLM_MODEL", "from-env")

	cfg, err := Load(filepath.Join(dir, "conductor.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "from-env", cfg.LLM.Model, "the process environment wins")
	assert.Equal(t, "a2V5", cfg.Store.Runs.EncryptionKey)

	_, ok := os.LookupEnv("CONDUCTOR_LLM_PROVIDER")
	assert.False(t, ok, "the dotenv file does not leak into the environment")
}

func TestInvalidOverrides(t *testing.T) {
	cfg := Default()
	env := map[string]string{"CONDUCTOR_REDIS_DB": "two", "CONDUCTOR_METRICS": "maybe"}
	err := cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONDUCTOR_REDIS_DB")
	assert.Contains(t, err.Error(), "CONDUCTOR_METRICS")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Store.Backend = "s3"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Engine.ConvergenceThreshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Editor.UndoLimit = 0
	assert.Error(t, cfg.Validate())
}
