package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 2.0, cfg.Retry.Multiplier)
	assert.Equal(t, 5*time.Second, cfg.Environment.Timeout)
	assert.False(t, cfg.Conflict.BlockSevere)
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agri-advisor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
retry:
  max_attempts: 5
  base_delay: 250ms
conflict:
  block_severe: true
server:
  addr: ":9090"
`), 0o600))

	t.Setenv("AGRI_SERVER_BURST", "42")
	t.Setenv("GEMINI_API_KEY", ` "gm-key" `)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay)
	assert.True(t, cfg.Conflict.BlockSevere)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 42, cfg.Server.Burst)
	assert.Equal(t, "gm-key", cfg.LLM.GeminiAPIKey)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session:\n  store: etcd\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session.store")
}

func TestValidateStoreSpecificFields(t *testing.T) {
	cfg := Default()
	cfg.Audit.Store = "postgres"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit.postgres_dsn")
}
