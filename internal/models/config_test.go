package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("ALLOCATION_POLICY", "")
	t.Setenv("PORT", "")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, PolicyExclusive, cfg.Allocation.Policy)
	assert.Equal(t, 8, cfg.Batch.Concurrency)
	assert.Equal(t, 200, cfg.Batch.MaxDocuments)
	assert.Equal(t, 20, cfg.Upload.MaxSizeMB)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 9000
allocation:
  policy: additive
batch:
  concurrency: -3
ai:
  default_provider: gemini
`), 0o600))

	t.Setenv("PORT", "9100")
	t.Setenv("ALLOCATION_POLICY", "")
	t.Setenv("GEMINI_API_KEY", "key")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, PolicyAdditive, cfg.Allocation.Policy)
	assert.Equal(t, 8, cfg.Batch.Concurrency)
	assert.Equal(t, "gemini", cfg.AI.DefaultProvider)
	assert.Equal(t, "key", cfg.AI.Gemini.APIKey)
	assert.Equal(t, "gemini-1.5-flash", cfg.AI.Gemini.Model)
}

func TestLoadConfig_UnknownPolicyFallsBack(t *testing.T) {
	t.Setenv("ALLOCATION_POLICY", "both")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, PolicyExclusive, cfg.Allocation.Policy)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: ["), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
