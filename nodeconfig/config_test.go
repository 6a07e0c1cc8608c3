package nodeconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir = "/var/lib/executorctl"
worker_pool_cap = 16
listen_addr = "0.0.0.0:9000"

[feature_overrides]
gas_payer = true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/executorctl", cfg.DataDir)
	assert.Equal(t, 16, cfg.WorkerPoolCap)
	assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddr)
	assert.True(t, cfg.FeatureOverrides["gas_payer"])
}

func TestLoad_MissingFieldsKeepDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`data_dir = "/custom"`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/custom", cfg.DataDir)
	assert.Equal(t, Default().WorkerPoolCap, cfg.WorkerPoolCap)
}
