package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsFillMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backup: false\nrestart_mode: force\ngenerator_paths:\n  - /tmp/a.conf\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.BackupEnabled())
	assert.Equal(t, "force", cfg.RestartMode)
	assert.Equal(t, []string{"/tmp/a.conf"}, cfg.GeneratorPaths)
	assert.Equal(t, "pkexec", cfg.Escalator)
	assert.Equal(t, "1G", cfg.DefaultSize)
	assert.Equal(t, "/run/lock", cfg.LockDir)
	assert.Equal(t, "/", cfg.SysfsRoot)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "an explicit path must exist")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backup: [\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.BackupEnabled())
	assert.Equal(t, "try", cfg.RestartMode)
	assert.Empty(t, cfg.HistoryDB)
}
