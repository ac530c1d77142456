package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.MountinfoPath)
	assert.Zero(t, cfg.HelperTimeout())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"logLevel": "debug",
		"mountinfoPath": "/tmp/mountinfo",
		"helperTimeoutSecs": 30
	}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/mountinfo", cfg.MountinfoPath)
	assert.Equal(t, 30*time.Second, cfg.HelperTimeout())

	lvl, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"logLevel": "debug"}`), 0o600))

	t.Setenv("DISKMAND_LOG_LEVEL", "warn")
	t.Setenv("DISKMAND_HELPER_TIMEOUT_SECS", "5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.HelperTimeout())
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
		require.Error(t, err)
	})

	t.Run("invalid json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
		_, err := Load(path)
		require.Error(t, err)
	})

	t.Run("invalid level", func(t *testing.T) {
		t.Setenv("DISKMAND_LOG_LEVEL", "chatty")
		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}
