package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withConfigDir(t *testing.T, dir string) {
	t.Helper()
	original := os.Getenv("TEXPRESSO_CONFIG_DIR")
	require.NoError(t, os.Setenv("TEXPRESSO_CONFIG_DIR", dir))
	t.Cleanup(func() { os.Setenv("TEXPRESSO_CONFIG_DIR", original) })
}

func TestConfigDirDefaultsUnderHome(t *testing.T) {
	original := os.Getenv("TEXPRESSO_CONFIG_DIR")
	os.Unsetenv("TEXPRESSO_CONFIG_DIR")
	t.Cleanup(func() { os.Setenv("TEXPRESSO_CONFIG_DIR", original) })

	assert.Contains(t, ConfigDir(), ".texpresso-core")
}

func TestConfigDirHonorsEnvOverride(t *testing.T) {
	withConfigDir(t, "/tmp/test-texpresso-config")
	assert.Equal(t, "/tmp/test-texpresso-config", ConfigDir())
}

func TestInitConfigDirWritesDefaultSettings(t *testing.T) {
	dir := t.TempDir()
	withConfigDir(t, dir)

	require.NoError(t, InitConfigDir())
	assert.FileExists(t, GlobalSettingsPath())

	settings, err := LoadGlobalSettings()
	require.NoError(t, err)
	assert.NotNil(t, settings)
}

func TestLoadGlobalSettingsFallsBackToEmbeddedDefaults(t *testing.T) {
	withConfigDir(t, t.TempDir())

	settings, err := LoadGlobalSettings()
	require.NoError(t, err)
	assert.Equal(t, int64(0), settings.SnapshotHysteresisMillis)
}

func TestSaveThenLoadGlobalSettingsRoundTrips(t *testing.T) {
	withConfigDir(t, t.TempDir())

	settings := &GlobalSettings{LogLevel: "debug", SnapshotHysteresisMillis: 750}
	require.NoError(t, SaveGlobalSettings(settings))

	loaded, err := LoadGlobalSettings()
	require.NoError(t, err)
	assert.Equal(t, "debug", loaded.LogLevel)
	assert.Equal(t, int64(750), loaded.SnapshotHysteresisMillis)
	assert.True(t, loaded.LoggingEnabled())
}

func TestLoggingEnabledTreatsOffAndNoneAsDisabled(t *testing.T) {
	assert.False(t, (&GlobalSettings{LogLevel: ""}).LoggingEnabled())
	assert.False(t, (&GlobalSettings{LogLevel: "off"}).LoggingEnabled())
	assert.False(t, (&GlobalSettings{LogLevel: "NONE"}).LoggingEnabled())
	assert.True(t, (&GlobalSettings{LogLevel: "trace"}).LoggingEnabled())
}

func TestLoadProjectConfigMissingFileReturnsNilNoError(t *testing.T) {
	cfg, err := LoadProjectConfig(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestLoadProjectConfigAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".texpresso"), 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, ".texpresso", "config.yaml"),
		[]byte("worker_command: [\"tex\", \"-ini\"]\n"),
		0644,
	))

	cfg, err := LoadProjectConfig(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, []string{"tex", "-ini"}, cfg.WorkerCommand)
	assert.Equal(t, []string{"."}, cfg.InclusionPath)
}
