package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okrdash/internal/okr"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"OKRDASH_WORKSPACE", "OKRDASH_DB", "OKRDASH_PORT", "OKRDASH_LOG_LEVEL", "OKRDASH_LOG_PRETTY", "OKRDASH_TIMEZONE", "OKRDASH_SCHEDULE"} {
		t.Setenv(key, "")
	}
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ".", cfg.Workspace)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.LogPretty)
	assert.Equal(t, "0 2 * * *", cfg.Schedule)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("OKRDASH_WORKSPACE", "/srv/okrs")
	t.Setenv("OKRDASH_PORT", "9090")
	t.Setenv("OKRDASH_LOG_PRETTY", "true")
	t.Setenv("OKRDASH_TIMEZONE", "Europe/Berlin")
	t.Setenv("OKRDASH_DB", "/tmp/x.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/okrs", cfg.Workspace)
	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.LogPretty)
	assert.Equal(t, "Europe/Berlin", cfg.Timezone)
	assert.Equal(t, "/tmp/x.db", cfg.DBPath)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("OKRDASH_TIMEZONE", "Mars/Olympus")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("OKRDASH_TIMEZONE", "")
	t.Setenv("OKRDASH_PORT", "70000")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("OKRDASH_PORT", "abc")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port, "unparsable values fall back to defaults")
}

func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()

	settings, err := LoadSettings(filepath.Join(dir, "missing.yml"), "")
	require.NoError(t, err)
	assert.Equal(t, okr.DefaultThresholds(), settings.Thresholds)

	path := filepath.Join(dir, "settings.yml")
	require.NoError(t, os.WriteFile(path, []byte(`timezone: America/Chicago
max_depth: 3
thresholds:
  ahead: 90
  on_track: 70
  needs_attention: 50
`), 0o644))

	settings, err = LoadSettings(path, "")
	require.NoError(t, err)
	assert.Equal(t, okr.Thresholds{Ahead: 90, OnTrack: 70, NeedsAttention: 50}, settings.Thresholds)
	assert.Equal(t, "America/Chicago", settings.Location.String())

	settings, err = LoadSettings(path, "UTC")
	require.NoError(t, err)
	assert.Equal(t, "UTC", settings.Location.String())

	require.NoError(t, os.WriteFile(path, []byte("thresholds:\n  ahead: 50\n  on_track: 70\n  needs_attention: 10\n"), 0o644))
	_, err = LoadSettings(path, "")
	assert.Error(t, err)
}
