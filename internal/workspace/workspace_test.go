package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAndEnsureDirs(t *testing.T) {
	root := t.TempDir()
	ws, err := Resolve(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "data", "okrdash.db"), ws.DBPath)
	assert.Equal(t, filepath.Join(root, "okrs", "settings.yml"), ws.SettingsPath)

	assert.ErrorIs(t, ws.CheckInitialized(), ErrNotInitialized)

	require.NoError(t, ws.EnsureDirs())
	for _, dir := range []string{ws.OKRsDir, ws.DataDir, ws.SnapshotsDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	assert.NoError(t, ws.CheckInitialized())

	abs, err := ws.ResolvePath("reports/x.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "reports", "x.json"), abs)
}

func TestDatabasePath(t *testing.T) {
	root := t.TempDir()
	ws, err := New(root)
	require.NoError(t, err)

	path, err := ws.DatabasePath("")
	require.NoError(t, err)
	assert.Equal(t, ws.DBPath, path)

	path, err = ws.DatabasePath("alt/other.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "alt", "other.db"), path)

	path, err = ws.DatabasePath(":memory:")
	require.NoError(t, err)
	assert.Equal(t, ":memory:", path)
}

func TestResolveRejectsMissingRoot(t *testing.T) {
	_, err := Resolve(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	_, err = Resolve("  ")
	assert.Error(t, err)

	ws, err := New(filepath.Join(t.TempDir(), "later"))
	require.NoError(t, err)
	assert.NotEmpty(t, ws.OKRsDir)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandHome("~/okrs")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "okrs"), got)

	_, err = expandHome("~someone/okrs")
	assert.Error(t, err)

	got, err = expandHome("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", got)
}
