// Package workspace lays out an okrdash workspace on disk:
//
//	okrs/               OKR documents, cycles.yml, org.yml, permissions.yml, settings.yml
//	data/okrdash.db     SQLite record store
//	reports/snapshots/  dashboard snapshots, one directory per cycle
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	okrsDirName      = "okrs"
	dataDirName      = "data"
	reportsDirName   = "reports"
	snapshotsDirName = "snapshots"

	// DBFileName is the record store under data/.
	DBFileName = "okrdash.db"
	// SettingsFileName holds thresholds, timezone and alignment depth under okrs/.
	SettingsFileName = "settings.yml"
)

// ErrNotInitialized is returned when a workspace has no okrs directory.
var ErrNotInitialized = errors.New("workspace not initialized")

// Workspace holds the absolute paths of one okrdash workspace.
type Workspace struct {
	Root         string
	OKRsDir      string
	DataDir      string
	DBPath       string
	ReportsDir   string
	SnapshotsDir string
	SettingsPath string
}

// Resolve expands root and requires it to be an existing directory.
func Resolve(root string) (*Workspace, error) {
	ws, err := New(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(ws.Root)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root is not a directory: %s", ws.Root)
	}
	return ws, nil
}

// ResolveRoot returns the absolute workspace root without requiring it to exist.
func ResolveRoot(root string) (string, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return "", fmt.Errorf("workspace root is required")
	}
	expanded, err := expandHome(root)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve workspace: %w", err)
	}
	return abs, nil
}

// New returns the layout under root without touching the disk.
func New(root string) (*Workspace, error) {
	abs, err := ResolveRoot(root)
	if err != nil {
		return nil, err
	}
	okrs := filepath.Join(abs, okrsDirName)
	data := filepath.Join(abs, dataDirName)
	reports := filepath.Join(abs, reportsDirName)
	return &Workspace{
		Root:         abs,
		OKRsDir:      okrs,
		DataDir:      data,
		DBPath:       filepath.Join(data, DBFileName),
		ReportsDir:   reports,
		SnapshotsDir: filepath.Join(reports, snapshotsDirName),
		SettingsPath: filepath.Join(okrs, SettingsFileName),
	}, nil
}

// EnsureDirs creates okrs/, data/ and reports/snapshots/.
func (w *Workspace) EnsureDirs() error {
	if w == nil {
		return fmt.Errorf("workspace is nil")
	}
	for _, dir := range []string{w.OKRsDir, w.DataDir, w.SnapshotsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure %s: %w", dir, err)
		}
	}
	return nil
}

// CheckInitialized reports ErrNotInitialized when okrs/ is missing.
func (w *Workspace) CheckInitialized() error {
	info, err := os.Stat(w.OKRsDir)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s has no %s directory (run okrdash init)", ErrNotInitialized, w.Root, okrsDirName)
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", w.OKRsDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrNotInitialized, w.OKRsDir)
	}
	return nil
}

// DatabasePath returns override resolved against Root, or DBPath when
// override is empty. ":memory:" passes through.
func (w *Workspace) DatabasePath(override string) (string, error) {
	override = strings.TrimSpace(override)
	switch override {
	case "":
		return w.DBPath, nil
	case ":memory:":
		return override, nil
	}
	path, err := w.ResolvePath(override)
	if err != nil {
		return "", fmt.Errorf("resolve database path: %w", err)
	}
	return path, nil
}

// ResolvePath makes path absolute, treating relative paths as relative to Root.
// An empty path stays empty.
func (w *Workspace) ResolvePath(path string) (string, error) {
	if w == nil {
		return "", fmt.Errorf("workspace is nil")
	}
	if strings.TrimSpace(path) == "" {
		return "", nil
	}
	expanded, err := expandHome(path)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(expanded) {
		return filepath.Clean(expanded), nil
	}
	return filepath.Join(w.Root, expanded), nil
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	switch {
	case path == "~":
		return home, nil
	case strings.HasPrefix(path, "~/"):
		return filepath.Join(home, path[2:]), nil
	default:
		return "", fmt.Errorf("unsupported home expansion: %s", path)
	}
}
