package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNoSnapshot is returned when a cycle has no snapshot on disk yet.
var ErrNoSnapshot = errors.New("no snapshot found")

func WriteSnapshot(path string, dashboard Dashboard) error {
	if path == "" {
		return fmt.Errorf("snapshot path is required")
	}
	if dashboard.GeneratedAt == "" {
		return fmt.Errorf("snapshot generated_at is required")
	}
	dashboard.SchemaVersion = DashboardSchemaVersion

	data, err := json.MarshalIndent(dashboard, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

func LoadSnapshot(path string) (*Dashboard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var d Dashboard
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if d.SchemaVersion != DashboardSchemaVersion {
		return nil, fmt.Errorf("unsupported snapshot schema_version %d", d.SchemaVersion)
	}
	return &d, nil
}

// SnapshotPathForDate names a snapshot after the cycle and the UTC date.
func SnapshotPathForDate(dir, cycleID string, asOf time.Time) string {
	date := asOf.UTC().Format("2006-01-02")
	if cycleID == "" {
		return filepath.Join(dir, date+".json")
	}
	return filepath.Join(dir, cycleID, date+".json")
}

func LatestSnapshotPath(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w in %s", ErrNoSnapshot, dir)
	}
	if err != nil {
		return "", fmt.Errorf("read snapshots dir: %w", err)
	}
	var candidates []string
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".json") {
			continue
		}
		// YYYY-MM-DD.json sorts chronologically.
		candidates = append(candidates, filepath.Join(dir, ent.Name()))
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoSnapshot, dir)
	}
	sort.Strings(candidates)
	return candidates[len(candidates)-1], nil
}

// LatestSnapshot loads the newest snapshot written for cycleID under dir.
func LatestSnapshot(dir, cycleID string) (*Dashboard, error) {
	path, err := LatestSnapshotPath(filepath.Join(dir, cycleID))
	if err != nil {
		return nil, err
	}
	return LoadSnapshot(path)
}
