// Package harness builds the okrdash binary and drives it against temporary
// workspaces.
package harness

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
)

// BinaryEnv points the harness at a prebuilt okrdash binary instead of
// compiling one.
const BinaryEnv = "OKRDASH_TEST_BIN"

var (
	rootOnce sync.Once
	rootPath string
	rootErr  error

	binOnce sync.Once
	binPath string
	binErr  error
)

// RepoRoot returns the directory holding go.mod.
func RepoRoot(t *testing.T) string {
	t.Helper()
	rootOnce.Do(func() {
		_, file, _, ok := runtime.Caller(0)
		if !ok {
			rootErr = fmt.Errorf("runtime.Caller failed")
			return
		}
		// integration/harness/build.go
		root := filepath.Dir(filepath.Dir(filepath.Dir(file)))
		if _, err := os.Stat(filepath.Join(root, "go.mod")); err != nil {
			rootErr = fmt.Errorf("verify repo root: %w", err)
			return
		}
		rootPath = root
	})
	if rootErr != nil {
		t.Fatalf("resolve repo root: %v", rootErr)
	}
	return rootPath
}

// BuildBinary returns the okrdash CLI, compiling it at most once per test run.
func BuildBinary(t *testing.T) string {
	t.Helper()
	root := RepoRoot(t)
	binOnce.Do(func() {
		if prebuilt := os.Getenv(BinaryEnv); prebuilt != "" {
			if _, err := os.Stat(prebuilt); err != nil {
				binErr = fmt.Errorf("%s: %w", BinaryEnv, err)
				return
			}
			binPath = prebuilt
			return
		}
		binPath, binErr = goBuild(root)
	})
	if binErr != nil {
		t.Fatalf("build okrdash binary: %v", binErr)
	}
	return binPath
}

func goBuild(root string) (string, error) {
	dir, err := os.MkdirTemp("", "okrdash-bin-")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	out := filepath.Join(dir, "okrdash")
	if runtime.GOOS == "windows" {
		out += ".exe"
	}

	cmd := exec.Command("go", "build", "-trimpath", "-o", out, "./cmd/okrdash")
	cmd.Dir = root
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("go build failed: %w\nstderr:\n%s", err, stderr.String())
	}
	return out, nil
}
