package harness

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"sort"
	"strings"
	"testing"
)

// Run executes the CLI in workDir and returns stdout, stderr and the exit code.
// OKRDASH_* variables from the caller's environment are dropped so a
// developer's settings never leak into a test workspace.
func Run(t *testing.T, binPath, workDir string, args []string) (string, string, int) {
	t.Helper()
	return RunWithEnv(t, binPath, workDir, args, nil)
}

// RunWithEnv is Run with extra environment variables.
func RunWithEnv(t *testing.T, binPath, workDir string, args []string, env map[string]string) (string, string, int) {
	t.Helper()

	cmd := exec.Command(binPath, args...)
	cmd.Dir = workDir
	cmd.Env = testEnv(env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	code := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			t.Fatalf("run %s: %v", binPath, err)
		}
		code = exitErr.ExitCode()
	}
	return stdout.String(), stderr.String(), code
}

// MustRun executes the CLI against workspace and fails the test on a
// non-zero exit. It returns stdout.
func MustRun(t *testing.T, binPath, workspace string, args ...string) string {
	t.Helper()
	full := append([]string{"--workspace", workspace}, args...)
	stdout, stderr, code := RunWithEnv(t, binPath, workspace, full, map[string]string{"OKRDASH_LOG_LEVEL": "warn"})
	if code != 0 {
		t.Fatalf("okrdash %s exit code %d\nstdout:\n%s\nstderr:\n%s", strings.Join(args, " "), code, stdout, stderr)
	}
	return stdout
}

func testEnv(overrides map[string]string) []string {
	env := make(map[string]string)
	for _, entry := range os.Environ() {
		key, val, _ := strings.Cut(entry, "=")
		if strings.HasPrefix(key, "OKRDASH_") {
			continue
		}
		env[key] = val
	}
	for k, v := range overrides {
		env[k] = v
	}

	merged := make([]string, 0, len(env))
	for k, v := range env {
		merged = append(merged, k+"="+v)
	}
	sort.Strings(merged)
	return merged
}
