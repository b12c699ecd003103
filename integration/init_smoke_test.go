package integration_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"okrdash/integration/harness"
)

func TestInitSmoke(t *testing.T) {
	binPath := harness.BuildBinary(t)
	runDir := t.TempDir()
	workspaceRoot := filepath.Join(t.TempDir(), "workspace-init")

	stdout, stderr, code := harness.Run(t, binPath, runDir, []string{"init", "--workspace", workspaceRoot})
	if code != 0 {
		t.Fatalf("okrdash init exit code %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}

	paths := []string{
		filepath.Join(workspaceRoot, "okrs"),
		filepath.Join(workspaceRoot, "data"),
		filepath.Join(workspaceRoot, "reports", "snapshots"),
		filepath.Join(workspaceRoot, "okrs", "cycles.yml"),
		filepath.Join(workspaceRoot, "okrs", "org.yml"),
		filepath.Join(workspaceRoot, "okrs", "permissions.yml"),
		filepath.Join(workspaceRoot, "okrs", "settings.yml"),
		filepath.Join(workspaceRoot, "data", "okrdash.db"),
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("missing init path %s: %v", path, err)
		}
	}

	diff := harness.MustRun(t, binPath, workspaceRoot, "import", "--dry-run")
	if !strings.Contains(diff, "OBJ-INIT-1") {
		t.Fatalf("dry run should list the seeded objective\n%s", diff)
	}

	harness.MustRun(t, binPath, workspaceRoot, "import")
	progress := harness.MustRun(t, binPath, workspaceRoot, "progress")
	if !strings.Contains(progress, "OBJ-INIT-1") || !strings.Contains(progress, "0%") {
		t.Fatalf("progress should show the seeded objective at 0%%\n%s", progress)
	}

	out := harness.MustRun(t, binPath, workspaceRoot, "checkin", "--kr", "KR-INIT-1", "--value", "1", "--actor", "people-lead")
	if !strings.Contains(out, "completed") {
		t.Fatalf("check-in should complete the key result\n%s", out)
	}

	harness.MustRun(t, binPath, workspaceRoot, "report")
	snapshots, err := filepath.Glob(filepath.Join(workspaceRoot, "reports", "snapshots", "*", "*.json"))
	if err != nil || len(snapshots) != 1 {
		t.Fatalf("expected one snapshot, got %v (%v)", snapshots, err)
	}

	exportDir := filepath.Join(t.TempDir(), "exported")
	exported := harness.MustRun(t, binPath, workspaceRoot, "export", "--out", exportDir)
	if !strings.Contains(exported, "company.yml") {
		t.Fatalf("export should write the company document\n%s", exported)
	}
	data, err := os.ReadFile(strings.TrimSpace(strings.Split(exported, "\n")[0]))
	if err != nil {
		t.Fatalf("read exported document: %v", err)
	}
	if !strings.Contains(string(data), "KR-INIT-1") {
		t.Fatalf("exported document missing key result\n%s", data)
	}

	requireAuditEvents(t, filepath.Join(workspaceRoot, "data", "okrdash.db"), []string{
		"workspace_init_started",
		"workspace_init_finished",
		"import_started",
		"import_finished",
		"checkin_applied",
		"report_finished",
		"export_finished",
	})
}
