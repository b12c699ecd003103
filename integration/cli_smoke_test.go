package integration_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"okrdash/integration/harness"
)

type dashboardOut struct {
	Cycle struct {
		ID string `json:"id"`
	} `json:"cycle"`
	Objectives []struct {
		ID       string `json:"id"`
		ParentID string `json:"parent_okr_id"`
		Progress int    `json:"progress"`
		Label    string `json:"label"`
	} `json:"objectives"`
	Average int `json:"average_progress"`
}

func (d dashboardOut) progress(id string) int {
	for _, o := range d.Objectives {
		if o.ID == id {
			return o.Progress
		}
	}
	return -1
}

func TestCLISmoke(t *testing.T) {
	binPath := harness.BuildBinary(t)
	runDir := t.TempDir()

	stdout, stderr, code := harness.Run(t, binPath, runDir, []string{"--help"})
	if code != 0 {
		t.Fatalf("okrdash --help exit code %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}
	if !strings.Contains(stdout+stderr, "OKR progress and alignment dashboard") {
		t.Fatalf("expected help output to include header\nstdout:\n%s\nstderr:\n%s", stdout, stderr)
	}

	_, _, code = harness.Run(t, binPath, runDir, []string{"bogus"})
	if code != 1 {
		t.Fatalf("unknown command should exit 1, got %d", code)
	}
}

func TestFixtureWorkflow(t *testing.T) {
	binPath := harness.BuildBinary(t)
	workspace := harness.FixtureWorkspace(t, "workspace-min")

	imported := harness.MustRun(t, binPath, workspace, "import")
	if !strings.Contains(imported, "3 objectives, 4 key results") {
		t.Fatalf("unexpected import summary\n%s", imported)
	}

	var before dashboardOut
	if err := json.Unmarshal([]byte(harness.MustRun(t, binPath, workspace, "progress", "--json")), &before); err != nil {
		t.Fatalf("decode progress: %v", err)
	}
	if before.Cycle.ID != "2024-q2" {
		t.Fatalf("expected current cycle 2024-q2, got %q", before.Cycle.ID)
	}
	for id, want := range map[string]int{"CO-1": 33, "ENG-1": 20, "ANA-1": 25} {
		if got := before.progress(id); got != want {
			t.Fatalf("%s progress = %d, want %d", id, got, want)
		}
	}

	// bo checks in for ana through the delegation in permissions.yml
	out := harness.MustRun(t, binPath, workspace, "checkin", "--kr", "ANA-1-KR-1", "--value", "40", "--actor", "bo")
	if !strings.Contains(out, "completed") {
		t.Fatalf("expected the key result to complete\n%s", out)
	}

	stdout, stderr, code := harness.Run(t, binPath, workspace, []string{
		"--workspace", workspace, "checkin", "--kr", "ENG-1-KR-1", "--value", "3", "--actor", "cy",
	})
	if code != 1 || !strings.Contains(stderr, "permission") {
		t.Fatalf("check-in by a non-owner should be denied, exit %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}

	cycles := harness.MustRun(t, binPath, workspace, "cycle")
	if !strings.Contains(cycles, "*") || !strings.Contains(cycles, "2024-q2") {
		t.Fatalf("cycle listing should mark 2024-q2 current\n%s", cycles)
	}

	snapshot := filepath.Join(workspace, "reports", "q2.json")
	harness.MustRun(t, binPath, workspace, "report", "--cycle", "2024-q2", "--out", snapshot)
	data, err := os.ReadFile(snapshot)
	if err != nil {
		t.Fatalf("snapshot not written at %s: %v", snapshot, err)
	}
	var after dashboardOut
	if err := json.Unmarshal(data, &after); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if got := after.progress("ANA-1"); got != 100 {
		t.Fatalf("ANA-1 progress after check-in = %d, want 100", got)
	}
	if got := after.progress("ENG-1"); got != 20 {
		t.Fatalf("denied check-in must not change ENG-1, got %d", got)
	}

	requireAuditEvents(t, filepath.Join(workspace, "data", "okrdash.db"), []string{
		"import_started",
		"import_finished",
		"checkin_started",
		"checkin_applied",
		"checkin_finished",
		"report_started",
		"report_finished",
	})

	engineDB := filepath.Join(harness.RepoRoot(t), "data", "okrdash.db")
	if _, err := os.Stat(engineDB); err == nil {
		t.Fatalf("engine repo database should not exist at %s", engineDB)
	} else if !os.IsNotExist(err) {
		t.Fatalf("stat engine database: %v", err)
	}
}
