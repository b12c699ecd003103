package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okrdash/internal/audit"
	"okrdash/internal/checkin"
	"okrdash/internal/notify"
	"okrdash/internal/okr"
	"okrdash/internal/okrstore"
	"okrdash/internal/org"
	"okrdash/internal/records"
	"okrdash/internal/report"
)

type testEnv struct {
	handler http.Handler
	repo    *records.OKRRepository
	audit   *audit.Logger
	snapDir string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	ctx := context.Background()
	store := records.NewMemoryStore()
	repo := records.NewOKRRepository(store, okr.DefaultSettings())

	require.NoError(t, repo.SaveDirectory(ctx, org.NewDirectory(
		[]org.Department{{ID: "eng", Name: "Engineering"}},
		nil,
		[]org.Employee{{ID: "e1", Name: "Ana", DepartmentID: "eng", Active: true}},
	)))
	_, err := repo.SaveCycle(ctx, okr.Cycle{
		ID:        "2024-q2",
		Name:      "Q2 2024",
		Year:      2024,
		Quarter:   2,
		StartDate: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		Status:    okr.CycleActive,
		IsCurrent: true,
	})
	require.NoError(t, err)
	_, err = repo.SaveObjective(ctx, okr.Objective{
		ID: "c1", Title: "Grow", OwnerType: okr.OwnerCompany, OwnerID: "ceo", CycleID: "2024-q2", Status: okr.ObjectiveActive,
		KeyResults: []okr.KeyResult{{ID: "kr1", Title: "Hire", OwnerID: "e1", Target: 10, Weight: 1}},
	})
	require.NoError(t, err)
	_, err = repo.SaveObjective(ctx, okr.Objective{
		ID: "d1", Title: "Ship platform", OwnerType: okr.OwnerDepartment, OwnerID: "eng", ParentID: "c1", CycleID: "2024-q2", Status: okr.ObjectiveActive,
		KeyResults: []okr.KeyResult{{ID: "kr2", Title: "Launch", Target: 4, Current: 2, Weight: 1}},
	})
	require.NoError(t, err)

	perms := okrstore.DefaultPermissions()
	perms.Admins = []string{"admin"}
	reg := prometheus.NewRegistry()
	metrics := report.MustNewMetrics(reg)
	auditLog := audit.NewLogger(store)
	log := zerolog.Nop()
	snapDir := t.TempDir()

	srv := New(Config{
		Log:  log,
		Repo: repo,
		CheckIns: &checkin.Service{
			Repo:        repo,
			Permissions: perms,
			Notifier:    &notify.Recorder{},
			Audit:       auditLog,
			Metrics:     metrics,
			Log:         log,
		},
		Permissions: perms,
		Audit:       auditLog,
		Metrics:     metrics,
		Gatherer:    reg,
		SnapshotDir: snapDir,
		Now:         func() time.Time { return time.Date(2024, 5, 16, 12, 0, 0, 0, time.UTC) },
		DevMode:     true,
	})
	return testEnv{handler: srv.Handler(), repo: repo, audit: auditLog, snapDir: snapDir}
}

func (e testEnv) do(t *testing.T, method, path, body string, headers ...string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func TestReadEndpoints(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])

	code, body = env.do(t, http.MethodGet, "/api/cycles", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, body["cycles"], 1)

	code, body = env.do(t, http.MethodGet, "/api/cycles/current/progress", "")
	require.Equal(t, http.StatusOK, code)
	progress := body["progress"].(map[string]any)
	assert.Equal(t, 45.0, progress["completed_days"])
	assert.Equal(t, 50.0, progress["percentage"])

	code, body = env.do(t, http.MethodGet, "/api/objectives?owner_type=department", "")
	require.Equal(t, http.StatusOK, code)
	objectives := body["objectives"].([]any)
	require.Len(t, objectives, 1)
	dept := objectives[0].(map[string]any)
	assert.Equal(t, "d1", dept["id"])
	assert.Equal(t, 50.0, dept["effective_progress"])
	assert.Equal(t, "c1", dept["parent"].(map[string]any)["id"])

	code, body = env.do(t, http.MethodGet, "/api/objectives/c1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1.0, body["child_count"])
	assert.Equal(t, "Behind", body["label"])

	code, body = env.do(t, http.MethodGet, "/api/objectives/c1/children", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["children"], 1)

	code, _ = env.do(t, http.MethodGet, "/api/objectives/ghost", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, body = env.do(t, http.MethodGet, "/api/dashboard", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["objectives"], 2)
	assert.Equal(t, "2024-q2", body["cycle"].(map[string]any)["id"])

	code, _ = env.do(t, http.MethodGet, "/api/dashboard?cycle_id=1999-q1", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCheckInEndpoint(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodPost, "/api/key-results/kr1/check-ins", `{"value": 5, "note": "halfway"}`, ActorHeader, "e1")
	require.Equal(t, http.StatusOK, code)
	kr := body["key_result"].(map[string]any)
	assert.Equal(t, 5.0, kr["current_value"])
	assert.Equal(t, "on_track", body["status_change"].(map[string]any)["new_status"])

	code, _ = env.do(t, http.MethodPost, "/api/key-results/kr1/check-ins", `{"value": 6, "actor": "e2"}`)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = env.do(t, http.MethodPost, "/api/key-results/kr1/check-ins", `{"actor": "e1"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = env.do(t, http.MethodPost, "/api/key-results/kr1/check-ins", `{"value": -1, "actor": "e1"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.NotEmpty(t, body["fields"])

	code, _ = env.do(t, http.MethodPost, "/api/key-results/nope/check-ins", `{"value": 1, "actor": "e1"}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = env.do(t, http.MethodPost, "/api/key-results/kr1/check-ins", `{"value": 1, "bogus": true}`)
	assert.Equal(t, http.StatusBadRequest, code)

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `okrdash_checkins_total{result="applied"} 1`)
	assert.Contains(t, rec.Body.String(), `okrdash_checkins_total{result="denied"} 1`)
}

func TestOverrideEndpoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, _ := env.do(t, http.MethodPut, "/api/objectives/c1/override", `{"progress": 70, "by": "e1"}`)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = env.do(t, http.MethodPut, "/api/objectives/c1/override", `{"progress": 150, "by": "admin"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := env.do(t, http.MethodPut, "/api/objectives/c1/override", `{"progress": 70, "by": "admin", "reason": "board estimate"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 70.0, body["progress"])

	code, body = env.do(t, http.MethodGet, "/api/objectives/c1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "manual", body["progress_source"])
	assert.Equal(t, "On Track", body["label"])

	code, _ = env.do(t, http.MethodDelete, "/api/objectives/c1/override", "")
	assert.Equal(t, http.StatusForbidden, code)

	code, body = env.do(t, http.MethodDelete, "/api/objectives/c1/override", "", ActorHeader, "admin")
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["progress_override"])

	events, err := env.audit.Events(ctx, "")
	require.NoError(t, err)
	var types []string
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	assert.ElementsMatch(t, []string{"override_set", "override_cleared"}, types)

	code, _ = env.do(t, http.MethodPut, "/api/objectives/ghost/override", `{"progress": 10, "by": "admin"}`)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestLatestSnapshotEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, _ := env.do(t, http.MethodGet, "/api/dashboard/latest", "")
	assert.Equal(t, http.StatusNotFound, code)

	cycle, err := env.repo.GetCycle(ctx, "2024-q2")
	require.NoError(t, err)
	objectives, err := env.repo.ListObjectives(ctx, cycle.ID)
	require.NoError(t, err)
	written := time.Date(2024, 5, 15, 2, 0, 0, 0, time.UTC)
	dashboard := report.Build(objectives, cycle, env.repo.Settings(), written)
	require.NoError(t, report.WriteSnapshot(report.SnapshotPathForDate(env.snapDir, cycle.ID, written), dashboard))

	code, body := env.do(t, http.MethodGet, "/api/dashboard/latest", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "2024-05-15T02:00:00Z", body["generated_at"])
	assert.Len(t, body["objectives"], 2)

	code, _ = env.do(t, http.MethodGet, "/api/dashboard/latest?cycle_id=1999-q1", "")
	assert.Equal(t, http.StatusNotFound, code)
}
