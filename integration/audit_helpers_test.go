package integration_test

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

// auditCounts opens the workspace database read-only and counts audit events
// by type.
func auditCounts(t *testing.T, dbPath string) map[string]int {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+dbPath+"?mode=ro")
	if err != nil {
		t.Fatalf("open okrdash db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT json_extract(data, '$.type') AS event_type, COUNT(*)
		FROM audit_events GROUP BY event_type`)
	if err != nil {
		t.Fatalf("query audit events: %v", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var eventType sql.NullString
		var n int
		if err := rows.Scan(&eventType, &n); err != nil {
			t.Fatalf("scan audit event: %v", err)
		}
		counts[eventType.String] += n
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("iterate audit events: %v", err)
	}
	return counts
}

func requireAuditEvents(t *testing.T, dbPath string, want []string) {
	t.Helper()
	counts := auditCounts(t, dbPath)
	for _, eventType := range want {
		if counts[eventType] == 0 {
			t.Fatalf("missing audit event %s in %s (have %v)", eventType, dbPath, counts)
		}
	}
}
