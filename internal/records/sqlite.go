package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps each table as (id, JSON data) rows in a SQLite database.
type SQLiteStore struct {
	DBPath string
	db     *sql.DB
}

// OpenSQLite opens or creates the database at path. ":memory:" opens a
// private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := path
	inMemory := path == ":memory:" || strings.HasPrefix(path, "file::memory:")
	if !inMemory {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return nil, fmt.Errorf("ensure db dir: %w", err)
		}
		path = absPath
		dsn = absPath
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if inMemory {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &SQLiteStore{DBPath: path, db: db}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) ensureSchema() error {
	var b strings.Builder
	for _, table := range Tables() {
		fmt.Fprintf(&b, `
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	data TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`, table)
	}
	b.WriteString(`
CREATE INDEX IF NOT EXISTS idx_key_results_objective ON key_results(json_extract(data, '$.objective_id'));
CREATE INDEX IF NOT EXISTS idx_objectives_cycle ON objectives(json_extract(data, '$.cycle_id'));
`)
	if _, err := s.db.Exec(b.String()); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Query returns records matching filter, ordered by id.
func (s *SQLiteStore) Query(ctx context.Context, table string, filter Filter) ([]Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if err := checkFilter(filter); err != nil {
		return nil, err
	}

	fields := make([]string, 0, len(filter))
	for field := range filter {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	query := fmt.Sprintf("SELECT data FROM %s", table)
	var where []string
	var args []any
	for _, field := range fields {
		value, err := normalizeValue(filter[field])
		if err != nil {
			return nil, err
		}
		path := "$." + field
		switch v := value.(type) {
		case nil:
			where = append(where, "json_extract(data, ?) IS NULL")
			args = append(args, path)
		case bool:
			where = append(where, "json_extract(data, ?) = ?")
			args = append(args, path, boolToInt(v))
		case map[string]any, []any:
			return nil, fmt.Errorf("%w: %q must be a scalar", ErrInvalidField, field)
		default:
			where = append(where, "json_extract(data, ?) = ?")
			args = append(args, path, v)
		}
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		rec, err := unmarshalRecord(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s row: %w", table, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}

// Get returns the record with id or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, table, id string) (Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	var data string
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT data FROM %s WHERE id = ?", table), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", table, id, err)
	}
	return unmarshalRecord(data)
}

// Insert adds a new record. Inserting an existing id fails.
func (s *SQLiteStore) Insert(ctx context.Context, table string, rec Record) (Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	rec, err := normalize(rec)
	if err != nil {
		return nil, err
	}
	if rec.ID() == "" {
		rec["id"] = uuid.NewString()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (id, data, created_at, updated_at) VALUES (?, ?, ?, ?)", table),
		rec.ID(), string(data), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert %s %s: %w", table, rec.ID(), err)
	}
	return rec, nil
}

// Update merges fields into the stored record inside a transaction.
func (s *SQLiteStore) Update(ctx context.Context, table, id string, fields Record) (Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	patch, err := normalize(fields)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var data string
	err = tx.QueryRowContext(ctx, fmt.Sprintf("SELECT data FROM %s WHERE id = ?", table), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", table, id, err)
	}
	existing, err := unmarshalRecord(data)
	if err != nil {
		return nil, err
	}

	updated := merge(existing, patch)
	updated["id"] = id
	encoded, err := json.Marshal(updated)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET data = ?, updated_at = ? WHERE id = ?", table),
		string(encoded), time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update %s %s: %w", table, id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return updated, nil
}

// Put replaces the record with rec's id, creating it when absent.
func (s *SQLiteStore) Put(ctx context.Context, table string, rec Record) (Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	rec, err := normalize(rec)
	if err != nil {
		return nil, err
	}
	if rec.ID() == "" {
		rec["id"] = uuid.NewString()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, data, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, table), rec.ID(), string(data), now, now)
	if err != nil {
		return nil, fmt.Errorf("put %s %s: %w", table, rec.ID(), err)
	}
	return rec, nil
}

// Delete removes the record with id or returns ErrNotFound.
func (s *SQLiteStore) Delete(ctx context.Context, table, id string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", table, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	return nil
}

func unmarshalRecord(data string) (Record, error) {
	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
