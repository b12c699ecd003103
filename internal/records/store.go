// Package records is the generic data-access layer: records addressed by table
// name and id, queried by field equality. The OKR repository on top of it
// turns records into typed values and validates them on the way in.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
)

// Table names known to the store.
const (
	TableObjectives  = "objectives"
	TableKeyResults  = "key_results"
	TableCycles      = "cycles"
	TableDepartments = "departments"
	TablePositions   = "positions"
	TableEmployees   = "employees"
	TableAuditEvents = "audit_events"
	TableJobRuns     = "job_runs"
)

var knownTables = map[string]struct{}{
	TableObjectives:  {},
	TableKeyResults:  {},
	TableCycles:      {},
	TableDepartments: {},
	TablePositions:   {},
	TableEmployees:   {},
	TableAuditEvents: {},
	TableJobRuns:     {},
}

var (
	ErrNotFound     = errors.New("record not found")
	ErrUnknownTable = errors.New("unknown table")
	ErrInvalidField = errors.New("invalid filter field")
)

var fieldPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Record is a plain JSON-shaped row. Numbers come back as float64.
type Record map[string]any

// ID returns the record's id field.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Filter matches records whose fields equal every given value.
type Filter map[string]any

// Store is the data-access interface every persistence backend implements.
type Store interface {
	Query(ctx context.Context, table string, filter Filter) ([]Record, error)
	Get(ctx context.Context, table, id string) (Record, error)
	// Insert stores a new record, assigning an id when none is set.
	Insert(ctx context.Context, table string, rec Record) (Record, error)
	// Update merges fields into an existing record; nil values delete fields.
	Update(ctx context.Context, table, id string, fields Record) (Record, error)
	// Put replaces or creates the record with rec's id.
	Put(ctx context.Context, table string, rec Record) (Record, error)
	Delete(ctx context.Context, table, id string) error
	Close() error
}

// Tables lists the known table names in sorted order.
func Tables() []string {
	out := make([]string, 0, len(knownTables))
	for name := range knownTables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func checkTable(table string) error {
	if _, ok := knownTables[table]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return nil
}

func checkFilter(filter Filter) error {
	for field := range filter {
		if !fieldPattern.MatchString(field) {
			return fmt.Errorf("%w: %q", ErrInvalidField, field)
		}
	}
	return nil
}

// normalize round-trips a value through JSON so every backend hands out the
// same shapes (float64 numbers, []any slices, map[string]any objects).
func normalize(rec Record) (Record, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var out Record
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if out == nil {
		out = Record{}
	}
	return out, nil
}

func normalizeValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode filter value: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode filter value: %w", err)
	}
	return out, nil
}

func merge(base, patch Record) Record {
	out := make(Record, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		if k == "id" {
			continue
		}
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// Encode converts a typed value into a Record.
func Encode(v any) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return rec, nil
}

// Decode converts a Record into the typed value pointed to by out.
func Decode(rec Record, out any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
