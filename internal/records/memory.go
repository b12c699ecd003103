package records

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and throwaway runs.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]map[string]Record
}

func NewMemoryStore() *MemoryStore {
	tables := make(map[string]map[string]Record, len(knownTables))
	for name := range knownTables {
		tables[name] = make(map[string]Record)
	}
	return &MemoryStore{tables: tables}
}

func (m *MemoryStore) Query(ctx context.Context, table string, filter Filter) ([]Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if err := checkFilter(filter); err != nil {
		return nil, err
	}
	want := make(map[string]any, len(filter))
	for field, value := range filter {
		v, err := normalizeValue(value)
		if err != nil {
			return nil, err
		}
		switch v.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("%w: %q must be a scalar", ErrInvalidField, field)
		}
		want[field] = v
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for _, rec := range m.tables[table] {
		if matches(rec, want) {
			out = append(out, copyRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

func (m *MemoryStore) Get(ctx context.Context, table, id string) (Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.tables[table][id]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	return copyRecord(rec), nil
}

func (m *MemoryStore) Insert(ctx context.Context, table string, rec Record) (Record, error) {
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

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tables[table][rec.ID()]; exists {
		return nil, fmt.Errorf("insert %s %s: duplicate id", table, rec.ID())
	}
	m.tables[table][rec.ID()] = rec
	return copyRecord(rec), nil
}

func (m *MemoryStore) Update(ctx context.Context, table, id string, fields Record) (Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	patch, err := normalize(fields)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.tables[table][id]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	updated := merge(existing, patch)
	updated["id"] = id
	m.tables[table][id] = updated
	return copyRecord(updated), nil
}

func (m *MemoryStore) Put(ctx context.Context, table string, rec Record) (Record, error) {
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

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table][rec.ID()] = rec
	return copyRecord(rec), nil
}

func (m *MemoryStore) Delete(ctx context.Context, table, id string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[table][id]; !ok {
		return fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	delete(m.tables[table], id)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

func matches(rec Record, want map[string]any) bool {
	for field, value := range want {
		got, ok := rec[field]
		if value == nil {
			if ok && got != nil {
				return false
			}
			continue
		}
		if !ok || got != value {
			return false
		}
	}
	return true
}

// copyRecord is shallow: nested values are only ever replaced, never mutated.
func copyRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
