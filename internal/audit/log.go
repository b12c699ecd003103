package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"okrdash/internal/records"
)

// Event is one audit record.
type Event struct {
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Actor   string          `json:"actor"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Logger writes audit events into the record store's audit table.
type Logger struct {
	store records.Store
	now   func() time.Time
}

// NewLogger returns a Logger bound to the provided store.
func NewLogger(store records.Store) *Logger {
	return &Logger{store: store, now: time.Now}
}

// LogEvent writes an audit event. A nil logger drops the event.
func (l *Logger) LogEvent(ctx context.Context, actor string, eventType string, payload any) error {
	if l == nil || l.store == nil {
		return nil
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = l.store.Insert(ctx, records.TableAuditEvents, records.Record{
		"ts":      l.now().UTC().Format(time.RFC3339Nano),
		"actor":   actor,
		"type":    eventType,
		"payload": json.RawMessage(payloadJSON),
	})
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Events returns audit events oldest first, filtered by type when set.
func (l *Logger) Events(ctx context.Context, eventType string) ([]Event, error) {
	if l == nil || l.store == nil {
		return nil, nil
	}
	filter := records.Filter{}
	if eventType != "" {
		filter["type"] = eventType
	}
	recs, err := l.store.Query(ctx, records.TableAuditEvents, filter)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}

	events := make([]Event, 0, len(recs))
	for _, rec := range recs {
		var ev Event
		if err := records.Decode(rec, &ev); err != nil {
			return nil, fmt.Errorf("decode audit event %s: %w", rec.ID(), err)
		}
		events = append(events, ev)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].TS.Before(events[j].TS) })
	return events, nil
}
