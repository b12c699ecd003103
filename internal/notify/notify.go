// Package notify delivers check-in notifications. Delivery itself is a
// collaborator behind the Notifier interface; this package formats messages
// and fans them out to the employees behind a set of target selections.
package notify

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"okrdash/internal/okr"
	"okrdash/internal/org"
)

// Kind classifies a message.
type Kind string

const (
	KindKRStatusChange Kind = "kr_status_change"
	KindKRCompleted    Kind = "kr_completed"
)

// Message is one notification addressed to one recipient.
type Message struct {
	Kind        Kind      `json:"kind"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	KRID        string    `json:"kr_id,omitempty"`
	ObjectiveID string    `json:"objective_id,omitempty"`
	RecipientID string    `json:"recipient_id,omitempty"`
	Email       string    `json:"email,omitempty"`
	At          time.Time `json:"at"`
}

// Notifier delivers a single message.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to a structured log instead of delivering them.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) Send(ctx context.Context, msg Message) error {
	n.Log.Info().
		Str("kind", string(msg.Kind)).
		Str("recipient", msg.RecipientID).
		Str("kr_id", msg.KRID).
		Str("title", msg.Title).
		Msg(msg.Body)
	return nil
}

// DesktopNotifier shows messages as macOS notifications. It is a no-op on
// other platforms or when disabled.
type DesktopNotifier struct {
	Enabled bool
}

func (n DesktopNotifier) Send(ctx context.Context, msg Message) error {
	if !n.Enabled || runtime.GOOS != "darwin" {
		return nil
	}
	title := strings.ReplaceAll(msg.Title, `"`, `\"`)
	body := strings.ReplaceAll(msg.Body, `"`, `\"`)
	script := fmt.Sprintf(`display notification "%s" with title "%s"`, body, title)
	if err := exec.CommandContext(ctx, "osascript", "-e", script).Run(); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

// Recorder keeps every message it is sent.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Send(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Multi sends each message to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FormatKRStatusChange formats a key-result status change. Completion gets
// its own message.
func FormatKRStatusChange(kr okr.KeyResult, oldStatus okr.KRStatus) Message {
	if kr.Status == okr.KRCompleted {
		return FormatKRCompleted(kr)
	}
	msg := Message{
		Kind:        KindKRStatusChange,
		KRID:        kr.ID,
		ObjectiveID: kr.ObjectiveID,
	}
	switch kr.Status {
	case okr.KRAtRisk:
		msg.Title = "Key result at risk"
	case okr.KROnTrack:
		msg.Title = "Key result on track"
	default:
		msg.Title = "Key result status update"
	}
	msg.Body = fmt.Sprintf("%s: %s → %s (%s)", kr.Title, statusName(oldStatus), kr.Status, formatValues(kr))
	return msg
}

// FormatKRCompleted formats a key-result completion message.
func FormatKRCompleted(kr okr.KeyResult) Message {
	return Message{
		Kind:        KindKRCompleted,
		Title:       "Key result completed",
		Body:        fmt.Sprintf("%s (%s)", kr.Title, formatValues(kr)),
		KRID:        kr.ID,
		ObjectiveID: kr.ObjectiveID,
	}
}

func formatValues(kr okr.KeyResult) string {
	if kr.Unit != "" {
		return fmt.Sprintf("%g/%g %s", kr.Current, kr.Target, kr.Unit)
	}
	return fmt.Sprintf("%g/%g", kr.Current, kr.Target)
}

func statusName(s okr.KRStatus) string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// Dispatcher fans a message out to the employees behind target selections.
type Dispatcher struct {
	Directory *org.Directory
	Notifier  Notifier
	Log       zerolog.Logger
	Now       func() time.Time
}

// Fanout sends one copy of msg per resolved recipient and returns how many
// were delivered. Delivery failures are logged and joined into the error;
// remaining recipients are still attempted.
func (d *Dispatcher) Fanout(ctx context.Context, selections []org.TargetSelection, msg Message) (int, error) {
	if d == nil || d.Notifier == nil {
		return 0, nil
	}
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	if msg.At.IsZero() {
		msg.At = now().UTC()
	}

	var errs []error
	sent := 0
	for _, emp := range d.Directory.Recipients(selections) {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		personal := msg
		personal.RecipientID = emp.ID
		personal.Email = emp.Email
		if err := d.Notifier.Send(ctx, personal); err != nil {
			d.Log.Warn().Err(err).Str("recipient", emp.ID).Str("kr_id", msg.KRID).Msg("notification failed")
			errs = append(errs, fmt.Errorf("notify %s: %w", emp.ID, err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}
