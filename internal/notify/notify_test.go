package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okrdash/internal/okr"
	"okrdash/internal/org"
)

type failingNotifier struct{ failFor string }

func (f failingNotifier) Send(ctx context.Context, msg Message) error {
	if msg.RecipientID == f.failFor {
		return errors.New("mailbox full")
	}
	return nil
}

func directory() *org.Directory {
	return org.NewDirectory(
		[]org.Department{{ID: "eng", Name: "Engineering"}},
		[]org.Position{{ID: "lead", Title: "Lead"}},
		[]org.Employee{
			{ID: "e1", Name: "Ana", Email: "ana@example.com", DepartmentID: "eng", Active: true},
			{ID: "e2", Name: "Bo", DepartmentID: "eng", PositionID: "lead", Active: true},
			{ID: "e3", Name: "Cy", DepartmentID: "eng", Active: false},
		},
	)
}

func TestFanoutDedupesRecipients(t *testing.T) {
	rec := &Recorder{}
	d := &Dispatcher{
		Directory: directory(),
		Notifier:  rec,
		Log:       zerolog.Nop(),
		Now:       func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) },
	}

	sent, err := d.Fanout(context.Background(), []org.TargetSelection{
		{Type: org.TargetDepartment, ID: "eng"},
		{Type: org.TargetPosition, ID: "lead"},
		{Type: org.TargetEmployee, ID: "e1"},
	}, Message{Kind: KindKRCompleted, Title: "done"})
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	msgs := rec.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "e1", msgs[0].RecipientID)
	assert.Equal(t, "ana@example.com", msgs[0].Email)
	assert.Equal(t, "e2", msgs[1].RecipientID)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), msgs[0].At)
}

func TestFanoutContinuesAfterFailure(t *testing.T) {
	d := &Dispatcher{Directory: directory(), Notifier: failingNotifier{failFor: "e1"}, Log: zerolog.Nop()}
	sent, err := d.Fanout(context.Background(), []org.TargetSelection{{Type: org.TargetDepartment, ID: "eng"}}, Message{})
	assert.Error(t, err)
	assert.Equal(t, 1, sent)
}

func TestFanoutWithoutNotifier(t *testing.T) {
	var d *Dispatcher
	sent, err := d.Fanout(context.Background(), nil, Message{})
	assert.NoError(t, err)
	assert.Zero(t, sent)
}

func TestFormatKRStatusChange(t *testing.T) {
	kr := okr.KeyResult{ID: "kr1", ObjectiveID: "o1", Title: "Hire engineers", Current: 3, Target: 5, Status: okr.KRAtRisk}
	msg := FormatKRStatusChange(kr, okr.KROnTrack)
	assert.Equal(t, KindKRStatusChange, msg.Kind)
	assert.Equal(t, "Key result at risk", msg.Title)
	assert.Equal(t, "Hire engineers: on_track → at_risk (3/5)", msg.Body)

	kr.Status = okr.KRCompleted
	kr.Current = 5
	kr.Unit = "people"
	msg = FormatKRStatusChange(kr, okr.KRAtRisk)
	assert.Equal(t, KindKRCompleted, msg.Kind)
	assert.Equal(t, "Hire engineers (5/5 people)", msg.Body)
}

func TestMultiJoinsErrors(t *testing.T) {
	rec := &Recorder{}
	m := Multi{rec, failingNotifier{failFor: "x"}, nil}
	err := m.Send(context.Background(), Message{RecipientID: "x"})
	assert.Error(t, err)
	assert.Len(t, rec.Messages(), 1)
}
