// Package checkin applies key-result check-ins: new current values recorded
// by their owners (or delegates), with status tracking and notifications.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"okrdash/internal/audit"
	"okrdash/internal/notify"
	"okrdash/internal/okr"
	"okrdash/internal/okrstore"
	"okrdash/internal/org"
	"okrdash/internal/records"
	"okrdash/internal/report"
)

// ErrPermissionDenied is returned when the actor may not check in on a key result.
var ErrPermissionDenied = errors.New("permission denied")

// CheckIn is one new value for a key result.
type CheckIn struct {
	KRID   string       `json:"kr_id" yaml:"kr_id"`
	Value  float64      `json:"value" yaml:"value"`
	Actor  string       `json:"actor" yaml:"actor"`
	Note   string       `json:"note,omitempty" yaml:"note"`
	Status okr.KRStatus `json:"status,omitempty" yaml:"status"`
}

// StatusChange represents a change in KR status.
type StatusChange struct {
	KRID              string       `json:"kr_id"`
	ObjectiveID       string       `json:"objective_id"`
	Title             string       `json:"title"`
	OldStatus         okr.KRStatus `json:"old_status"`
	NewStatus         okr.KRStatus `json:"new_status"`
	Current           float64      `json:"current_value"`
	Target            float64      `json:"target_value"`
	Progress          int          `json:"progress"`
	ObjectiveProgress int          `json:"objective_progress"`
	Actor             string       `json:"actor"`
	Notified          int          `json:"notified"`
}

// Service applies check-ins against the repository.
type Service struct {
	Repo        *records.OKRRepository
	Permissions *okrstore.PermissionConfig
	Notifier    notify.Notifier
	Audit       *audit.Logger
	Metrics     *report.Metrics
	Log         zerolog.Logger
}

// Apply records each check-in in order and returns the status changes they
// caused. It stops at the first failing check-in; changes already applied are
// returned alongside the error. Notification failures are logged, not returned.
func (s *Service) Apply(ctx context.Context, checkIns []CheckIn) ([]StatusChange, error) {
	if s == nil || s.Repo == nil {
		return nil, fmt.Errorf("check-in service is not configured")
	}

	var (
		changes []StatusChange
		dir     *org.Directory
	)
	for _, ci := range checkIns {
		if err := ctx.Err(); err != nil {
			return changes, err
		}
		update, err := s.applyOne(ctx, ci)
		if err != nil {
			s.Metrics.ObserveCheckIn(checkInResult(err))
			return changes, fmt.Errorf("check-in %s: %w", ci.KRID, err)
		}
		s.Metrics.ObserveCheckIn("applied")

		if !update.StatusChanged() {
			continue
		}
		s.Metrics.ObserveStatusChange(update.After.Status)

		change := StatusChange{
			KRID:              update.After.ID,
			ObjectiveID:       update.Objective.ID,
			Title:             update.After.Title,
			OldStatus:         update.Before.Status,
			NewStatus:         update.After.Status,
			Current:           update.After.Current,
			Target:            update.After.Target,
			Progress:          update.After.Progress,
			ObjectiveProgress: update.Objective.Progress,
			Actor:             ci.Actor,
		}

		if s.Notifier != nil {
			if dir == nil {
				dir, err = s.Repo.Directory(ctx)
				if err != nil {
					return changes, fmt.Errorf("load directory: %w", err)
				}
			}
			change.Notified = s.notify(ctx, dir, update)
		}
		changes = append(changes, change)
	}
	return changes, nil
}

func (s *Service) applyOne(ctx context.Context, ci CheckIn) (records.KeyResultUpdate, error) {
	ci.KRID = strings.TrimSpace(ci.KRID)
	ci.Actor = strings.TrimSpace(ci.Actor)
	if ci.KRID == "" {
		return records.KeyResultUpdate{}, records.ValidationErrors{{Table: records.TableKeyResults, Field: "kr_id", Message: "is required"}}
	}
	if ci.Actor == "" {
		return records.KeyResultUpdate{}, records.ValidationErrors{{Table: records.TableKeyResults, ID: ci.KRID, Field: "actor", Message: "is required"}}
	}

	kr, err := s.Repo.GetKeyResult(ctx, ci.KRID)
	if err != nil {
		return records.KeyResultUpdate{}, err
	}
	owner := kr.OwnerID
	if owner == "" {
		obj, err := s.Repo.GetObjective(ctx, kr.ObjectiveID)
		if err != nil {
			return records.KeyResultUpdate{}, err
		}
		owner = obj.OwnerID
	}
	if !s.permissions().CanCheckIn(ci.Actor, owner) {
		return records.KeyResultUpdate{}, fmt.Errorf("%w: %s may not check in on %s (owner %s)", ErrPermissionDenied, ci.Actor, ci.KRID, owner)
	}

	update, err := s.Repo.UpdateKeyResult(ctx, ci.KRID, ci.Value, ci.Status)
	if err != nil {
		return records.KeyResultUpdate{}, err
	}

	payload := map[string]any{
		"kr_id":        ci.KRID,
		"objective_id": update.Objective.ID,
		"value":        ci.Value,
		"old_status":   update.Before.Status,
		"new_status":   update.After.Status,
		"progress":     update.After.Progress,
	}
	if ci.Note != "" {
		payload["note"] = ci.Note
	}
	if err := s.Audit.LogEvent(ctx, ci.Actor, "checkin_applied", payload); err != nil {
		s.Log.Warn().Err(err).Str("kr_id", ci.KRID).Msg("audit check-in failed")
	}
	s.Log.Info().
		Str("kr_id", ci.KRID).
		Str("actor", ci.Actor).
		Float64("value", ci.Value).
		Str("status", string(update.After.Status)).
		Msg("check-in applied")
	return update, nil
}

// notify sends the status change to the key result's owner and, on
// completion, to every linked department, position and employee.
func (s *Service) notify(ctx context.Context, dir *org.Directory, update records.KeyResultUpdate) int {
	var selections []org.TargetSelection
	for _, owner := range []string{update.After.OwnerID, update.Objective.OwnerID} {
		if owner == "" {
			continue
		}
		if sel, ok := dir.Selection(org.TargetRef{Type: org.TargetEmployee, ID: owner}); ok {
			selections = append(selections, sel)
			break
		}
	}
	if update.After.Status == okr.KRCompleted {
		selections = append(selections, okr.ResolveLinkTargetsIn(update.After, dir)...)
	}
	if len(selections) == 0 {
		return 0
	}

	dispatcher := &notify.Dispatcher{Directory: dir, Notifier: s.Notifier, Log: s.Log}
	sent, err := dispatcher.Fanout(ctx, selections, notify.FormatKRStatusChange(update.After, update.Before.Status))
	if err != nil {
		s.Log.Warn().Err(err).Str("kr_id", update.After.ID).Msg("status change notification incomplete")
	}
	return sent
}

func (s *Service) permissions() *okrstore.PermissionConfig {
	if s.Permissions == nil {
		return okrstore.DefaultPermissions()
	}
	return s.Permissions
}

func checkInResult(err error) string {
	var verrs records.ValidationErrors
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "denied"
	case errors.As(err, &verrs), errors.Is(err, records.ErrNotFound):
		return "rejected"
	default:
		return "failed"
	}
}
