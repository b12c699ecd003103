package records

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"okrdash/internal/okr"
	"okrdash/internal/org"
)

var (
	ErrObjectiveExists      = errors.New("objective already exists")
	ErrObjectiveHasChildren = errors.New("objective has aligned children")
)

// OKRRepository is the typed view over a Store. Records are validated on the
// way in and derived progress is recomputed before every write.
type OKRRepository struct {
	store    Store
	settings okr.Settings
	now      func() time.Time
}

func NewOKRRepository(store Store, settings okr.Settings) *OKRRepository {
	return &OKRRepository{store: store, settings: settings, now: time.Now}
}

// Settings returns the engine settings the repository validates with.
func (r *OKRRepository) Settings() okr.Settings {
	return r.settings
}

// Store exposes the underlying record store.
func (r *OKRRepository) Store() Store {
	return r.store
}

// ListObjectives returns objectives with their key results, all cycles when
// cycleID is empty. Progress fields are recomputed on read.
func (r *OKRRepository) ListObjectives(ctx context.Context, cycleID string) ([]okr.Objective, error) {
	filter := Filter{}
	if cycleID != "" {
		filter["cycle_id"] = cycleID
	}
	recs, err := r.store.Query(ctx, TableObjectives, filter)
	if err != nil {
		return nil, fmt.Errorf("list objectives: %w", err)
	}
	krs, err := r.keyResultsByObjective(ctx, "")
	if err != nil {
		return nil, err
	}

	out := make([]okr.Objective, 0, len(recs))
	for _, rec := range recs {
		obj, err := decodeObjective(rec)
		if err != nil {
			return nil, err
		}
		obj.KeyResults = krs[obj.ID]
		obj.Recompute()
		out = append(out, obj)
	}
	return out, nil
}

// GetObjective returns one objective with its key results.
func (r *OKRRepository) GetObjective(ctx context.Context, id string) (okr.Objective, error) {
	rec, err := r.store.Get(ctx, TableObjectives, id)
	if err != nil {
		return okr.Objective{}, err
	}
	obj, err := decodeObjective(rec)
	if err != nil {
		return okr.Objective{}, err
	}
	krs, err := r.keyResultsByObjective(ctx, obj.ID)
	if err != nil {
		return okr.Objective{}, err
	}
	obj.KeyResults = krs[obj.ID]
	obj.Recompute()
	return obj, nil
}

// CreateObjective stores a new objective together with its key results.
func (r *OKRRepository) CreateObjective(ctx context.Context, obj okr.Objective) (okr.Objective, error) {
	if obj.ID != "" {
		if _, err := r.store.Get(ctx, TableObjectives, obj.ID); err == nil {
			return okr.Objective{}, fmt.Errorf("%w: %s", ErrObjectiveExists, obj.ID)
		} else if !errors.Is(err, ErrNotFound) {
			return okr.Objective{}, err
		}
	}
	return r.SaveObjective(ctx, obj)
}

// SaveObjective creates or fully replaces an objective. The key results in obj
// become the objective's complete set; stored ones not listed are removed.
// Alignment is checked against every stored objective before anything is
// written.
func (r *OKRRepository) SaveObjective(ctx context.Context, obj okr.Objective) (okr.Objective, error) {
	obj = normalizeObjective(obj)
	if errs := validateObjective(obj); len(errs) > 0 {
		return okr.Objective{}, errs
	}
	if obj.ID == "" {
		obj.ID = uuid.NewString()
	}

	all, err := r.ListObjectives(ctx, "")
	if err != nil {
		return okr.Objective{}, err
	}
	if err := okr.CheckAlignment(obj, all, r.settings); err != nil {
		return okr.Objective{}, err
	}
	for _, child := range okr.ResolveChildren(obj, all) {
		if err := okr.ValidateParent(child, obj); err != nil {
			return okr.Objective{}, fmt.Errorf("objective %s would orphan child %s: %w", obj.ID, child.ID, err)
		}
	}

	// keep a previously set override unless the caller replaced it
	if obj.Override == nil {
		if existing, err := r.store.Get(ctx, TableObjectives, obj.ID); err == nil {
			if prev, decodeErr := decodeObjective(existing); decodeErr == nil {
				obj.Override = prev.Override
			}
		}
	}

	stamp := r.now().UTC().Format(time.RFC3339)
	for i := range obj.KeyResults {
		kr := &obj.KeyResults[i]
		if kr.ID == "" {
			kr.ID = uuid.NewString()
		}
		kr.ObjectiveID = obj.ID
		if kr.UpdatedAt == "" {
			kr.UpdatedAt = stamp
		}
	}
	obj.Recompute()
	if errs, err := r.checkKeyResultOwnership(ctx, obj); err != nil {
		return okr.Objective{}, err
	} else if len(errs) > 0 {
		return okr.Objective{}, errs
	}

	stale, err := r.keyResultsByObjective(ctx, obj.ID)
	if err != nil {
		return okr.Objective{}, err
	}
	keep := make(map[string]struct{}, len(obj.KeyResults))
	for i, kr := range obj.KeyResults {
		keep[kr.ID] = struct{}{}
		rec, err := encodeKeyResult(kr, i)
		if err != nil {
			return okr.Objective{}, err
		}
		if _, err := r.store.Put(ctx, TableKeyResults, rec); err != nil {
			return okr.Objective{}, fmt.Errorf("save key result %s: %w", kr.ID, err)
		}
	}
	for _, kr := range stale[obj.ID] {
		if _, ok := keep[kr.ID]; ok {
			continue
		}
		if err := r.store.Delete(ctx, TableKeyResults, kr.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return okr.Objective{}, fmt.Errorf("remove key result %s: %w", kr.ID, err)
		}
	}

	rec, err := encodeObjective(obj)
	if err != nil {
		return okr.Objective{}, err
	}
	if _, err := r.store.Put(ctx, TableObjectives, rec); err != nil {
		return okr.Objective{}, fmt.Errorf("save objective %s: %w", obj.ID, err)
	}
	return obj, nil
}

// checkKeyResultOwnership rejects key-result ids already stored under a
// different objective.
func (r *OKRRepository) checkKeyResultOwnership(ctx context.Context, obj okr.Objective) (ValidationErrors, error) {
	var errs ValidationErrors
	for _, kr := range obj.KeyResults {
		rec, err := r.store.Get(ctx, TableKeyResults, kr.ID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load key result %s: %w", kr.ID, err)
		}
		existing, err := decodeKeyResult(rec)
		if err != nil {
			return nil, err
		}
		if existing.ObjectiveID != "" && existing.ObjectiveID != obj.ID {
			errs = append(errs, ValidationError{
				Table:   TableKeyResults,
				ID:      kr.ID,
				Field:   "id",
				Message: fmt.Sprintf("belongs to objective %s", existing.ObjectiveID),
			})
		}
	}
	return errs, nil
}

// DeleteObjective removes an objective and its key results. Objectives that
// still have aligned children are refused.
func (r *OKRRepository) DeleteObjective(ctx context.Context, id string) error {
	obj, err := r.GetObjective(ctx, id)
	if err != nil {
		return err
	}
	children, err := r.store.Query(ctx, TableObjectives, Filter{"parent_okr_id": id})
	if err != nil {
		return fmt.Errorf("check children of %s: %w", id, err)
	}
	if len(children) > 0 {
		return fmt.Errorf("%w: %s has %d", ErrObjectiveHasChildren, id, len(children))
	}
	for _, kr := range obj.KeyResults {
		if err := r.store.Delete(ctx, TableKeyResults, kr.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("delete key result %s: %w", kr.ID, err)
		}
	}
	if err := r.store.Delete(ctx, TableObjectives, id); err != nil {
		return fmt.Errorf("delete objective %s: %w", id, err)
	}
	return nil
}

// GetKeyResult returns a key result with refreshed progress.
func (r *OKRRepository) GetKeyResult(ctx context.Context, id string) (okr.KeyResult, error) {
	rec, err := r.store.Get(ctx, TableKeyResults, id)
	if err != nil {
		return okr.KeyResult{}, err
	}
	kr, err := decodeKeyResult(rec)
	if err != nil {
		return okr.KeyResult{}, err
	}
	kr.Refresh()
	return kr, nil
}

// KeyResultUpdate is the outcome of writing a new current value.
type KeyResultUpdate struct {
	Before    okr.KeyResult
	After     okr.KeyResult
	Objective okr.Objective
}

// StatusChanged reports whether the derived status moved.
func (u KeyResultUpdate) StatusChanged() bool {
	return u.Before.Status != u.After.Status
}

// UpdateKeyResult records a new current value and, when status is non-empty,
// an explicit status. Without one, not_started and completed are re-derived
// from the new progress while at_risk and on_track are kept. The parent
// objective's progress is recomputed and stored.
func (r *OKRRepository) UpdateKeyResult(ctx context.Context, id string, value float64, status okr.KRStatus) (KeyResultUpdate, error) {
	if value < 0 {
		return KeyResultUpdate{}, ValidationErrors{{Table: TableKeyResults, ID: id, Field: "current_value", Message: "must not be negative"}}
	}
	if _, err := okr.ParseKRStatus(string(status)); err != nil {
		return KeyResultUpdate{}, ValidationErrors{{Table: TableKeyResults, ID: id, Field: "status", Message: err.Error()}}
	}

	rec, err := r.store.Get(ctx, TableKeyResults, id)
	if err != nil {
		return KeyResultUpdate{}, err
	}
	before, err := decodeKeyResult(rec)
	if err != nil {
		return KeyResultUpdate{}, err
	}
	before.Refresh()

	after := before
	after.Current = value
	switch {
	case status != "":
		after.Status = status
	case before.Status == okr.KRNotStarted || before.Status == okr.KRCompleted:
		after.Status = ""
	}
	after.UpdatedAt = r.now().UTC().Format(time.RFC3339)
	after.Refresh()

	position, _ := rec["position"].(float64)
	encoded, err := encodeKeyResult(after, int(position))
	if err != nil {
		return KeyResultUpdate{}, err
	}
	if _, err := r.store.Put(ctx, TableKeyResults, encoded); err != nil {
		return KeyResultUpdate{}, fmt.Errorf("save key result %s: %w", id, err)
	}

	obj, err := r.refreshObjective(ctx, after.ObjectiveID)
	if err != nil {
		return KeyResultUpdate{}, err
	}
	return KeyResultUpdate{Before: before, After: after, Objective: obj}, nil
}

// SetOverride pins an objective's progress through the administrative action.
func (r *OKRRepository) SetOverride(ctx context.Context, id string, override okr.ProgressOverride) (okr.Objective, error) {
	if strings.TrimSpace(override.By) == "" {
		return okr.Objective{}, ValidationErrors{{Table: TableObjectives, ID: id, Field: "progress_override.by", Message: "actor is required"}}
	}
	if override.Progress < 0 || override.Progress > 100 {
		return okr.Objective{}, ValidationErrors{{Table: TableObjectives, ID: id, Field: "progress_override.progress", Message: "must be between 0 and 100"}}
	}
	obj, err := r.GetObjective(ctx, id)
	if err != nil {
		return okr.Objective{}, err
	}
	if override.At.IsZero() {
		override.At = r.now().UTC()
	}
	obj.SetOverride(override)
	return obj, r.putObjective(ctx, obj)
}

// ClearOverride returns an objective to computed progress.
func (r *OKRRepository) ClearOverride(ctx context.Context, id string) (okr.Objective, error) {
	obj, err := r.GetObjective(ctx, id)
	if err != nil {
		return okr.Objective{}, err
	}
	obj.ClearOverride()
	return obj, r.putObjective(ctx, obj)
}

// RecomputeAll refreshes stored progress for every objective in a cycle and
// returns them.
func (r *OKRRepository) RecomputeAll(ctx context.Context, cycleID string) ([]okr.Objective, error) {
	objectives, err := r.ListObjectives(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	for _, obj := range objectives {
		if err := r.putObjective(ctx, obj); err != nil {
			return nil, err
		}
		for i, kr := range obj.KeyResults {
			rec, err := encodeKeyResult(kr, i)
			if err != nil {
				return nil, err
			}
			if _, err := r.store.Put(ctx, TableKeyResults, rec); err != nil {
				return nil, fmt.Errorf("save key result %s: %w", kr.ID, err)
			}
		}
	}
	return objectives, nil
}

func (r *OKRRepository) refreshObjective(ctx context.Context, id string) (okr.Objective, error) {
	obj, err := r.GetObjective(ctx, id)
	if err != nil {
		return okr.Objective{}, fmt.Errorf("load objective %s: %w", id, err)
	}
	return obj, r.putObjective(ctx, obj)
}

func (r *OKRRepository) putObjective(ctx context.Context, obj okr.Objective) error {
	rec, err := encodeObjective(obj)
	if err != nil {
		return err
	}
	if _, err := r.store.Put(ctx, TableObjectives, rec); err != nil {
		return fmt.Errorf("save objective %s: %w", obj.ID, err)
	}
	return nil
}

// keyResultsByObjective groups stored key results by objective, in their
// saved order. An empty objectiveID loads every key result.
func (r *OKRRepository) keyResultsByObjective(ctx context.Context, objectiveID string) (map[string][]okr.KeyResult, error) {
	filter := Filter{}
	if objectiveID != "" {
		filter["objective_id"] = objectiveID
	}
	recs, err := r.store.Query(ctx, TableKeyResults, filter)
	if err != nil {
		return nil, fmt.Errorf("list key results: %w", err)
	}

	type positioned struct {
		kr  okr.KeyResult
		pos float64
	}
	grouped := make(map[string][]positioned)
	for _, rec := range recs {
		kr, err := decodeKeyResult(rec)
		if err != nil {
			return nil, err
		}
		pos, _ := rec["position"].(float64)
		grouped[kr.ObjectiveID] = append(grouped[kr.ObjectiveID], positioned{kr: kr, pos: pos})
	}

	out := make(map[string][]okr.KeyResult, len(grouped))
	for objID, items := range grouped {
		sort.SliceStable(items, func(i, j int) bool {
			if items[i].pos != items[j].pos {
				return items[i].pos < items[j].pos
			}
			return items[i].kr.ID < items[j].kr.ID
		})
		krs := make([]okr.KeyResult, len(items))
		for i, item := range items {
			krs[i] = item.kr
		}
		out[objID] = krs
	}
	return out, nil
}

// ListCycles returns every cycle ordered by start date.
func (r *OKRRepository) ListCycles(ctx context.Context) ([]okr.Cycle, error) {
	recs, err := r.store.Query(ctx, TableCycles, nil)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	out := make([]okr.Cycle, 0, len(recs))
	for _, rec := range recs {
		var c okr.Cycle
		if err := Decode(rec, &c); err != nil {
			return nil, fmt.Errorf("decode cycle %s: %w", rec.ID(), err)
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetCycle returns one cycle.
func (r *OKRRepository) GetCycle(ctx context.Context, id string) (okr.Cycle, error) {
	rec, err := r.store.Get(ctx, TableCycles, id)
	if err != nil {
		return okr.Cycle{}, err
	}
	var c okr.Cycle
	if err := Decode(rec, &c); err != nil {
		return okr.Cycle{}, fmt.Errorf("decode cycle %s: %w", id, err)
	}
	return c, nil
}

// SaveCycle creates or replaces a cycle. Marking a cycle current clears the
// flag on every other cycle.
func (r *OKRRepository) SaveCycle(ctx context.Context, c okr.Cycle) (okr.Cycle, error) {
	status, _ := okr.ParseCycleStatus(string(c.Status))
	if errs := validateCycle(c); len(errs) > 0 {
		return okr.Cycle{}, errs
	}
	c.Status = status
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	if c.IsCurrent {
		others, err := r.store.Query(ctx, TableCycles, Filter{"is_current": true})
		if err != nil {
			return okr.Cycle{}, fmt.Errorf("list current cycles: %w", err)
		}
		for _, other := range others {
			if other.ID() == c.ID {
				continue
			}
			if _, err := r.store.Update(ctx, TableCycles, other.ID(), Record{"is_current": false}); err != nil {
				return okr.Cycle{}, fmt.Errorf("clear current flag on %s: %w", other.ID(), err)
			}
		}
	}

	rec, err := Encode(c)
	if err != nil {
		return okr.Cycle{}, err
	}
	if _, err := r.store.Put(ctx, TableCycles, rec); err != nil {
		return okr.Cycle{}, fmt.Errorf("save cycle %s: %w", c.ID, err)
	}
	return c, nil
}

// CurrentCycle resolves the current cycle as of now.
func (r *OKRRepository) CurrentCycle(ctx context.Context, now time.Time) (okr.Cycle, bool, error) {
	cycles, err := r.ListCycles(ctx)
	if err != nil {
		return okr.Cycle{}, false, err
	}
	c, ok := okr.CurrentCycle(cycles, now, r.settings.Location)
	return c, ok, nil
}

// Directory loads the organization directory.
func (r *OKRRepository) Directory(ctx context.Context) (*org.Directory, error) {
	deps, err := decodeAll[org.Department](ctx, r.store, TableDepartments)
	if err != nil {
		return nil, err
	}
	positions, err := decodeAll[org.Position](ctx, r.store, TablePositions)
	if err != nil {
		return nil, err
	}
	employees, err := decodeAll[org.Employee](ctx, r.store, TableEmployees)
	if err != nil {
		return nil, err
	}
	return org.NewDirectory(deps, positions, employees), nil
}

// SaveDirectory replaces the stored departments, positions and employees
// with the given ones, keeping records not mentioned.
func (r *OKRRepository) SaveDirectory(ctx context.Context, dir *org.Directory) error {
	if dir == nil {
		return nil
	}
	var errs ValidationErrors
	for _, dep := range dir.Departments {
		if strings.TrimSpace(dep.ID) == "" || strings.TrimSpace(dep.Name) == "" {
			errs = append(errs, ValidationError{Table: TableDepartments, ID: dep.ID, Message: "id and name are required"})
		}
	}
	for _, pos := range dir.Positions {
		if strings.TrimSpace(pos.ID) == "" || strings.TrimSpace(pos.Title) == "" {
			errs = append(errs, ValidationError{Table: TablePositions, ID: pos.ID, Message: "id and title are required"})
		}
	}
	for _, emp := range dir.Employees {
		errs = append(errs, validateEmployee(emp)...)
	}
	if len(errs) > 0 {
		return errs
	}

	put := func(table string, v any) error {
		rec, err := Encode(v)
		if err != nil {
			return err
		}
		if _, err := r.store.Put(ctx, table, rec); err != nil {
			return fmt.Errorf("save %s %s: %w", table, rec.ID(), err)
		}
		return nil
	}
	for _, dep := range dir.Departments {
		if err := put(TableDepartments, dep); err != nil {
			return err
		}
	}
	for _, pos := range dir.Positions {
		if err := put(TablePositions, pos); err != nil {
			return err
		}
	}
	for _, emp := range dir.Employees {
		if err := put(TableEmployees, emp); err != nil {
			return err
		}
	}
	return nil
}

func decodeAll[T any](ctx context.Context, store Store, table string) ([]T, error) {
	recs, err := store.Query(ctx, table, nil)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		var v T
		if err := Decode(rec, &v); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", table, rec.ID(), err)
		}
		out = append(out, v)
	}
	return out, nil
}

func normalizeObjective(obj okr.Objective) okr.Objective {
	obj.ID = strings.TrimSpace(obj.ID)
	obj.Title = strings.TrimSpace(obj.Title)
	obj.OwnerID = strings.TrimSpace(obj.OwnerID)
	obj.ParentID = strings.TrimSpace(obj.ParentID)
	obj.CycleID = strings.TrimSpace(obj.CycleID)
	if obj.Status == "" {
		obj.Status = okr.ObjectiveDraft
	}
	krs := make([]okr.KeyResult, len(obj.KeyResults))
	for i, kr := range obj.KeyResults {
		kr.ID = strings.TrimSpace(kr.ID)
		kr.Title = strings.TrimSpace(kr.Title)
		krs[i] = kr
	}
	obj.KeyResults = krs
	return obj
}

func encodeObjective(obj okr.Objective) (Record, error) {
	rec, err := Encode(obj)
	if err != nil {
		return nil, fmt.Errorf("encode objective %s: %w", obj.ID, err)
	}
	delete(rec, "key_results")
	return rec, nil
}

func decodeObjective(rec Record) (okr.Objective, error) {
	var obj okr.Objective
	if err := Decode(rec, &obj); err != nil {
		return okr.Objective{}, fmt.Errorf("decode objective %s: %w", rec.ID(), err)
	}
	return obj, nil
}

func encodeKeyResult(kr okr.KeyResult, position int) (Record, error) {
	rec, err := Encode(kr)
	if err != nil {
		return nil, fmt.Errorf("encode key result %s: %w", kr.ID, err)
	}
	rec["position"] = position
	return rec, nil
}

func decodeKeyResult(rec Record) (okr.KeyResult, error) {
	var kr okr.KeyResult
	if err := Decode(rec, &kr); err != nil {
		return okr.KeyResult{}, fmt.Errorf("decode key result %s: %w", rec.ID(), err)
	}
	return kr, nil
}
