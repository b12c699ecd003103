package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"okrdash/internal/checkin"
	"okrdash/internal/okr"
	"okrdash/internal/okrstore"
	"okrdash/internal/records"
	"okrdash/internal/report"
)

// ActorHeader names the acting employee when the request body does not.
const ActorHeader = "X-Okrdash-Actor"

// objectiveView is one objective with its effective progress and alignment.
type objectiveView struct {
	okr.Objective
	EffectiveProgress int                `json:"effective_progress"`
	Source            okr.ProgressSource `json:"progress_source"`
	Label             okr.StatusLabel    `json:"label"`
	Parent            *objectiveRef      `json:"parent,omitempty"`
	ChildCount        int                `json:"child_count"`
}

type objectiveRef struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	OwnerType okr.OwnerType `json:"owner_type"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "okrdash",
	})
}

func (s *Server) handleListCycles(w http.ResponseWriter, r *http.Request) {
	cycles, err := s.repo.ListCycles(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"cycles": cycles})
}

func (s *Server) handleCurrentCycleProgress(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	cycle, ok, err := s.repo.CurrentCycle(r.Context(), now)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "no current cycle")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"cycle":    cycle,
		"progress": cycle.Progress(now, s.repo.Settings()),
	})
}

func (s *Server) handleListObjectives(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	all, err := s.repo.ListObjectives(r.Context(), q.Get("cycle_id"))
	if err != nil {
		s.writeErr(w, err)
		return
	}

	ownerType := q.Get("owner_type")
	ownerID := q.Get("owner_id")
	views := make([]objectiveView, 0, len(all))
	for _, obj := range all {
		if ownerType != "" && string(obj.OwnerType) != ownerType {
			continue
		}
		if ownerID != "" && obj.OwnerID != ownerID {
			continue
		}
		views = append(views, s.view(obj, all))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"objectives": views})
}

func (s *Server) handleGetObjective(w http.ResponseWriter, r *http.Request) {
	obj, all, ok := s.loadObjective(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, s.view(obj, all))
}

func (s *Server) handleObjectiveChildren(w http.ResponseWriter, r *http.Request) {
	obj, all, ok := s.loadObjective(w, r)
	if !ok {
		return
	}
	children := okr.ResolveChildren(obj, all)
	views := make([]objectiveView, 0, len(children))
	for _, child := range children {
		views = append(views, s.view(child, all))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"parent_id": obj.ID, "children": views})
}

type overrideRequest struct {
	Progress *int   `json:"progress"`
	By       string `json:"by"`
	Reason   string `json:"reason"`
}

func (s *Server) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req overrideRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Progress == nil {
		s.writeError(w, http.StatusBadRequest, "progress is required")
		return
	}
	actor := actorFrom(r, req.By)
	if !s.perms.CanOverride(actor) {
		s.writeError(w, http.StatusForbidden, "actor may not override objective progress")
		return
	}

	obj, err := s.repo.SetOverride(r.Context(), id, okr.ProgressOverride{Progress: *req.Progress, By: actor, Reason: req.Reason})
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.logAudit(r, actor, "override_set", map[string]any{"objective_id": id, "progress": *req.Progress, "reason": req.Reason})
	s.writeJSON(w, http.StatusOK, obj)
}

func (s *Server) handleClearOverride(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := actorFrom(r, r.URL.Query().Get("actor"))
	if !s.perms.CanOverride(actor) {
		s.writeError(w, http.StatusForbidden, "actor may not override objective progress")
		return
	}
	obj, err := s.repo.ClearOverride(r.Context(), id)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.logAudit(r, actor, "override_cleared", map[string]any{"objective_id": id})
	s.writeJSON(w, http.StatusOK, obj)
}

func (s *Server) handleGetKeyResult(w http.ResponseWriter, r *http.Request) {
	kr, err := s.repo.GetKeyResult(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, kr)
}

type checkInRequest struct {
	Value  *float64     `json:"value"`
	Actor  string       `json:"actor"`
	Note   string       `json:"note"`
	Status okr.KRStatus `json:"status"`
}

func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req checkInRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Value == nil {
		s.writeError(w, http.StatusBadRequest, "value is required")
		return
	}

	changes, err := s.checkIns.Apply(r.Context(), []checkin.CheckIn{{
		KRID:   id,
		Value:  *req.Value,
		Actor:  actorFrom(r, req.Actor),
		Note:   req.Note,
		Status: req.Status,
	}})
	if err != nil {
		s.writeErr(w, err)
		return
	}
	kr, err := s.repo.GetKeyResult(r.Context(), id)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	resp := map[string]any{"key_result": kr}
	if len(changes) > 0 {
		resp["status_change"] = changes[0]
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	cycle, ok := s.requestCycle(w, r)
	if !ok {
		return
	}
	objectives, err := s.repo.ListObjectives(r.Context(), cycle.ID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	dashboard := report.Build(objectives, cycle, s.repo.Settings(), now)
	s.metrics.ObserveDashboard(dashboard)
	s.writeJSON(w, http.StatusOK, dashboard)
}

// handleLatestSnapshot serves the newest snapshot the recompute job wrote.
func (s *Server) handleLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.snapDir == "" {
		s.writeError(w, http.StatusNotFound, "snapshots are not configured")
		return
	}
	cycle, ok := s.requestCycle(w, r)
	if !ok {
		return
	}
	dashboard, err := report.LatestSnapshot(s.snapDir, cycle.ID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, dashboard)
}

// requestCycle resolves ?cycle_id=, or the current cycle when it is absent.
// It writes the error response itself.
func (s *Server) requestCycle(w http.ResponseWriter, r *http.Request) (okr.Cycle, bool) {
	ctx := r.Context()
	if id := r.URL.Query().Get("cycle_id"); id != "" {
		c, err := s.repo.GetCycle(ctx, id)
		if err != nil {
			s.writeErr(w, err)
			return okr.Cycle{}, false
		}
		return c, true
	}
	c, ok, err := s.repo.CurrentCycle(ctx, s.now())
	if err != nil {
		s.writeErr(w, err)
		return okr.Cycle{}, false
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "no current cycle")
		return okr.Cycle{}, false
	}
	return c, true
}

// loadObjective fetches the objective named in the path along with every
// objective of its cycle. It writes the error response itself.
func (s *Server) loadObjective(w http.ResponseWriter, r *http.Request) (okr.Objective, []okr.Objective, bool) {
	obj, err := s.repo.GetObjective(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeErr(w, err)
		return okr.Objective{}, nil, false
	}
	all, err := s.repo.ListObjectives(r.Context(), obj.CycleID)
	if err != nil {
		s.writeErr(w, err)
		return okr.Objective{}, nil, false
	}
	return obj, all, true
}

func (s *Server) view(obj okr.Objective, all []okr.Objective) objectiveView {
	effective, source := okr.EffectiveProgress(obj)
	v := objectiveView{
		Objective:         obj,
		EffectiveProgress: effective,
		Source:            source,
		Label:             okr.ClassifyWith(s.repo.Settings().Thresholds, effective, obj.Status),
		ChildCount:        len(okr.ResolveChildren(obj, all)),
	}
	if parent, ok := okr.ResolveParent(obj, all); ok {
		v.Parent = &objectiveRef{ID: parent.ID, Title: parent.Title, OwnerType: parent.OwnerType}
	}
	return v
}

func (s *Server) logAudit(r *http.Request, actor, eventType string, payload map[string]any) {
	if err := s.audit.LogEvent(r.Context(), actor, eventType, payload); err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Msg("audit failed")
	}
}

func actorFrom(r *http.Request, fromBody string) string {
	if actor := strings.TrimSpace(fromBody); actor != "" {
		return actor
	}
	return strings.TrimSpace(r.Header.Get(ActorHeader))
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeErr maps domain errors onto HTTP statuses.
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
		s.writeError(w, status, "internal error")
		return
	}
	body := map[string]any{"error": err.Error()}
	var verrs records.ValidationErrors
	if errors.As(err, &verrs) {
		body["fields"] = verrs
	}
	s.writeJSON(w, status, body)
}

func errorStatus(err error) int {
	var verrs records.ValidationErrors
	var docErrs okrstore.ValidationErrors
	switch {
	case errors.Is(err, records.ErrNotFound), errors.Is(err, report.ErrNoSnapshot):
		return http.StatusNotFound
	case errors.Is(err, checkin.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.As(err, &verrs), errors.As(err, &docErrs),
		errors.Is(err, okr.ErrParentLevel), errors.Is(err, okr.ErrParentNotFound),
		errors.Is(err, okr.ErrAlignmentCycle), errors.Is(err, okr.ErrAlignmentTooDeep),
		errors.Is(err, records.ErrObjectiveExists), errors.Is(err, records.ErrObjectiveHasChildren):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
