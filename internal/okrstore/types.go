package okrstore

import (
	"sort"

	"okrdash/internal/okr"
	"okrdash/internal/org"
)

// Scope represents the OKR scope level of a document.
type Scope string

const (
	ScopeCompany    Scope = "company"
	ScopeDepartment Scope = "department"
	ScopeIndividual Scope = "individual"
)

// OwnerType maps the scope onto the objective owner type.
func (s Scope) OwnerType() okr.OwnerType {
	return okr.OwnerType(s)
}

// Document is a normalized OKR document loaded from YAML.
type Document struct {
	Scope      Scope
	CycleID    string
	Objectives []okr.Objective
	Source     string
}

// ObjectiveRecord maps an objective id to its normalized data and source.
type ObjectiveRecord struct {
	Objective okr.Objective
	Scope     Scope
	Source    string
}

// KeyResultRecord maps a key result id to its normalized data and origin.
type KeyResultRecord struct {
	KeyResult okr.KeyResult
	Objective okr.Objective
	Scope     Scope
	Source    string
}

// Store is the in-memory representation of a loaded okrs directory.
type Store struct {
	Documents   []Document
	Cycles      []okr.Cycle
	Directory   *org.Directory
	Permissions *PermissionConfig

	objectives map[string]ObjectiveRecord
	keyResults map[string]KeyResultRecord
}

// ObjectiveLookup returns the objective record for the given id, if present.
func (s *Store) ObjectiveLookup(id string) (ObjectiveRecord, bool) {
	if s == nil {
		return ObjectiveRecord{}, false
	}
	rec, ok := s.objectives[id]
	return rec, ok
}

// KeyResultLookup returns the key result record for the given id, if present.
func (s *Store) KeyResultLookup(id string) (KeyResultRecord, bool) {
	if s == nil {
		return KeyResultRecord{}, false
	}
	rec, ok := s.keyResults[id]
	return rec, ok
}

// Objectives returns every loaded objective, parents before children and by
// id within a level, so they can be written in order.
func (s *Store) Objectives() []okr.Objective {
	if s == nil {
		return nil
	}
	out := make([]okr.Objective, 0, len(s.objectives))
	for _, rec := range s.objectives {
		out = append(out, rec.Objective)
	}
	SortByLevel(out)
	return out
}

// SortByLevel orders objectives company first, then department, then
// individual, and by id within a level.
func SortByLevel(objectives []okr.Objective) {
	sort.SliceStable(objectives, func(i, j int) bool {
		li, lj := objectives[i].OwnerType.Level(), objectives[j].OwnerType.Level()
		if li != lj {
			return li < lj
		}
		return objectives[i].ID < objectives[j].ID
	})
}

// ListObjectiveIDs returns all objective ids by scope.
func (s *Store) ListObjectiveIDs() map[Scope][]string {
	result := map[Scope][]string{
		ScopeCompany:    {},
		ScopeDepartment: {},
		ScopeIndividual: {},
	}
	for _, rec := range s.objectives {
		result[rec.Scope] = append(result[rec.Scope], rec.Objective.ID)
	}
	for scope, ids := range result {
		sort.Strings(ids)
		result[scope] = ids
	}
	return result
}

// String scopes for friendly messages.
func (s Scope) String() string {
	return string(s)
}
