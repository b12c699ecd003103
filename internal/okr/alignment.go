package okr

import (
	"errors"
	"fmt"
	"strings"

	"okrdash/internal/org"
)

var (
	// ErrAlignmentCycle is returned when following parent links revisits an objective.
	ErrAlignmentCycle = errors.New("okr alignment cycle")
	// ErrAlignmentTooDeep is returned when a parent chain exceeds the depth limit.
	ErrAlignmentTooDeep = errors.New("okr alignment too deep")
	// ErrParentLevel is returned when a parent is not exactly one level up.
	ErrParentLevel = errors.New("okr parent must be one level up")
	// ErrParentNotFound is returned when a declared parent does not exist.
	ErrParentNotFound = errors.New("okr parent not found")
)

// ResolveParent finds the objective referenced by obj.ParentID.
func ResolveParent(obj Objective, all []Objective) (Objective, bool) {
	parentID := parentKey(obj)
	if parentID == "" {
		return Objective{}, false
	}
	for _, candidate := range all {
		if candidate.ID == parentID {
			return candidate, true
		}
	}
	return Objective{}, false
}

// ResolveChildren returns every objective whose parent is obj, in input order.
func ResolveChildren(obj Objective, all []Objective) []Objective {
	if obj.ID == "" {
		return nil
	}
	var children []Objective
	for _, candidate := range all {
		if parentKey(candidate) == obj.ID && candidate.ID != obj.ID {
			children = append(children, candidate)
		}
	}
	return children
}

// ChildCounts returns the number of direct children per objective id.
func ChildCounts(all []Objective) map[string]int {
	counts := make(map[string]int)
	for _, obj := range all {
		if parent := parentKey(obj); parent != "" && parent != obj.ID {
			counts[parent]++
		}
	}
	return counts
}

// parentKey is obj.ParentID as every resolver compares it.
func parentKey(obj Objective) string {
	return strings.TrimSpace(obj.ParentID)
}

// ResolveLinkTargets resolves a key result's declared links to display names.
// Links to unknown ids are dropped and repeated links are returned once.
func ResolveLinkTargets(kr KeyResult, departments []org.Department, positions []org.Position, employees []org.Employee) []org.TargetSelection {
	return ResolveLinkTargetsIn(kr, org.NewDirectory(departments, positions, employees))
}

// ResolveLinkTargetsIn is ResolveLinkTargets over a prebuilt directory.
func ResolveLinkTargetsIn(kr KeyResult, dir *org.Directory) []org.TargetSelection {
	if len(kr.Links) == 0 {
		return nil
	}
	seen := make(map[org.TargetRef]struct{}, len(kr.Links))
	var out []org.TargetSelection
	for _, link := range kr.Links {
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		if sel, ok := dir.Selection(link); ok {
			out = append(out, sel)
		}
	}
	return out
}

// ValidateParent checks that parent sits exactly one level above child.
func ValidateParent(child, parent Objective) error {
	want, ok := child.OwnerType.ParentType()
	if !ok {
		return fmt.Errorf("%w: %s objectives cannot have a parent", ErrParentLevel, child.OwnerType)
	}
	if parent.OwnerType != want {
		return fmt.Errorf("%w: %s objective %s needs a %s parent, got %s objective %s",
			ErrParentLevel, child.OwnerType, child.ID, want, parent.OwnerType, parent.ID)
	}
	return nil
}

// Lineage walks parent links from obj upward and returns the ancestors,
// nearest first. The chain including obj may hold at most maxDepth objectives.
func Lineage(obj Objective, all []Objective, maxDepth int) ([]Objective, error) {
	if maxDepth <= 0 {
		maxDepth = 3
	}
	index := make(map[string]Objective, len(all))
	for _, o := range all {
		index[o.ID] = o
	}

	visited := map[string]struct{}{obj.ID: {}}
	var chain []Objective
	current := obj
	for parentKey(current) != "" {
		parent, ok := index[parentKey(current)]
		if !ok {
			return chain, fmt.Errorf("%w: %s references %s", ErrParentNotFound, current.ID, current.ParentID)
		}
		if _, loop := visited[parent.ID]; loop {
			return chain, fmt.Errorf("%w: %s revisited from %s", ErrAlignmentCycle, parent.ID, current.ID)
		}
		visited[parent.ID] = struct{}{}
		chain = append(chain, parent)
		if len(chain)+1 > maxDepth {
			return chain, fmt.Errorf("%w: %s exceeds %d levels", ErrAlignmentTooDeep, obj.ID, maxDepth)
		}
		current = parent
	}
	return chain, nil
}

// CheckAlignment is the write-time check for obj against the rest of the
// collection: the parent must exist, be one level up, and the chain must be
// acyclic and within the depth limit.
func CheckAlignment(obj Objective, all []Objective, settings Settings) error {
	if parentKey(obj) == "" {
		return nil
	}
	if parentKey(obj) == obj.ID {
		return fmt.Errorf("%w: %s is its own parent", ErrAlignmentCycle, obj.ID)
	}

	// obj replaces any stored copy so the check sees the pending write.
	merged := make([]Objective, 0, len(all)+1)
	for _, o := range all {
		if o.ID != obj.ID {
			merged = append(merged, o)
		}
	}
	merged = append(merged, obj)

	parent, ok := ResolveParent(obj, merged)
	if !ok {
		return fmt.Errorf("%w: %s references %s", ErrParentNotFound, obj.ID, obj.ParentID)
	}
	if err := ValidateParent(obj, parent); err != nil {
		return err
	}
	_, err := Lineage(obj, merged, settings.maxDepth())
	return err
}
