package okrstore

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"okrdash/internal/calendar"
	"okrdash/internal/okr"
	"okrdash/internal/org"
)

type rawDocument struct {
	Scope      string         `yaml:"scope"`
	CycleID    string         `yaml:"cycle_id,omitempty"`
	Objectives []rawObjective `yaml:"objectives"`
}

type rawObjective struct {
	ID          string         `yaml:"objective_id"`
	Title       string         `yaml:"title"`
	Description string         `yaml:"description,omitempty"`
	OwnerID     string         `yaml:"owner_id"`
	ParentID    string         `yaml:"parent_okr_id,omitempty"`
	CycleID     string         `yaml:"cycle_id,omitempty"`
	Status      string         `yaml:"status,omitempty"`
	KeyResults  []rawKeyResult `yaml:"key_results"`
}

type rawKeyResult struct {
	ID          string          `yaml:"kr_id"`
	Title       string          `yaml:"title"`
	OwnerID     string          `yaml:"owner_id,omitempty"`
	Target      *float64        `yaml:"target"`
	Current     *float64        `yaml:"current,omitempty"`
	Unit        string          `yaml:"unit,omitempty"`
	Weight      *float64        `yaml:"weight,omitempty"`
	Status      string          `yaml:"status,omitempty"`
	Links       []org.TargetRef `yaml:"links,omitempty"`
	LastUpdated string          `yaml:"last_updated,omitempty"`
}

// ValidationError captures a single field-specific validation issue.
type ValidationError struct {
	File    string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.File, e.Field, e.Message)
}

// ValidationErrors aggregates multiple validation problems.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "\n")
}

// ParseAndValidateDocument unmarshals and validates a YAML OKR document.
func ParseAndValidateDocument(data []byte, source string) (Document, error) {
	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Document{}, ValidationErrors{{
			File:    source,
			Field:   "yaml",
			Message: err.Error(),
		}}
	}
	return validateRawDocument(raw, source)
}

func validateRawDocument(raw rawDocument, source string) (Document, error) {
	var errs ValidationErrors

	scope, scopeErr := parseScope(raw.Scope)
	if scopeErr != nil {
		errs = append(errs, ValidationError{
			File:    source,
			Field:   "scope",
			Message: scopeErr.Error(),
		})
	}

	if len(raw.Objectives) == 0 {
		errs = append(errs, ValidationError{
			File:    source,
			Field:   "objectives",
			Message: "must contain at least one objective",
		})
	}

	objIDs := make(map[string]struct{})
	var normalized []okr.Objective

	for idx, rawObj := range raw.Objectives {
		objPath := fmt.Sprintf("objectives[%d]", idx)
		obj, objErrs := validateObjective(rawObj, objPath, scope, strings.TrimSpace(raw.CycleID), source)
		errs = append(errs, objErrs...)

		if obj.ID != "" {
			if _, exists := objIDs[obj.ID]; exists {
				errs = append(errs, ValidationError{
					File:    source,
					Field:   objPath + ".objective_id",
					Message: fmt.Sprintf("duplicate objective_id %q within document", obj.ID),
				})
			} else {
				objIDs[obj.ID] = struct{}{}
			}
		}
		normalized = append(normalized, obj)
	}

	if len(errs) > 0 {
		return Document{}, errs
	}

	return Document{
		Scope:      scope,
		CycleID:    strings.TrimSpace(raw.CycleID),
		Objectives: normalized,
		Source:     source,
	}, nil
}

func validateObjective(raw rawObjective, fieldPath string, scope Scope, docCycle, source string) (okr.Objective, ValidationErrors) {
	var errs ValidationErrors
	add := func(field, msg string) {
		errs = append(errs, ValidationError{File: source, Field: fieldPath + "." + field, Message: msg})
	}

	if strings.TrimSpace(raw.ID) == "" {
		add("objective_id", "objective_id is required")
	}
	if strings.TrimSpace(raw.Title) == "" {
		add("title", "title is required")
	}
	if strings.TrimSpace(raw.OwnerID) == "" {
		add("owner_id", "owner_id is required")
	}
	cycleID := strings.TrimSpace(raw.CycleID)
	if cycleID == "" {
		cycleID = docCycle
	}
	if cycleID == "" {
		add("cycle_id", "cycle_id is required on the objective or the document")
	}
	status, statusErr := okr.ParseObjectiveStatus(raw.Status)
	if statusErr != nil {
		add("status", statusErr.Error())
	}

	parentID := strings.TrimSpace(raw.ParentID)
	switch {
	case scope == ScopeCompany && parentID != "":
		add("parent_okr_id", "company objectives cannot have a parent")
	case parentID != "" && parentID == strings.TrimSpace(raw.ID):
		add("parent_okr_id", "objective cannot be its own parent")
	}

	if len(raw.KeyResults) == 0 {
		add("key_results", "must contain at least one key result")
	}

	krIDs := make(map[string]struct{})
	var krs []okr.KeyResult
	for krIdx, rawKR := range raw.KeyResults {
		krPath := fmt.Sprintf("%s.key_results[%d]", fieldPath, krIdx)
		kr, krErrs := validateKeyResult(rawKR, krPath, source)
		errs = append(errs, krErrs...)

		if kr.ID != "" {
			if _, exists := krIDs[kr.ID]; exists {
				errs = append(errs, ValidationError{
					File:    source,
					Field:   krPath + ".kr_id",
					Message: fmt.Sprintf("duplicate kr_id %q within objective", kr.ID),
				})
			} else {
				krIDs[kr.ID] = struct{}{}
			}
		}
		kr.ObjectiveID = strings.TrimSpace(raw.ID)
		krs = append(krs, kr)
	}

	obj := okr.Objective{
		ID:          strings.TrimSpace(raw.ID),
		Title:       strings.TrimSpace(raw.Title),
		Description: strings.TrimSpace(raw.Description),
		OwnerType:   scope.OwnerType(),
		OwnerID:     strings.TrimSpace(raw.OwnerID),
		ParentID:    parentID,
		CycleID:     cycleID,
		Status:      status,
		KeyResults:  krs,
	}
	obj.Recompute()
	return obj, errs
}

func validateKeyResult(raw rawKeyResult, fieldPath string, source string) (okr.KeyResult, ValidationErrors) {
	var errs ValidationErrors
	add := func(field, msg string) {
		errs = append(errs, ValidationError{File: source, Field: fieldPath + "." + field, Message: msg})
	}

	if strings.TrimSpace(raw.ID) == "" {
		add("kr_id", "kr_id is required")
	}
	if strings.TrimSpace(raw.Title) == "" {
		add("title", "title is required")
	}
	if raw.Target == nil {
		add("target", "target is required")
	} else if *raw.Target <= 0 {
		add("target", "must be greater than zero")
	}
	if raw.Current != nil && *raw.Current < 0 {
		add("current", "must not be negative")
	}
	if raw.Weight != nil && *raw.Weight < 0 {
		add("weight", "must not be negative")
	}
	status, statusErr := okr.ParseKRStatus(raw.Status)
	if statusErr != nil {
		add("status", statusErr.Error())
	}
	for i, link := range raw.Links {
		if _, err := org.ParseTargetType(string(link.Type)); err != nil {
			add(fmt.Sprintf("links[%d].type", i), err.Error())
		}
		if strings.TrimSpace(link.ID) == "" {
			add(fmt.Sprintf("links[%d].id", i), "id is required")
		}
	}
	if raw.LastUpdated != "" {
		if _, err := calendar.ParseDate(raw.LastUpdated); err != nil {
			add("last_updated", "must be ISO-8601 date or datetime")
		}
	}

	kr := okr.KeyResult{
		ID:        strings.TrimSpace(raw.ID),
		Title:     strings.TrimSpace(raw.Title),
		OwnerID:   strings.TrimSpace(raw.OwnerID),
		Unit:      strings.TrimSpace(raw.Unit),
		Weight:    1,
		Status:    status,
		Links:     append([]org.TargetRef(nil), raw.Links...),
		UpdatedAt: strings.TrimSpace(raw.LastUpdated),
	}
	if raw.Target != nil {
		kr.Target = *raw.Target
	}
	if raw.Current != nil {
		kr.Current = *raw.Current
	}
	if raw.Weight != nil {
		kr.Weight = *raw.Weight
	}
	return kr, errs
}

func parseScope(value string) (Scope, error) {
	switch Scope(strings.TrimSpace(value)) {
	case ScopeCompany:
		return ScopeCompany, nil
	case ScopeDepartment:
		return ScopeDepartment, nil
	case ScopeIndividual:
		return ScopeIndividual, nil
	default:
		return Scope(value), fmt.Errorf("invalid scope %q (expected company, department, or individual)", value)
	}
}
