package records

import (
	"fmt"
	"strings"

	"okrdash/internal/okr"
	"okrdash/internal/org"
)

// ValidationError is a single field-level problem with a record being written.
type ValidationError struct {
	Table   string `json:"table"`
	ID      string `json:"id,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	where := e.Table
	if e.ID != "" {
		where += "/" + e.ID
	}
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", where, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", where, e.Field, e.Message)
}

// ValidationErrors aggregates every problem found in one write.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "\n")
}

func validateObjective(obj okr.Objective) ValidationErrors {
	var errs ValidationErrors
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Table: TableObjectives, ID: obj.ID, Field: field, Message: msg})
	}

	if strings.TrimSpace(obj.Title) == "" {
		add("title", "title is required")
	}
	if _, err := okr.ParseOwnerType(string(obj.OwnerType)); err != nil {
		add("owner_type", err.Error())
	}
	if strings.TrimSpace(obj.OwnerID) == "" {
		add("owner_id", "owner_id is required")
	}
	if strings.TrimSpace(obj.CycleID) == "" {
		add("cycle_id", "cycle_id is required")
	}
	if _, err := okr.ParseObjectiveStatus(string(obj.Status)); err != nil {
		add("status", err.Error())
	}
	if obj.OwnerType == okr.OwnerCompany && obj.ParentID != "" {
		add("parent_okr_id", "company objectives cannot have a parent")
	}

	seen := make(map[string]struct{}, len(obj.KeyResults))
	for i, kr := range obj.KeyResults {
		path := fmt.Sprintf("key_results[%d]", i)
		for _, e := range validateKeyResult(kr) {
			e.Table = TableObjectives
			e.ID = obj.ID
			e.Field = path + "." + e.Field
			errs = append(errs, e)
		}
		if kr.ID == "" {
			continue
		}
		if _, dup := seen[kr.ID]; dup {
			add(path+".id", fmt.Sprintf("duplicate key result id %q", kr.ID))
		}
		seen[kr.ID] = struct{}{}
	}
	return errs
}

func validateKeyResult(kr okr.KeyResult) ValidationErrors {
	var errs ValidationErrors
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Table: TableKeyResults, ID: kr.ID, Field: field, Message: msg})
	}

	if strings.TrimSpace(kr.Title) == "" {
		add("title", "title is required")
	}
	if kr.Target <= 0 {
		add("target_value", "must be greater than zero")
	}
	if kr.Current < 0 {
		add("current_value", "must not be negative")
	}
	if kr.Weight < 0 {
		add("weight", "must not be negative")
	}
	if _, err := okr.ParseKRStatus(string(kr.Status)); err != nil {
		add("status", err.Error())
	}
	for i, link := range kr.Links {
		if _, err := org.ParseTargetType(string(link.Type)); err != nil {
			add(fmt.Sprintf("links[%d].type", i), err.Error())
		}
		if strings.TrimSpace(link.ID) == "" {
			add(fmt.Sprintf("links[%d].id", i), "id is required")
		}
	}
	return errs
}

func validateCycle(c okr.Cycle) ValidationErrors {
	var errs ValidationErrors
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Table: TableCycles, ID: c.ID, Field: field, Message: msg})
	}

	if strings.TrimSpace(c.Name) == "" {
		add("name", "name is required")
	}
	if c.StartDate.IsZero() {
		add("start_date", "start_date is required")
	}
	if c.EndDate.IsZero() {
		add("end_date", "end_date is required")
	}
	if !c.StartDate.IsZero() && !c.EndDate.IsZero() && c.EndDate.Before(c.StartDate) {
		add("end_date", "must not be before start_date")
	}
	if c.Quarter < 0 || c.Quarter > 4 {
		add("quarter", "must be between 1 and 4")
	}
	if _, err := okr.ParseCycleStatus(string(c.Status)); err != nil {
		add("status", err.Error())
	}
	return errs
}

func validateEmployee(e org.Employee) ValidationErrors {
	var errs ValidationErrors
	if strings.TrimSpace(e.ID) == "" {
		errs = append(errs, ValidationError{Table: TableEmployees, Field: "id", Message: "id is required"})
	}
	if strings.TrimSpace(e.Name) == "" {
		errs = append(errs, ValidationError{Table: TableEmployees, ID: e.ID, Field: "name", Message: "name is required"})
	}
	return errs
}
