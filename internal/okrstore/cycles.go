package okrstore

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"okrdash/internal/calendar"
	"okrdash/internal/okr"
	"okrdash/internal/org"
)

type rawCycleFile struct {
	Cycles []rawCycle `yaml:"cycles"`
}

type rawCycle struct {
	ID        string `yaml:"cycle_id"`
	Name      string `yaml:"name"`
	Year      int    `yaml:"year"`
	Quarter   int    `yaml:"quarter"`
	CycleType string `yaml:"cycle_type"`
	StartDate string `yaml:"start_date"`
	EndDate   string `yaml:"end_date"`
	Status    string `yaml:"status"`
	IsCurrent bool   `yaml:"is_current"`
}

// ParseCycles validates a cycles.yml document. At most one cycle may be
// flagged current.
func ParseCycles(data []byte, source string) ([]okr.Cycle, error) {
	var raw rawCycleFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, ValidationErrors{{File: source, Field: "yaml", Message: err.Error()}}
	}

	var errs ValidationErrors
	var cycles []okr.Cycle
	seen := make(map[string]struct{})
	var current []string

	for idx, rc := range raw.Cycles {
		path := fmt.Sprintf("cycles[%d]", idx)
		add := func(field, msg string) {
			errs = append(errs, ValidationError{File: source, Field: path + "." + field, Message: msg})
		}

		c := okr.Cycle{
			ID:        strings.TrimSpace(rc.ID),
			Name:      strings.TrimSpace(rc.Name),
			Year:      rc.Year,
			Quarter:   rc.Quarter,
			CycleType: strings.TrimSpace(rc.CycleType),
			IsCurrent: rc.IsCurrent,
		}
		if c.ID == "" {
			add("cycle_id", "cycle_id is required")
		} else if _, dup := seen[c.ID]; dup {
			add("cycle_id", fmt.Sprintf("duplicate cycle_id %q", c.ID))
		} else {
			seen[c.ID] = struct{}{}
		}
		if c.Name == "" {
			add("name", "name is required")
		}
		if rc.Quarter < 0 || rc.Quarter > 4 {
			add("quarter", "must be between 1 and 4")
		}

		start, err := calendar.ParseDate(rc.StartDate)
		if err != nil {
			add("start_date", err.Error())
		}
		end, err := calendar.ParseDate(rc.EndDate)
		if err != nil {
			add("end_date", err.Error())
		}
		if !start.IsZero() && !end.IsZero() && end.Before(start) {
			add("end_date", "must not be before start_date")
		}
		c.StartDate, c.EndDate = start, end

		status, err := okr.ParseCycleStatus(rc.Status)
		if err != nil {
			add("status", err.Error())
		}
		c.Status = status

		if c.IsCurrent {
			current = append(current, c.ID)
		}
		cycles = append(cycles, c)
	}

	if len(current) > 1 {
		errs = append(errs, ValidationError{
			File:    source,
			Field:   "cycles",
			Message: fmt.Sprintf("only one cycle may be current, found %s", strings.Join(current, ", ")),
		})
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return cycles, nil
}

type rawOrgFile struct {
	Departments []org.Department `yaml:"departments"`
	Positions   []org.Position   `yaml:"positions"`
	Employees   []rawEmployee    `yaml:"employees"`
}

type rawEmployee struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Email        string `yaml:"email"`
	DepartmentID string `yaml:"department_id"`
	PositionID   string `yaml:"position_id"`
	Active       *bool  `yaml:"active"`
}

// ParseOrg validates an org.yml document. Employees are active unless marked
// otherwise, and must reference known departments and positions.
func ParseOrg(data []byte, source string) (*org.Directory, error) {
	var raw rawOrgFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, ValidationErrors{{File: source, Field: "yaml", Message: err.Error()}}
	}

	var errs ValidationErrors
	deps := make(map[string]struct{})
	for i, dep := range raw.Departments {
		if strings.TrimSpace(dep.ID) == "" || strings.TrimSpace(dep.Name) == "" {
			errs = append(errs, ValidationError{File: source, Field: fmt.Sprintf("departments[%d]", i), Message: "id and name are required"})
		}
		deps[dep.ID] = struct{}{}
	}
	positions := make(map[string]struct{})
	for i, pos := range raw.Positions {
		if strings.TrimSpace(pos.ID) == "" || strings.TrimSpace(pos.Title) == "" {
			errs = append(errs, ValidationError{File: source, Field: fmt.Sprintf("positions[%d]", i), Message: "id and title are required"})
		}
		if pos.DepartmentID != "" {
			if _, ok := deps[pos.DepartmentID]; !ok {
				errs = append(errs, ValidationError{File: source, Field: fmt.Sprintf("positions[%d].department_id", i), Message: fmt.Sprintf("unknown department %q", pos.DepartmentID)})
			}
		}
		positions[pos.ID] = struct{}{}
	}

	employees := make([]org.Employee, 0, len(raw.Employees))
	for i, re := range raw.Employees {
		path := fmt.Sprintf("employees[%d]", i)
		if strings.TrimSpace(re.ID) == "" || strings.TrimSpace(re.Name) == "" {
			errs = append(errs, ValidationError{File: source, Field: path, Message: "id and name are required"})
		}
		if re.DepartmentID != "" {
			if _, ok := deps[re.DepartmentID]; !ok {
				errs = append(errs, ValidationError{File: source, Field: path + ".department_id", Message: fmt.Sprintf("unknown department %q", re.DepartmentID)})
			}
		}
		if re.PositionID != "" {
			if _, ok := positions[re.PositionID]; !ok {
				errs = append(errs, ValidationError{File: source, Field: path + ".position_id", Message: fmt.Sprintf("unknown position %q", re.PositionID)})
			}
		}
		active := true
		if re.Active != nil {
			active = *re.Active
		}
		employees = append(employees, org.Employee{
			ID:           strings.TrimSpace(re.ID),
			Name:         strings.TrimSpace(re.Name),
			Email:        strings.TrimSpace(re.Email),
			DepartmentID: re.DepartmentID,
			PositionID:   re.PositionID,
			Active:       active,
		})
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return org.NewDirectory(raw.Departments, raw.Positions, employees), nil
}

func readOptional(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}
	return data, true, nil
}
