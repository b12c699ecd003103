package org

// Directory indexes departments, positions and employees by id.
type Directory struct {
	Departments []Department
	Positions   []Position
	Employees   []Employee

	departments map[string]Department
	positions   map[string]Position
	employees   map[string]Employee
}

// NewDirectory builds the lookup maps. Later duplicates win.
func NewDirectory(departments []Department, positions []Position, employees []Employee) *Directory {
	d := &Directory{
		Departments: departments,
		Positions:   positions,
		Employees:   employees,
		departments: make(map[string]Department, len(departments)),
		positions:   make(map[string]Position, len(positions)),
		employees:   make(map[string]Employee, len(employees)),
	}
	for _, dep := range departments {
		d.departments[dep.ID] = dep
	}
	for _, pos := range positions {
		d.positions[pos.ID] = pos
	}
	for _, emp := range employees {
		d.employees[emp.ID] = emp
	}
	return d
}

// Department returns the department with the given id, if present.
func (d *Directory) Department(id string) (Department, bool) {
	if d == nil {
		return Department{}, false
	}
	dep, ok := d.departments[id]
	return dep, ok
}

// Position returns the position with the given id, if present.
func (d *Directory) Position(id string) (Position, bool) {
	if d == nil {
		return Position{}, false
	}
	pos, ok := d.positions[id]
	return pos, ok
}

// Employee returns the employee with the given id, if present.
func (d *Directory) Employee(id string) (Employee, bool) {
	if d == nil {
		return Employee{}, false
	}
	emp, ok := d.employees[id]
	return emp, ok
}

// Selection resolves a reference to its display name.
func (d *Directory) Selection(ref TargetRef) (TargetSelection, bool) {
	switch ref.Type {
	case TargetDepartment:
		if dep, ok := d.Department(ref.ID); ok {
			return TargetSelection{Type: ref.Type, ID: dep.ID, Name: dep.Name}, true
		}
	case TargetPosition:
		if pos, ok := d.Position(ref.ID); ok {
			return TargetSelection{Type: ref.Type, ID: pos.ID, Name: pos.Title}, true
		}
	case TargetEmployee:
		if emp, ok := d.Employee(ref.ID); ok {
			return TargetSelection{Type: ref.Type, ID: emp.ID, Name: emp.Name}, true
		}
	}
	return TargetSelection{}, false
}

// Recipients expands target selections into active employees. A department
// selects everyone in it, a position everyone holding it. Each employee is
// returned once, in order of first match.
func (d *Directory) Recipients(selections []TargetSelection) []Employee {
	if d == nil || len(selections) == 0 {
		return nil
	}

	seen := make(map[string]struct{})
	var out []Employee
	add := func(emp Employee) {
		if !emp.Active {
			return
		}
		if _, dup := seen[emp.ID]; dup {
			return
		}
		seen[emp.ID] = struct{}{}
		out = append(out, emp)
	}

	for _, sel := range selections {
		switch sel.Type {
		case TargetEmployee:
			if emp, ok := d.employees[sel.ID]; ok {
				add(emp)
			}
		case TargetDepartment:
			for _, emp := range d.Employees {
				if emp.DepartmentID == sel.ID {
					add(emp)
				}
			}
		case TargetPosition:
			for _, emp := range d.Employees {
				if emp.PositionID == sel.ID {
					add(emp)
				}
			}
		}
	}
	return out
}
