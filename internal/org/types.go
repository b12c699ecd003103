// Package org holds the organization directory (departments, positions,
// employees) and resolves target selections to concrete recipients.
package org

import (
	"fmt"
	"strings"
)

// TargetType identifies what a target selection points at.
type TargetType string

const (
	TargetDepartment TargetType = "department"
	TargetPosition   TargetType = "position"
	TargetEmployee   TargetType = "employee"
)

// ParseTargetType validates a target type string.
func ParseTargetType(value string) (TargetType, error) {
	switch TargetType(strings.TrimSpace(value)) {
	case TargetDepartment:
		return TargetDepartment, nil
	case TargetPosition:
		return TargetPosition, nil
	case TargetEmployee:
		return TargetEmployee, nil
	default:
		return TargetType(value), fmt.Errorf("invalid target type %q (expected department, position, or employee)", value)
	}
}

// TargetRef is a persisted reference to a department, position or employee.
type TargetRef struct {
	Type TargetType `json:"type" yaml:"type"`
	ID   string     `json:"id" yaml:"id"`
}

// TargetSelection is a resolved target with its display name. It is never
// stored on its own; it travels with create/update and notification calls.
type TargetSelection struct {
	Type TargetType `json:"type"`
	ID   string     `json:"id"`
	Name string     `json:"name"`
}

// Ref drops the display name.
func (s TargetSelection) Ref() TargetRef {
	return TargetRef{Type: s.Type, ID: s.ID}
}

type Department struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type Position struct {
	ID           string `json:"id" yaml:"id"`
	Title        string `json:"title" yaml:"title"`
	DepartmentID string `json:"department_id,omitempty" yaml:"department_id"`
}

// Employee is a person in the directory. Inactive employees never receive
// fan-out notifications.
type Employee struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	Email        string `json:"email,omitempty" yaml:"email"`
	DepartmentID string `json:"department_id,omitempty" yaml:"department_id"`
	PositionID   string `json:"position_id,omitempty" yaml:"position_id"`
	Active       bool   `json:"active" yaml:"active"`
}
