// Package okr is the OKR progress and alignment engine: key-result progress,
// objective roll-up, company/department/individual alignment and cycle time.
// Every function here is pure; callers fetch records and persist results.
package okr

import (
	"fmt"
	"strings"
	"time"

	"okrdash/internal/org"
)

// OwnerType is the hierarchy level an objective belongs to.
type OwnerType string

const (
	OwnerCompany    OwnerType = "company"
	OwnerDepartment OwnerType = "department"
	OwnerIndividual OwnerType = "individual"
)

// Level returns 1 for company, 2 for department, 3 for individual and 0 for
// unknown owner types.
func (o OwnerType) Level() int {
	switch o {
	case OwnerCompany:
		return 1
	case OwnerDepartment:
		return 2
	case OwnerIndividual:
		return 3
	default:
		return 0
	}
}

// ParentType returns the owner type one level up. Company objectives have none.
func (o OwnerType) ParentType() (OwnerType, bool) {
	switch o {
	case OwnerDepartment:
		return OwnerCompany, true
	case OwnerIndividual:
		return OwnerDepartment, true
	default:
		return "", false
	}
}

func ParseOwnerType(value string) (OwnerType, error) {
	switch OwnerType(strings.TrimSpace(value)) {
	case OwnerCompany:
		return OwnerCompany, nil
	case OwnerDepartment:
		return OwnerDepartment, nil
	case OwnerIndividual:
		return OwnerIndividual, nil
	default:
		return OwnerType(value), fmt.Errorf("invalid owner type %q (expected company, department, or individual)", value)
	}
}

type ObjectiveStatus string

const (
	ObjectiveDraft     ObjectiveStatus = "draft"
	ObjectiveActive    ObjectiveStatus = "active"
	ObjectiveCompleted ObjectiveStatus = "completed"
	ObjectiveCancelled ObjectiveStatus = "cancelled"
)

func ParseObjectiveStatus(value string) (ObjectiveStatus, error) {
	switch ObjectiveStatus(strings.TrimSpace(value)) {
	case ObjectiveDraft, "":
		return ObjectiveDraft, nil
	case ObjectiveActive:
		return ObjectiveActive, nil
	case ObjectiveCompleted:
		return ObjectiveCompleted, nil
	case ObjectiveCancelled:
		return ObjectiveCancelled, nil
	default:
		return ObjectiveStatus(value), fmt.Errorf("invalid objective status %q", value)
	}
}

type KRStatus string

const (
	KRNotStarted KRStatus = "not_started"
	KROnTrack    KRStatus = "on_track"
	KRAtRisk     KRStatus = "at_risk"
	KRCompleted  KRStatus = "completed"
)

// ParseKRStatus validates a stored key-result status. The empty string is
// accepted and means "derive from progress".
func ParseKRStatus(value string) (KRStatus, error) {
	switch KRStatus(strings.TrimSpace(value)) {
	case "":
		return "", nil
	case KRNotStarted:
		return KRNotStarted, nil
	case KROnTrack:
		return KROnTrack, nil
	case KRAtRisk:
		return KRAtRisk, nil
	case KRCompleted:
		return KRCompleted, nil
	default:
		return KRStatus(value), fmt.Errorf("invalid key result status %q", value)
	}
}

type CycleStatus string

const (
	CyclePlanning CycleStatus = "planning"
	CycleActive   CycleStatus = "active"
	CycleReview   CycleStatus = "review"
	CycleClosed   CycleStatus = "closed"
)

func ParseCycleStatus(value string) (CycleStatus, error) {
	switch CycleStatus(strings.TrimSpace(value)) {
	case CyclePlanning, "":
		return CyclePlanning, nil
	case CycleActive:
		return CycleActive, nil
	case CycleReview:
		return CycleReview, nil
	case CycleClosed:
		return CycleClosed, nil
	default:
		return CycleStatus(value), fmt.Errorf("invalid cycle status %q", value)
	}
}

// Objective is a company, department or individual goal owning its key results.
type Objective struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	OwnerType   OwnerType       `json:"owner_type"`
	OwnerID     string          `json:"owner_id"`
	ParentID    string          `json:"parent_okr_id,omitempty"`
	CycleID     string          `json:"cycle_id"`
	Status      ObjectiveStatus `json:"status"`
	Progress    int             `json:"progress"`
	KeyResults  []KeyResult     `json:"key_results"`

	// Override is set only through the explicit administrative action and
	// takes precedence over computed progress.
	Override *ProgressOverride `json:"progress_override,omitempty"`
}

// ProgressOverride records a manually entered objective progress.
type ProgressOverride struct {
	Progress int       `json:"progress"`
	By       string    `json:"by"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
}

// KeyResult is a measurable sub-goal belonging to exactly one objective.
type KeyResult struct {
	ID          string          `json:"id"`
	ObjectiveID string          `json:"objective_id"`
	Title       string          `json:"title"`
	OwnerID     string          `json:"owner_id,omitempty"`
	Target      float64         `json:"target_value"`
	Current     float64         `json:"current_value"`
	Unit        string          `json:"unit,omitempty"`
	Weight      float64         `json:"weight"`
	Progress    int             `json:"progress"`
	Status      KRStatus        `json:"status"`
	Links       []org.TargetRef `json:"links,omitempty"`
	UpdatedAt   string          `json:"updated_at,omitempty"`
}

// Cycle is a time-boxed period in which a set of objectives is active.
type Cycle struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Year      int         `json:"year"`
	Quarter   int         `json:"quarter,omitempty"`
	CycleType string      `json:"cycle_type,omitempty"`
	StartDate time.Time   `json:"start_date"`
	EndDate   time.Time   `json:"end_date"`
	Status    CycleStatus `json:"status"`
	IsCurrent bool        `json:"is_current"`
}
