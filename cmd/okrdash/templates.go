package main

import (
	"fmt"
	"time"
)

// quarterCyclesTemplate returns a cycles.yml seeded with the quarter that
// contains now, flagged current.
func quarterCyclesTemplate(now time.Time) (string, string) {
	now = now.UTC()
	quarter := (int(now.Month())-1)/3 + 1
	start := time.Date(now.Year(), time.Month((quarter-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 3, -1)
	id := fmt.Sprintf("%d-q%d", now.Year(), quarter)

	yml := fmt.Sprintf(`cycles:
  - cycle_id: %s
    name: Q%d %d
    year: %d
    quarter: %d
    cycle_type: quarterly
    start_date: %s
    end_date: %s
    status: active
    is_current: true
`, id, quarter, now.Year(), now.Year(), quarter, start.Format("2006-01-02"), end.Format("2006-01-02"))
	return id, yml
}

func companyTemplate(cycleID string) string {
	return fmt.Sprintf(`scope: company
cycle_id: %s
objectives:
  - objective_id: OBJ-INIT-1
    title: Establish a shared OKR practice.
    owner_id: company
    status: active
    key_results:
      - kr_id: KR-INIT-1
        title: Every department publishes its objectives.
        owner_id: people-lead
        target: 1
        current: 0
        unit: departments
        links:
          - type: department
            id: people
`, cycleID)
}

const minimalOrgTemplate = `departments:
  - id: people
    name: People
positions:
  - id: people-lead
    title: People Lead
    department_id: people
employees:
  - id: people-lead
    name: People Lead
    department_id: people
    position_id: people-lead
`

const minimalPermissionsTemplate = `permissions:
  write:
    - owner_id_match
    - delegated_explicitly
admins: []
delegations: {}
`

const minimalSettingsTemplate = `timezone: UTC
max_depth: 3
thresholds:
  ahead: 80
  on_track: 60
  needs_attention: 40
`
