// Package report builds the OKR dashboard view and its on-disk snapshots.
package report

import (
	"sort"
	"time"

	"okrdash/internal/okr"
)

const DashboardSchemaVersion = 1

// KeyResultRow is one key result as shown on the dashboard.
type KeyResultRow struct {
	ID       string       `json:"id"`
	Title    string       `json:"title"`
	OwnerID  string       `json:"owner_id,omitempty"`
	Current  float64      `json:"current_value"`
	Target   float64      `json:"target_value"`
	Unit     string       `json:"unit,omitempty"`
	Weight   float64      `json:"weight"`
	Progress int          `json:"progress"`
	Status   okr.KRStatus `json:"status"`
}

// ObjectiveRow is one objective with its roll-up and alignment context.
type ObjectiveRow struct {
	ID                string              `json:"id"`
	Title             string              `json:"title"`
	OwnerType         okr.OwnerType       `json:"owner_type"`
	OwnerID           string              `json:"owner_id"`
	ParentID          string              `json:"parent_okr_id,omitempty"`
	ParentTitle       string              `json:"parent_title,omitempty"`
	Status            okr.ObjectiveStatus `json:"status"`
	ComputedProgress  int                 `json:"computed_progress"`
	EffectiveProgress int                 `json:"progress"`
	Source            okr.ProgressSource  `json:"progress_source"`
	Label             okr.StatusLabel     `json:"label"`
	ChildCount        int                 `json:"child_count"`
	KeyResults        []KeyResultRow      `json:"key_results"`
}

// CycleBlock describes the cycle the dashboard covers.
type CycleBlock struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	StartDate string          `json:"start_date"`
	EndDate   string          `json:"end_date"`
	Status    okr.CycleStatus `json:"status"`
	Time      okr.CycleTime   `json:"time"`
}

// Dashboard is the full progress view of one cycle.
type Dashboard struct {
	SchemaVersion int                     `json:"schema_version"`
	GeneratedAt   string                  `json:"generated_at"`
	Cycle         *CycleBlock             `json:"cycle,omitempty"`
	Objectives    []ObjectiveRow          `json:"objectives"`
	Labels        map[okr.StatusLabel]int `json:"labels"`
	KRStatuses    map[okr.KRStatus]int    `json:"kr_statuses"`
	Average       int                     `json:"average_progress"`
}

// Build assembles the dashboard. A zero cycle omits the cycle block.
func Build(objectives []okr.Objective, cycle okr.Cycle, settings okr.Settings, now time.Time) Dashboard {
	d := Dashboard{
		SchemaVersion: DashboardSchemaVersion,
		GeneratedAt:   now.UTC().Format(time.RFC3339),
		Objectives:    make([]ObjectiveRow, 0, len(objectives)),
		Labels:        make(map[okr.StatusLabel]int),
		KRStatuses:    make(map[okr.KRStatus]int),
	}

	if cycle.ID != "" {
		d.Cycle = &CycleBlock{
			ID:        cycle.ID,
			Name:      cycle.Name,
			StartDate: cycle.StartDate.Format("2006-01-02"),
			EndDate:   cycle.EndDate.Format("2006-01-02"),
			Status:    cycle.Status,
			Time:      cycle.Progress(now, settings),
		}
	}

	sorted := append([]okr.Objective(nil), objectives...)
	sort.SliceStable(sorted, func(i, j int) bool {
		li, lj := sorted[i].OwnerType.Level(), sorted[j].OwnerType.Level()
		if li != lj {
			return li < lj
		}
		return sorted[i].ID < sorted[j].ID
	})

	children := okr.ChildCounts(objectives)
	total := 0
	for _, obj := range sorted {
		row := buildRow(obj, objectives, settings)
		row.ChildCount = children[obj.ID]
		d.Objectives = append(d.Objectives, row)
		d.Labels[row.Label]++
		for _, kr := range row.KeyResults {
			d.KRStatuses[kr.Status]++
		}
		total += row.EffectiveProgress
	}
	if len(sorted) > 0 {
		d.Average = (total + len(sorted)/2) / len(sorted)
	}
	return d
}

func buildRow(obj okr.Objective, all []okr.Objective, settings okr.Settings) ObjectiveRow {
	effective, source := okr.EffectiveProgress(obj)
	thresholds := settings.Thresholds
	if thresholds == (okr.Thresholds{}) {
		thresholds = okr.DefaultThresholds()
	}
	row := ObjectiveRow{
		ID:                obj.ID,
		Title:             obj.Title,
		OwnerType:         obj.OwnerType,
		OwnerID:           obj.OwnerID,
		ParentID:          obj.ParentID,
		Status:            obj.Status,
		ComputedProgress:  okr.ComputedProgress(obj),
		EffectiveProgress: effective,
		Source:            source,
		Label:             okr.ClassifyWith(thresholds, effective, obj.Status),
		KeyResults:        make([]KeyResultRow, 0, len(obj.KeyResults)),
	}
	if parent, ok := okr.ResolveParent(obj, all); ok {
		row.ParentTitle = parent.Title
	}
	for _, kr := range obj.KeyResults {
		kr.Refresh()
		row.KeyResults = append(row.KeyResults, KeyResultRow{
			ID:       kr.ID,
			Title:    kr.Title,
			OwnerID:  kr.OwnerID,
			Current:  kr.Current,
			Target:   kr.Target,
			Unit:     kr.Unit,
			Weight:   kr.Weight,
			Progress: kr.Progress,
			Status:   kr.Status,
		})
	}
	return row
}
