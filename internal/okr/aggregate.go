package okr

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Contribution is one key result's share of its objective's progress.
type Contribution struct {
	Progress int
	Weight   float64
}

// Aggregate returns the weighted mean of the contributions. When the weights
// sum to zero it falls back to the plain mean; with no contributions it is 0.
// Negative weights count as zero.
func Aggregate(contributions []Contribution) int {
	if len(contributions) == 0 {
		return 0
	}

	values := make([]float64, len(contributions))
	weights := make([]float64, len(contributions))
	var total float64
	for i, c := range contributions {
		values[i] = float64(c.Progress)
		w := c.Weight
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			w = 0
		}
		weights[i] = w
		total += w
	}

	var mean float64
	if total > 0 {
		mean = stat.Mean(values, weights)
	} else {
		mean = stat.Mean(values, nil)
	}
	return clampPercent(int(math.Round(mean)))
}

// Contributions maps key results to their contributions, refreshing each
// key result's progress from its current and target values.
func Contributions(krs []KeyResult) []Contribution {
	out := make([]Contribution, 0, len(krs))
	for _, kr := range krs {
		out = append(out, Contribution{
			Progress: ComputeProgress(kr.Current, kr.Target),
			Weight:   kr.Weight,
		})
	}
	return out
}

// ProgressSource tells whether an objective's progress was computed or entered.
type ProgressSource string

const (
	SourceComputed ProgressSource = "computed"
	SourceManual   ProgressSource = "manual"
)

// ComputedProgress rolls up the objective's key results.
func ComputedProgress(obj Objective) int {
	return Aggregate(Contributions(obj.KeyResults))
}

// EffectiveProgress returns the manual override when one is set, and the
// computed roll-up otherwise.
func EffectiveProgress(obj Objective) (int, ProgressSource) {
	if obj.Override != nil {
		return clampPercent(obj.Override.Progress), SourceManual
	}
	return ComputedProgress(obj), SourceComputed
}

// Recompute refreshes every key result and the objective's progress field.
func (o *Objective) Recompute() {
	for i := range o.KeyResults {
		o.KeyResults[i].Refresh()
	}
	o.Progress, _ = EffectiveProgress(*o)
}

// SetOverride is the administrative action that pins objective progress.
func (o *Objective) SetOverride(override ProgressOverride) {
	override.Progress = clampPercent(override.Progress)
	o.Override = &override
	o.Progress = override.Progress
}

// ClearOverride returns the objective to computed progress.
func (o *Objective) ClearOverride() {
	o.Override = nil
	o.Progress = ComputedProgress(*o)
}

// StatusLabel is the display classification of an objective's progress.
type StatusLabel string

const (
	LabelCompleted      StatusLabel = "Completed"
	LabelAhead          StatusLabel = "Ahead"
	LabelOnTrack        StatusLabel = "On Track"
	LabelNeedsAttention StatusLabel = "Needs Attention"
	LabelBehind         StatusLabel = "Behind"
)

// Classify maps progress to a display label using the default thresholds.
func Classify(progress int, status ObjectiveStatus) StatusLabel {
	return ClassifyWith(DefaultThresholds(), progress, status)
}

// ClassifyWith maps progress to a display label. Every bound is inclusive.
func ClassifyWith(t Thresholds, progress int, status ObjectiveStatus) StatusLabel {
	switch {
	case progress >= 100 || status == ObjectiveCompleted:
		return LabelCompleted
	case progress >= t.Ahead:
		return LabelAhead
	case progress >= t.OnTrack:
		return LabelOnTrack
	case progress >= t.NeedsAttention:
		return LabelNeedsAttention
	default:
		return LabelBehind
	}
}
