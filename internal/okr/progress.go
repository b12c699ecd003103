package okr

import "math"

// ComputeProgress returns round(current/target*100) clamped to 0..100.
// A non-positive target yields 0.
func ComputeProgress(current, target float64) int {
	if target <= 0 {
		return 0
	}
	ratio := current / target * 100
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return 0
	}
	return clampPercent(int(math.Round(ratio)))
}

// DeriveKRStatus combines progress with the stored status. Reaching 100% always
// completes the key result; otherwise a stored status is kept, and an empty one
// is derived from whether any progress was made.
func DeriveKRStatus(progress int, stored KRStatus) KRStatus {
	if progress >= 100 {
		return KRCompleted
	}
	if stored != "" {
		return stored
	}
	if progress <= 0 {
		return KRNotStarted
	}
	return KROnTrack
}

// Refresh recomputes the derived progress and status fields.
func (kr *KeyResult) Refresh() {
	kr.Progress = ComputeProgress(kr.Current, kr.Target)
	kr.Status = DeriveKRStatus(kr.Progress, kr.Status)
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
