package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"okrdash/internal/records"
	"okrdash/internal/report"
)

// RecomputeJob refreshes every objective of the current cycle, publishes the
// dashboard metrics and writes the day's snapshot.
type RecomputeJob struct {
	Repo        *records.OKRRepository
	SnapshotDir string
	Metrics     *report.Metrics
	Log         zerolog.Logger
	Now         func() time.Time

	mu   sync.Mutex
	last *report.Dashboard
}

func (j *RecomputeJob) Name() string { return "recompute" }

func (j *RecomputeJob) Run(ctx context.Context) error {
	now := time.Now()
	if j.Now != nil {
		now = j.Now()
	}

	cycle, ok, err := j.Repo.CurrentCycle(ctx, now)
	if err != nil {
		return fmt.Errorf("current cycle: %w", err)
	}
	if !ok {
		j.Log.Info().Msg("no current cycle; nothing to recompute")
		return nil
	}

	objectives, err := j.Repo.RecomputeAll(ctx, cycle.ID)
	if err != nil {
		return fmt.Errorf("recompute %s: %w", cycle.ID, err)
	}

	dashboard := report.Build(objectives, cycle, j.Repo.Settings(), now)
	j.Metrics.ObserveDashboard(dashboard)

	if j.SnapshotDir != "" {
		path := report.SnapshotPathForDate(j.SnapshotDir, cycle.ID, now)
		if err := report.WriteSnapshot(path, dashboard); err != nil {
			return err
		}
		j.Log.Info().Str("cycle", cycle.ID).Str("path", path).Int("objectives", len(objectives)).Msg("snapshot written")
	}

	j.mu.Lock()
	j.last = &dashboard
	j.mu.Unlock()
	return nil
}

// Last returns the most recent dashboard built by the job.
func (j *RecomputeJob) Last() (report.Dashboard, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.last == nil {
		return report.Dashboard{}, false
	}
	return *j.last, true
}
