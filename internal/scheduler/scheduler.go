// Package scheduler runs recurring background jobs on cron schedules and
// records every run in the job_runs table.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"okrdash/internal/records"
)

// Job is a unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Run statuses stored in job_runs.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Scheduler manages background jobs.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
	runs records.Store
	now  func() time.Time

	mu  sync.Mutex
	ctx context.Context
}

// New creates a scheduler evaluating schedules in loc (UTC when nil). runs
// may be nil, in which case job runs are only logged.
func New(log zerolog.Logger, runs records.Store, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron: cron.New(cron.WithLocation(loc)),
		log:  log.With().Str("component", "scheduler").Logger(),
		runs: runs,
		now:  time.Now,
		ctx:  context.Background(),
	}
}

// AddJob registers a job with a cron schedule.
// Schedule examples:
//   - "0 2 * * *"      - 02:00 every day
//   - "@hourly"        - every hour
//   - "0 9 * * MON"    - 09:00 on Mondays
//   - "@every 30s"     - every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.RunNow(s.baseContext(), job); err != nil {
			s.log.Error().Err(err).Str("job", job.Name()).Msg("job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", job.Name(), schedule, err)
	}

	s.log.Info().Str("schedule", schedule).Str("job", job.Name()).Msg("job registered")
	return nil
}

// Run starts the scheduler and blocks until ctx is cancelled, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("scheduler started")

	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.log.Info().Msg("scheduler stopped")
	return nil
}

// RunNow executes a job immediately and records the run.
func (s *Scheduler) RunNow(ctx context.Context, job Job) error {
	started := s.now().UTC()
	s.log.Debug().Str("job", job.Name()).Msg("running job")

	err := job.Run(ctx)

	finished := s.now().UTC()
	status := RunSucceeded
	rec := records.Record{
		"job":         job.Name(),
		"started_at":  started.Format(time.RFC3339Nano),
		"finished_at": finished.Format(time.RFC3339Nano),
		"duration_ms": finished.Sub(started).Milliseconds(),
	}
	if err != nil {
		status = RunFailed
		rec["error"] = err.Error()
	}
	rec["status"] = status

	if s.runs != nil {
		if _, insertErr := s.runs.Insert(ctx, records.TableJobRuns, rec); insertErr != nil {
			s.log.Warn().Err(insertErr).Str("job", job.Name()).Msg("record job run failed")
		}
	}
	s.log.Debug().Str("job", job.Name()).Str("status", status).Msg("job finished")
	return err
}

func (s *Scheduler) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}
