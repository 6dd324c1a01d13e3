// Package scheduler runs the bot's recurring jobs on cron schedules in UTC.
// A job that is still running when its next tick fires is skipped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one named unit of recurring work.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler owns a cron instance for a fixed set of jobs.
type Scheduler struct {
	jobs       []Job
	runOnStart bool
	logger     *slog.Logger
}

// New validates every job spec. With runOnStart each job also runs once when
// Start is called.
func New(jobs []Job, runOnStart bool, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var errs []error
	for _, j := range jobs {
		if j.Run == nil {
			errs = append(errs, fmt.Errorf("job %q: no run func", j.Name))
			continue
		}
		if _, err := cron.ParseStandard(j.Spec); err != nil {
			errs = append(errs, fmt.Errorf("job %q: spec %q: %w", j.Name, j.Spec, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &Scheduler{jobs: jobs, runOnStart: runOnStart, logger: logger}, nil
}

// Start schedules all jobs and blocks until ctx is cancelled, then waits for
// running jobs to return. Intended to be called with `go`.
func (s *Scheduler) Start(ctx context.Context) {
	cl := cronLogger{s.logger}
	c := cron.New(cron.WithLocation(time.UTC), cron.WithLogger(cl))

	var startup sync.WaitGroup
	for _, j := range s.jobs {
		// The chain is per job so startup runs and ticks share one skip lock.
		job := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).
			Then(cron.FuncJob(func() { s.run(ctx, j) }))
		if _, err := c.AddJob(j.Spec, job); err != nil {
			// Specs were validated in New.
			s.logger.Error("Failed to schedule job", "job", j.Name, "error", err)
			continue
		}
		s.logger.Info("Scheduled job", "job", j.Name, "spec", j.Spec)
		if s.runOnStart {
			startup.Add(1)
			go func() {
				defer startup.Done()
				job.Run()
			}()
		}
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	startup.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, j Job) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	err := j.Run(ctx)
	dur := time.Since(start).Round(time.Millisecond)
	if err != nil {
		s.logger.Error("Job failed", "job", j.Name, "duration", dur, "error", err)
		return
	}
	s.logger.Info("Job finished", "job", j.Name, "duration", dur)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
