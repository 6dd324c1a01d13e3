// Package jobs composes rollover, capture and clan sync into the units of
// work run by the scheduler and the CLI.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/albapepper/donation-tracker/internal/capture"
	"github.com/albapepper/donation-tracker/internal/clansync"
	"github.com/albapepper/donation-tracker/internal/metrics"
	"github.com/albapepper/donation-tracker/internal/season"
)

// Store is everything the jobs read and write.
type Store interface {
	season.RolloverStore
	capture.Store
	clansync.Store
}

// Deps holds the shared dependencies for all jobs.
type Deps struct {
	Store       Store
	Players     capture.Fetcher
	Members     clansync.MemberFetcher
	Capture     capture.Options
	SyncWorkers int
	Metrics     *metrics.Manager
	Logger      *slog.Logger

	// Invalidate is called after a job changed stored data.
	Invalidate func()

	now func() time.Time
}

func (d *Deps) clock() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}

func (d *Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Deps) invalidate() {
	if d.Invalidate != nil {
		d.Invalidate()
	}
}

// SeasonTickResult reports a daily season check.
type SeasonTickResult struct {
	Rollover season.RolloverResult
	Capture  *capture.Result
}

// SeasonTick opens a new season when the boundary has passed, then captures
// snapshots for the current season.
func SeasonTick(ctx context.Context, d *Deps) (SeasonTickResult, error) {
	var out SeasonTickResult
	logger := d.logger()

	ro, err := season.Rollover(ctx, d.Store, d.clock(), logger)
	if err != nil {
		return out, fmt.Errorf("season tick: %w", err)
	}
	out.Rollover = ro
	if ro.Created {
		d.Metrics.Rollover()
		d.invalidate()
	}

	seasonID := ro.Season.ID
	if seasonID == 0 {
		id, ok, err := season.NewTracker(d.Store).WithClock(d.clock).SeasonID(ctx, true)
		if err != nil {
			return out, fmt.Errorf("season tick: %w", err)
		}
		if !ok {
			logger.Info("No season configured yet, nothing to capture")
			return out, nil
		}
		seasonID = id
	}

	res, err := CaptureSeason(ctx, d, seasonID)
	if err != nil {
		return out, err
	}
	out.Capture = &res
	return out, nil
}

// CaptureSeason runs one capture for seasonID.
func CaptureSeason(ctx context.Context, d *Deps, seasonID int) (capture.Result, error) {
	opts := d.Capture
	if opts.Logger == nil {
		opts.Logger = d.logger()
	}
	if opts.Metrics == nil {
		opts.Metrics = d.Metrics
	}
	res, err := capture.NewRunner(d.Store, d.Players, opts).Run(ctx, seasonID)
	if err != nil {
		return res, err
	}
	if res.Writes > 0 || res.Ignored > 0 {
		d.invalidate()
	}
	return res, nil
}

// CaptureCurrent captures the current season. ok=false means no season has
// been configured.
func CaptureCurrent(ctx context.Context, d *Deps) (capture.Result, bool, error) {
	id, ok, err := season.NewTracker(d.Store).WithClock(d.clock).SeasonID(ctx, true)
	if err != nil || !ok {
		return capture.Result{}, ok, err
	}
	res, err := CaptureSeason(ctx, d, id)
	return res, true, err
}

// SyncTick refreshes live donation counters of tracked clans in the current
// season. ok=false means no season has been configured.
func SyncTick(ctx context.Context, d *Deps) (clansync.Result, bool, error) {
	id, ok, err := season.NewTracker(d.Store).WithClock(d.clock).SeasonID(ctx, true)
	if err != nil {
		return clansync.Result{}, false, fmt.Errorf("sync tick: %w", err)
	}
	if !ok {
		d.logger().Info("No season configured yet, skipping clan sync")
		return clansync.Result{}, false, nil
	}

	res, err := clansync.New(d.Store, d.Members, d.SyncWorkers, d.Metrics, d.logger()).Sync(ctx, id)
	if err != nil {
		return res, true, err
	}
	if res.Members > 0 {
		d.invalidate()
	}
	return res, true, nil
}
