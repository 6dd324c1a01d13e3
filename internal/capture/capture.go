// Package capture runs the seasonal snapshot pipeline.
//
// One run reads the work queue for a season (tracked players whose start
// snapshot is missing), splits it into fixed-size groups and processes the
// groups through a bounded worker pool. Each group fetches every tag, buffers
// the snapshots and applies them in one bulk write: the start half of the
// target season and the end half of the season before it. Groups fail
// independently; a failed group's tags stay in the queue for the next run.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/albapepper/donation-tracker/internal/metrics"
	"github.com/albapepper/donation-tracker/internal/provider"
	"github.com/albapepper/donation-tracker/internal/store"
)

const (
	DefaultGroupSize = 100
	DefaultWorkers   = 4

	progressEvery = 10
)

// Store is the storage side of a capture run.
type Store interface {
	PendingPlayerTags(ctx context.Context, seasonID int) ([]string, error)
	ApplySnapshots(ctx context.Context, seasonID int, snaps []provider.PlayerSnapshot) (store.SnapshotWrite, error)
	MarkIgnored(ctx context.Context, seasonID int, tags []string) (int64, error)
}

// Fetcher streams one typed result per distinct tag.
type Fetcher interface {
	Stream(ctx context.Context, tags []string) <-chan provider.FetchResult
}

// Options tunes a Runner. Zero values fall back to the defaults.
type Options struct {
	GroupSize      int
	Workers        int
	IgnoreNotFound bool
	Metrics        *metrics.Manager
	Logger         *slog.Logger
}

// Runner executes capture runs.
type Runner struct {
	store   Store
	fetcher Fetcher
	opts    Options
}

// NewRunner creates a Runner.
func NewRunner(st Store, f Fetcher, opts Options) *Runner {
	if opts.GroupSize < 1 {
		opts.GroupSize = DefaultGroupSize
	}
	if opts.Workers < 1 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{store: st, fetcher: f, opts: opts}
}

// groupOutcome is what one group contributes to the run result.
type groupOutcome struct {
	index    int
	captured int
	wrote    bool
	write    store.SnapshotWrite
	ignored  int64
	skipped  map[provider.SkipReason]int
	err      error
	warnings []string
}

// Run captures start and end snapshots for seasonID. The returned error is
// non-nil only when the work queue cannot be read; group failures are
// reported in the Result.
func (r *Runner) Run(ctx context.Context, seasonID int) (Result, error) {
	start := time.Now()
	result := newResult(uuid.NewString(), seasonID)
	logger := r.opts.Logger.With("run_id", result.RunID, "season_id", seasonID)

	tags, err := r.store.PendingPlayerTags(ctx, seasonID)
	if err != nil {
		return result, fmt.Errorf("capture season %d: %w", seasonID, err)
	}
	result.Queued = len(tags)
	if len(tags) == 0 {
		logger.Info("No pending players to capture")
		result.Duration = time.Since(start)
		r.opts.Metrics.CaptureRun(true, result.Duration)
		return result, nil
	}

	groups := Chunk(tags, r.opts.GroupSize)
	result.Groups = len(groups)
	workers := min(r.opts.Workers, len(groups))
	logger.Info("Starting capture", "players", len(tags), "groups", len(groups), "workers", workers)

	var (
		mu        sync.Mutex
		completed int
		g         errgroup.Group
	)
	g.SetLimit(workers)

	for i, group := range groups {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out := r.runGroup(ctx, logger, seasonID, i+1, group)

			mu.Lock()
			defer mu.Unlock()
			result.merge(out)
			r.record(out)
			completed++
			if completed%progressEvery == 0 || completed == len(groups) {
				logger.Info("Capture progress", "groups_done", completed, "groups", len(groups), "captured", result.Captured)
			}
			return nil
		})
	}
	_ = g.Wait()

	if completed < len(groups) {
		result.AddErrorf("cancelled after %d of %d groups: %v", completed, len(groups), ctx.Err())
	}
	result.Duration = time.Since(start)
	r.opts.Metrics.CaptureRun(result.OK(), result.Duration)

	if result.OK() {
		logger.Info("Capture complete", "summary", result.Summary())
	} else {
		logger.Warn("Capture completed with errors", "summary", result.Summary())
	}
	return result, nil
}

// runGroup fetches the whole group before writing anything.
func (r *Runner) runGroup(ctx context.Context, logger *slog.Logger, seasonID, index int, tags []string) groupOutcome {
	out := groupOutcome{index: index, skipped: make(map[provider.SkipReason]int)}

	snaps := make([]provider.PlayerSnapshot, 0, len(tags))
	var notFound []string
	for res := range r.fetcher.Stream(ctx, tags) {
		if res.OK() {
			snaps = append(snaps, *res.Snapshot)
			continue
		}
		out.skipped[res.Skip.Reason]++
		if res.Skip.Reason == provider.SkipNotFound {
			notFound = append(notFound, res.Tag)
		}
		logger.Debug("Skipped player", "group", index, "tag", res.Tag, "reason", res.Skip.Reason, "error", res.Skip.Err)
	}

	if err := ctx.Err(); err != nil {
		out.err = fmt.Errorf("group %d: %w", index, err)
		return out
	}

	if len(snaps) > 0 {
		w, err := r.store.ApplySnapshots(ctx, seasonID, snaps)
		if err != nil {
			out.err = fmt.Errorf("group %d: %w", index, err)
			logger.Error("Capture group write failed", "group", index, "players", len(tags), "error", err)
			return out
		}
		out.wrote = true
		out.write = w
		out.captured = len(snaps)
	}

	if r.opts.IgnoreNotFound && len(notFound) > 0 {
		n, err := r.store.MarkIgnored(ctx, seasonID, notFound)
		if err != nil {
			out.warnings = append(out.warnings, fmt.Sprintf("group %d: %v", index, err))
		}
		out.ignored = n
	}

	logger.Debug("Capture group done",
		"group", index,
		"players", len(tags),
		"captured", out.captured,
		"started", out.write.Started,
		"finalized", out.write.Finalized,
	)
	return out
}

func (r *Result) merge(out groupOutcome) {
	for reason, n := range out.skipped {
		r.Skipped[reason] += n
	}
	r.Ignored += out.ignored
	r.Errors = append(r.Errors, out.warnings...)
	if out.err != nil {
		r.FailedGroups = append(r.FailedGroups, out.index)
		r.AddErrorf("%v", out.err)
		return
	}
	if out.wrote {
		r.Writes++
	}
	r.Captured += out.captured
	r.Started += out.write.Started
	r.Finalized += out.write.Finalized
}

func (r *Runner) record(out groupOutcome) {
	m := r.opts.Metrics
	m.CaptureGroup(out.err == nil, out.captured)
	for reason, n := range out.skipped {
		m.CaptureSkipped(string(reason), n)
	}
}
