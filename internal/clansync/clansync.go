// Package clansync refreshes live donation counters for every tracked clan.
//
// Each clan's member list is upserted into the current season, which also
// enrolls new members into the capture work queue.
package clansync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/albapepper/donation-tracker/internal/metrics"
	"github.com/albapepper/donation-tracker/internal/provider"
	"github.com/albapepper/donation-tracker/internal/store"
)

const defaultWorkers = 4

// Store is the storage side of a sync.
type Store interface {
	ListClans(ctx context.Context, onlyInUse bool) ([]store.Clan, error)
	UpsertMembers(ctx context.Context, seasonID int, clanTag string, members []provider.ClanMember) (int64, error)
}

// MemberFetcher fetches a clan's member list.
type MemberFetcher interface {
	GetMembers(ctx context.Context, clanTag string) ([]provider.ClanMember, error)
}

// Result tracks the outcome of one sync.
type Result struct {
	SeasonID int
	Clans    int
	Synced   int
	Members  int64
	Errors   []string
	Duration time.Duration
}

// AddErrorf records a formatted error message.
func (r *Result) AddErrorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Summary returns a human-readable summary of the sync.
func (r *Result) Summary() string {
	return fmt.Sprintf("season=%d clans=%d synced=%d members=%d errors=%d duration=%s",
		r.SeasonID, r.Clans, r.Synced, r.Members, len(r.Errors), r.Duration.Round(time.Millisecond))
}

// Syncer runs clan syncs.
type Syncer struct {
	store   Store
	fetcher MemberFetcher
	workers int
	metrics *metrics.Manager
	logger  *slog.Logger
}

// New creates a Syncer. workers <= 0 uses the default.
func New(st Store, f MemberFetcher, workers int, m *metrics.Manager, logger *slog.Logger) *Syncer {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{store: st, fetcher: f, workers: workers, metrics: m, logger: logger}
}

// Sync refreshes every in-use clan for seasonID. One clan failing does not
// stop the others.
func (s *Syncer) Sync(ctx context.Context, seasonID int) (Result, error) {
	start := time.Now()
	result := Result{SeasonID: seasonID}

	clans, err := s.store.ListClans(ctx, true)
	if err != nil {
		return result, fmt.Errorf("clan sync: %w", err)
	}
	result.Clans = len(clans)
	if len(clans) == 0 {
		s.logger.Info("No tracked clans to sync")
		result.Duration = time.Since(start)
		return result, nil
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.workers)

	for _, clan := range clans {
		g.Go(func() error {
			n, err := s.syncClan(ctx, seasonID, clan.Tag)
			s.metrics.SyncClan(clan.Tag, n, err)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.AddErrorf("%s: %v", clan.Tag, err)
				s.logger.Warn("Clan sync failed", "clan", clan.Tag, "error", err)
				return nil
			}
			result.Synced++
			result.Members += n
			return nil
		})
	}
	_ = g.Wait()

	result.Duration = time.Since(start)
	s.logger.Info("Clan sync complete", "summary", result.Summary())
	return result, nil
}

func (s *Syncer) syncClan(ctx context.Context, seasonID int, clanTag string) (int64, error) {
	members, err := s.fetcher.GetMembers(ctx, clanTag)
	if err != nil {
		return 0, err
	}
	return s.store.UpsertMembers(ctx, seasonID, clanTag, members)
}
