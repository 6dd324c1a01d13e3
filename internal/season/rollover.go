package season

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/albapepper/donation-tracker/internal/store"
)

// RolloverStore is the storage needed to open seasons.
type RolloverStore interface {
	SeasonReader
	CreateSeason(ctx context.Context, start, finish time.Time) (store.Season, error)
	RollSeason(ctx context.Context, prev store.Season, finish time.Time) (store.Season, int64, error)
}

// RolloverResult describes what a rollover check did.
type RolloverResult struct {
	Season   store.Season
	Previous *store.Season
	Created  bool
	Carried  int64
}

// Rollover opens a new season when none exists or the current one has
// finished. Otherwise it returns the current season untouched.
func Rollover(ctx context.Context, st RolloverStore, now time.Time, logger *slog.Logger) (RolloverResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	now = now.UTC()
	finish := CurrentSeasonStart(now)

	latest, err := st.LatestSeason(ctx, now)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s, err := st.CreateSeason(ctx, now, finish)
		if errors.Is(err, store.ErrStaleSeason) {
			logger.Info("Season created concurrently, skipping")
			return RolloverResult{}, nil
		}
		if err != nil {
			return RolloverResult{}, fmt.Errorf("create first season: %w", err)
		}
		logger.Info("Created first season", "season_id", s.ID, "finish", s.Finish)
		return RolloverResult{Season: s, Created: true}, nil
	case err != nil:
		return RolloverResult{}, fmt.Errorf("rollover check: %w", err)
	}

	if now.Before(latest.Finish) {
		logger.Debug("Season still running", "season_id", latest.ID, "remaining", latest.Remaining(now))
		return RolloverResult{Season: latest}, nil
	}

	next, carried, err := st.RollSeason(ctx, latest, finish)
	if errors.Is(err, store.ErrStaleSeason) {
		logger.Info("Season rolled over concurrently, skipping", "season_id", latest.ID)
		return RolloverResult{Season: latest}, nil
	}
	if err != nil {
		return RolloverResult{}, err
	}

	logger.Info("Season rolled over",
		"previous_id", latest.ID,
		"season_id", next.ID,
		"start", next.Start,
		"finish", next.Finish,
		"carried", carried,
	)
	return RolloverResult{Season: next, Previous: &latest, Created: true, Carried: carried}, nil
}
