package season

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/albapepper/donation-tracker/internal/store"
)

// SeasonReader reads seasons from storage.
type SeasonReader interface {
	LatestSeason(ctx context.Context, asOf time.Time) (store.Season, error)
}

// Tracker caches the active season. Each run owns its own Tracker or reads
// the id once and passes it on by value.
type Tracker struct {
	store SeasonReader
	now   func() time.Time

	mu     sync.Mutex
	cached *store.Season
}

// NewTracker returns a Tracker reading from st.
func NewTracker(st SeasonReader) *Tracker {
	return &Tracker{store: st, now: time.Now}
}

// WithClock replaces the time source used to pick the current season.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Current returns the latest season whose start is in the past. With
// refresh=false and a cached season, storage is not read. ok=false means no
// season has been configured yet.
func (t *Tracker) Current(ctx context.Context, refresh bool) (store.Season, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !refresh && t.cached != nil {
		return *t.cached, true, nil
	}

	s, err := t.store.LatestSeason(ctx, t.now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		t.cached = nil
		return store.Season{}, false, nil
	}
	if err != nil {
		return store.Season{}, false, fmt.Errorf("current season: %w", err)
	}
	t.cached = &s
	return s, true, nil
}

// SeasonID is Current reduced to the id.
func (t *Tracker) SeasonID(ctx context.Context, refresh bool) (int, bool, error) {
	s, ok, err := t.Current(ctx, refresh)
	return s.ID, ok, err
}

// Invalidate drops the cached season so the next read hits storage.
func (t *Tracker) Invalidate() {
	t.mu.Lock()
	t.cached = nil
	t.mu.Unlock()
}
