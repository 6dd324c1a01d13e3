package season

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/albapepper/donation-tracker/internal/store"
)

func utc(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func TestCurrentSeasonStart(t *testing.T) {
	Convey("Given a month whose last day is a Monday", t, func() {
		// 2024-09-30 is a Monday.
		So(CurrentSeasonStart(utc(2024, 9, 10, 12)), ShouldEqual, utc(2024, 9, 30, BoundaryHour))

		Convey("The boundary hour itself belongs to the next season", func() {
			So(CurrentSeasonStart(utc(2024, 9, 30, BoundaryHour)), ShouldEqual, utc(2024, 10, 28, BoundaryHour))
			So(CurrentSeasonStart(utc(2024, 9, 30, 4)), ShouldEqual, utc(2024, 9, 30, BoundaryHour))
		})
	})

	Convey("Given a month whose last Monday is earlier than the last day", t, func() {
		// 2024-10-31 is a Thursday; the last Monday is the 28th.
		So(CurrentSeasonStart(utc(2024, 10, 1, 0)), ShouldEqual, utc(2024, 10, 28, BoundaryHour))

		Convey("Days after the boundary resolve to the following month", func() {
			So(CurrentSeasonStart(utc(2024, 10, 29, 0)), ShouldEqual, utc(2024, 11, 25, BoundaryHour))
		})
	})

	Convey("December rolls over into January of the next year", t, func() {
		// 2024-12-30 is the last Monday of December; 2025-01-27 of January.
		So(CurrentSeasonStart(utc(2024, 12, 15, 0)), ShouldEqual, utc(2024, 12, 30, BoundaryHour))
		So(CurrentSeasonStart(utc(2024, 12, 31, 0)), ShouldEqual, utc(2025, 1, 27, BoundaryHour))
	})

	Convey("Leap February is handled", t, func() {
		So(CurrentSeasonStart(utc(2024, 2, 1, 0)), ShouldEqual, utc(2024, 2, 26, BoundaryHour))
	})

	Convey("The result does not depend on the caller's time zone", t, func() {
		tokyo := time.FixedZone("JST", 9*3600)
		local := time.Date(2024, 10, 28, 13, 59, 0, 0, tokyo) // 04:59 UTC
		So(CurrentSeasonStart(local), ShouldEqual, utc(2024, 10, 28, BoundaryHour))
	})

	Convey("Every boundary across several years is a Monday at the boundary hour", t, func() {
		for d := utc(2023, 1, 1, 0); d.Before(utc(2027, 1, 1, 0)); d = d.AddDate(0, 0, 3) {
			b := CurrentSeasonStart(d)
			So(b.Weekday(), ShouldEqual, time.Monday)
			So(b.Hour(), ShouldEqual, BoundaryHour)
			So(b.After(d), ShouldBeTrue)
			So(b.AddDate(0, 0, 7).Month(), ShouldNotEqual, b.Month())
		}
	})
}

// fakeSeasons is an in-memory season table.
type fakeSeasons struct {
	mu      sync.Mutex
	seasons []store.Season
	reads   int
	err     error
	carried int64
}

func (f *fakeSeasons) LatestSeason(_ context.Context, asOf time.Time) (store.Season, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.err != nil {
		return store.Season{}, f.err
	}
	for i := len(f.seasons) - 1; i >= 0; i-- {
		if !f.seasons[i].Start.After(asOf) {
			return f.seasons[i], nil
		}
	}
	return store.Season{}, store.ErrNotFound
}

func (f *fakeSeasons) CreateSeason(_ context.Context, start, finish time.Time) (store.Season, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.seasons) > 0 {
		return store.Season{}, store.ErrStaleSeason
	}
	s := store.Season{ID: 1, Start: start, Finish: finish}
	f.seasons = append(f.seasons, s)
	return s, nil
}

func (f *fakeSeasons) RollSeason(_ context.Context, prev store.Season, finish time.Time) (store.Season, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seasons[len(f.seasons)-1].ID != prev.ID {
		return store.Season{}, 0, store.ErrStaleSeason
	}
	s := store.Season{ID: prev.ID + 1, Start: prev.Finish, Finish: finish}
	f.seasons = append(f.seasons, s)
	return s, f.carried, nil
}

func TestTracker(t *testing.T) {
	ctx := context.Background()

	Convey("Given a tracker over a store with one season", t, func() {
		st := &fakeSeasons{seasons: []store.Season{
			{ID: 11, Start: utc(2024, 9, 30, 5), Finish: utc(2024, 10, 28, 5)},
		}}
		tr := NewTracker(st)
		tr.now = func() time.Time { return utc(2024, 10, 10, 0) }

		Convey("The first read hits storage and later reads use the cache", func() {
			id, ok, err := tr.SeasonID(ctx, false)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(id, ShouldEqual, 11)

			_, _, _ = tr.SeasonID(ctx, false)
			So(st.reads, ShouldEqual, 1)
		})

		Convey("Refresh always reads storage", func() {
			_, _, _ = tr.SeasonID(ctx, false)
			st.seasons = append(st.seasons, store.Season{ID: 12, Start: utc(2024, 10, 5, 0), Finish: utc(2024, 10, 28, 5)})
			id, _, _ := tr.SeasonID(ctx, true)
			So(id, ShouldEqual, 12)
			So(st.reads, ShouldEqual, 2)
		})

		Convey("Invalidate forces the next read", func() {
			_, _, _ = tr.SeasonID(ctx, false)
			tr.Invalidate()
			_, _, _ = tr.SeasonID(ctx, false)
			So(st.reads, ShouldEqual, 2)
		})
	})

	Convey("With no season in the past the tracker reports absence", t, func() {
		st := &fakeSeasons{seasons: []store.Season{
			{ID: 1, Start: utc(2030, 1, 1, 0), Finish: utc(2030, 1, 28, 5)},
		}}
		tr := NewTracker(st)
		tr.now = func() time.Time { return utc(2024, 10, 10, 0) }

		id, ok, err := tr.SeasonID(ctx, false)
		So(err, ShouldBeNil)
		So(ok, ShouldBeFalse)
		So(id, ShouldEqual, 0)
	})

	Convey("Storage errors are returned, not treated as absence", t, func() {
		tr := NewTracker(&fakeSeasons{err: errors.New("conn refused")})
		_, ok, err := tr.SeasonID(ctx, false)
		So(err, ShouldNotBeNil)
		So(ok, ShouldBeFalse)
	})
}

func TestRollover(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	Convey("An empty store gets its first season ending at the next boundary", t, func() {
		st := &fakeSeasons{}
		now := utc(2024, 10, 10, 0)
		res, err := Rollover(ctx, st, now, logger)
		So(err, ShouldBeNil)
		So(res.Created, ShouldBeTrue)
		So(res.Season.Start, ShouldEqual, now)
		So(res.Season.Finish, ShouldEqual, utc(2024, 10, 28, 5))
	})

	Convey("Given a running season", t, func() {
		st := &fakeSeasons{carried: 42, seasons: []store.Season{
			{ID: 10, Start: utc(2024, 9, 30, 5), Finish: utc(2024, 10, 28, 5)},
		}}

		Convey("Before its finish nothing changes", func() {
			res, err := Rollover(ctx, st, utc(2024, 10, 27, 23), logger)
			So(err, ShouldBeNil)
			So(res.Created, ShouldBeFalse)
			So(res.Season.ID, ShouldEqual, 10)
			So(len(st.seasons), ShouldEqual, 1)
		})

		Convey("At its finish the next season starts where it ended", func() {
			res, err := Rollover(ctx, st, utc(2024, 10, 28, 5), logger)
			So(err, ShouldBeNil)
			So(res.Created, ShouldBeTrue)
			So(res.Season.ID, ShouldEqual, 11)
			So(res.Season.Start, ShouldEqual, utc(2024, 10, 28, 5))
			So(res.Season.Finish, ShouldEqual, utc(2024, 11, 25, 5))
			So(res.Previous.ID, ShouldEqual, 10)
			So(res.Carried, ShouldEqual, int64(42))

			Convey("A second check on the same day is a no-op", func() {
				res, err := Rollover(ctx, st, utc(2024, 10, 28, 6), logger)
				So(err, ShouldBeNil)
				So(res.Created, ShouldBeFalse)
				So(res.Season.ID, ShouldEqual, 11)
			})
		})
	})
}
