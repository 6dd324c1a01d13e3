package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/albapepper/donation-tracker/internal/provider"
	"github.com/albapepper/donation-tracker/internal/store"
)

type rowKey struct {
	tag    string
	season int
}

type row struct {
	start       provider.PlayerSnapshot
	end         provider.PlayerSnapshot
	startUpdate bool
	final       bool
	ignore      bool
}

// fakeStore mirrors the flag semantics of the SQL statements.
type fakeStore struct {
	mu      sync.Mutex
	rows    map[rowKey]*row
	writes  int
	failFor func(snaps []provider.PlayerSnapshot) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[rowKey]*row)}
}

func (s *fakeStore) add(season int, tags ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tags {
		s.rows[rowKey{t, season}] = &row{}
	}
}

func (s *fakeStore) get(tag string, season int) row {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rows[rowKey{tag, season}]; ok {
		return *r
	}
	return row{}
}

func (s *fakeStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *fakeStore) PendingPlayerTags(_ context.Context, seasonID int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tags []string
	for k, r := range s.rows {
		if k.season == seasonID && !r.startUpdate && !r.ignore {
			tags = append(tags, k.tag)
		}
	}
	sort.Strings(tags)
	return tags, nil
}

func (s *fakeStore) ApplySnapshots(_ context.Context, seasonID int, snaps []provider.PlayerSnapshot) (store.SnapshotWrite, error) {
	if s.failFor != nil {
		if err := s.failFor(snaps); err != nil {
			return store.SnapshotWrite{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	var w store.SnapshotWrite
	for _, snap := range snaps {
		if r, ok := s.rows[rowKey{snap.Tag, seasonID}]; ok && !r.startUpdate {
			r.start, r.startUpdate = snap, true
			w.Started++
		}
		if r, ok := s.rows[rowKey{snap.Tag, seasonID - 1}]; ok && !r.final {
			r.end, r.final = snap, true
			w.Finalized++
		}
	}
	return w, nil
}

func (s *fakeStore) MarkIgnored(_ context.Context, seasonID int, tags []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, t := range tags {
		if r, ok := s.rows[rowKey{t, seasonID}]; ok && !r.ignore {
			r.ignore = true
			n++
		}
	}
	return n, nil
}

// fakeFetcher answers every tag except the ones listed in skip.
type fakeFetcher struct {
	skip     map[string]provider.SkipReason
	trophies int
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (f *fakeFetcher) Stream(ctx context.Context, tags []string) <-chan provider.FetchResult {
	out := make(chan provider.FetchResult)
	go func() {
		defer close(out)
		n := f.inFlight.Add(1)
		defer f.inFlight.Add(-1)
		for {
			p := f.peak.Load()
			if n <= p || f.peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(f.delay)

		for _, tag := range tags {
			res := provider.FetchResult{Tag: tag}
			if reason, ok := f.skip[tag]; ok {
				res.Skip = &provider.Skip{Reason: reason, Err: errors.New("fetch failed")}
			} else {
				res.Snapshot = &provider.PlayerSnapshot{
					Tag: tag, FriendInNeed: 1000, SharingIsCaring: 10,
					AttackWins: 40, DefenseWins: 2, Trophies: 5000 + f.trophies, BestTrophies: 5500,
				}
			}
			select {
			case out <- res:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func tagRange(from, to int) []string {
	tags := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		tags = append(tags, fmt.Sprintf("#P%03d", i))
	}
	return tags
}

func quietOptions() Options {
	return Options{Logger: slog.New(slog.DiscardHandler)}
}

func TestChunk(t *testing.T) {
	Convey("250 tags split into groups of 100, 100 and 50", t, func() {
		groups := Chunk(tagRange(0, 250), 100)
		So(len(groups), ShouldEqual, 3)
		So(len(groups[0]), ShouldEqual, 100)
		So(len(groups[1]), ShouldEqual, 100)
		So(len(groups[2]), ShouldEqual, 50)
		So(groups[2][0], ShouldEqual, "#P200")
	})

	Convey("Edge sizes", t, func() {
		So(len(Chunk(nil, 100)), ShouldEqual, 0)
		So(len(Chunk(tagRange(0, 100), 100)), ShouldEqual, 1)
		So(len(Chunk(tagRange(0, 3), 0)), ShouldEqual, 3)
	})

	Convey("Appending to one group does not clobber the next", t, func() {
		tags := tagRange(0, 4)
		groups := Chunk(tags, 2)
		_ = append(groups[0], "#X")
		So(groups[1][0], ShouldEqual, "#P002")
	})
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	Convey("Given season 11 with A, B and C pending and season 10 rows for them", t, func() {
		st := newFakeStore()
		st.add(11, "#A", "#B", "#C")
		st.add(10, "#A", "#B", "#C")
		f := &fakeFetcher{skip: map[string]provider.SkipReason{"#B": provider.SkipTransient}}

		res, err := NewRunner(st, f, quietOptions()).Run(ctx, 11)
		So(err, ShouldBeNil)

		Convey("A and C get their start snapshot and season 10's end snapshot", func() {
			for _, tag := range []string{"#A", "#C"} {
				cur := st.get(tag, 11)
				So(cur.startUpdate, ShouldBeTrue)
				So(cur.start.FriendInNeed, ShouldEqual, 1000)
				So(cur.start.AttackWins, ShouldEqual, 40)
				So(cur.start.Trophies, ShouldEqual, 5000)
				So(st.get(tag, 10).final, ShouldBeTrue)
			}
		})

		Convey("B is untouched and still queued", func() {
			So(st.get("#B", 11).startUpdate, ShouldBeFalse)
			So(st.get("#B", 10).final, ShouldBeFalse)
			pending, _ := st.PendingPlayerTags(ctx, 11)
			So(pending, ShouldResemble, []string{"#B"})
		})

		Convey("The skip is reported by reason", func() {
			So(res.Captured, ShouldEqual, 2)
			So(res.Skipped[provider.SkipTransient], ShouldEqual, 1)
			So(res.SkippedTotal(), ShouldEqual, 1)
			So(res.Started, ShouldEqual, int64(2))
			So(res.Finalized, ShouldEqual, int64(2))
			So(res.OK(), ShouldBeTrue)
			So(res.RunID, ShouldNotBeEmpty)
		})
	})

	Convey("Given a work queue of 250 players", t, func() {
		st := newFakeStore()
		st.add(5, tagRange(0, 250)...)
		f := &fakeFetcher{}
		runner := NewRunner(st, f, quietOptions())

		res, err := runner.Run(ctx, 5)
		So(err, ShouldBeNil)

		Convey("Exactly 3 groups and 3 writes are issued", func() {
			So(res.Queued, ShouldEqual, 250)
			So(res.Groups, ShouldEqual, 3)
			So(res.Writes, ShouldEqual, 3)
			So(st.writeCount(), ShouldEqual, 3)
			So(res.Captured, ShouldEqual, 250)
		})

		Convey("A second run performs zero writes", func() {
			again, err := runner.Run(ctx, 5)
			So(err, ShouldBeNil)
			So(again.Queued, ShouldEqual, 0)
			So(again.Writes, ShouldEqual, 0)
			So(st.writeCount(), ShouldEqual, 3)
		})
	})

	Convey("Given three groups where the second group's write fails", t, func() {
		st := newFakeStore()
		st.add(8, tagRange(0, 300)...)
		st.add(7, tagRange(0, 300)...)
		failing := true
		var mu sync.Mutex
		st.failFor = func(snaps []provider.PlayerSnapshot) error {
			mu.Lock()
			defer mu.Unlock()
			if failing && snaps[0].Tag == "#P100" {
				return errors.New("deadlock detected")
			}
			return nil
		}
		f := &fakeFetcher{}
		runner := NewRunner(st, f, quietOptions())

		res, err := runner.Run(ctx, 8)
		So(err, ShouldBeNil)

		Convey("Groups 1 and 3 are written", func() {
			for _, tag := range []string{"#P000", "#P099", "#P200", "#P299"} {
				So(st.get(tag, 8).startUpdate, ShouldBeTrue)
				So(st.get(tag, 7).final, ShouldBeTrue)
			}
			So(res.Writes, ShouldEqual, 2)
			So(res.FailedGroups, ShouldResemble, []int{2})
			So(res.OK(), ShouldBeFalse)
		})

		Convey("Group 2 stays unset and is the next run's queue", func() {
			So(st.get("#P150", 8).startUpdate, ShouldBeFalse)
			So(st.get("#P150", 7).final, ShouldBeFalse)
			pending, _ := st.PendingPlayerTags(ctx, 8)
			So(pending, ShouldResemble, tagRange(100, 200))
		})

		Convey("Flags never revert and start values are written once", func() {
			before := map[rowKey]row{}
			st.mu.Lock()
			for k, r := range st.rows {
				before[k] = *r
			}
			st.mu.Unlock()

			mu.Lock()
			failing = false
			mu.Unlock()
			f.trophies = 77

			again, err := runner.Run(ctx, 8)
			So(err, ShouldBeNil)
			So(again.Queued, ShouldEqual, 100)
			So(again.OK(), ShouldBeTrue)

			for k, was := range before {
				now := st.get(k.tag, k.season)
				if was.startUpdate {
					So(now.startUpdate, ShouldBeTrue)
					So(now.start, ShouldResemble, was.start)
				}
				if was.final {
					So(now.final, ShouldBeTrue)
				}
			}
			So(st.get("#P150", 8).start.Trophies, ShouldEqual, 5077)
			So(st.get("#P000", 8).start.Trophies, ShouldEqual, 5000)
		})
	})

	Convey("Worker fan-out is bounded independently of the group size", t, func() {
		st := newFakeStore()
		st.add(3, tagRange(0, 100)...)
		f := &fakeFetcher{delay: 10 * time.Millisecond}
		opts := quietOptions()
		opts.GroupSize = 10
		opts.Workers = 2

		res, err := NewRunner(st, f, opts).Run(ctx, 3)
		So(err, ShouldBeNil)
		So(res.Groups, ShouldEqual, 10)
		So(res.Writes, ShouldEqual, 10)
		So(f.peak.Load(), ShouldBeLessThanOrEqualTo, int32(2))
	})

	Convey("Not-found players are ignored when configured", t, func() {
		st := newFakeStore()
		st.add(4, "#A", "#GHOST")
		f := &fakeFetcher{skip: map[string]provider.SkipReason{"#GHOST": provider.SkipNotFound}}
		opts := quietOptions()
		opts.IgnoreNotFound = true

		res, err := NewRunner(st, f, opts).Run(ctx, 4)
		So(err, ShouldBeNil)
		So(res.Ignored, ShouldEqual, int64(1))
		So(st.get("#GHOST", 4).ignore, ShouldBeTrue)

		pending, _ := st.PendingPlayerTags(ctx, 4)
		So(pending, ShouldBeEmpty)
	})

	Convey("A cancelled context stops dispatching groups", t, func() {
		st := newFakeStore()
		st.add(2, tagRange(0, 50)...)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		res, err := NewRunner(st, &fakeFetcher{}, quietOptions()).Run(cctx, 2)
		So(err, ShouldBeNil)
		So(res.Writes, ShouldEqual, 0)
		So(res.OK(), ShouldBeFalse)
		So(st.writeCount(), ShouldEqual, 0)
	})

	Convey("The summary lists skip reasons", t, func() {
		r := newResult("run", 9)
		r.Skipped[provider.SkipNotFound] = 2
		r.Skipped[provider.SkipDecode] = 1
		So(r.Summary(), ShouldContainSubstring, "skipped=3[decode:1,not_found:2]")
	})
}
