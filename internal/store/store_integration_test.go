package store

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/albapepper/donation-tracker/internal/config"
	"github.com/albapepper/donation-tracker/internal/db"
	"github.com/albapepper/donation-tracker/internal/provider"
)

// TestDatabaseEnvVar names a disposable Postgres database. Its tables are
// truncated by the tests below.
const TestDatabaseEnvVar = "TEST_DATABASE_URL"

func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv(TestDatabaseEnvVar)
	if url == "" {
		t.Skipf("%s not set", TestDatabaseEnvVar)
	}
	ctx := context.Background()
	if err := db.Migrate(ctx, url, slog.New(slog.DiscardHandler)); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := db.New(ctx, &config.Config{
		DatabaseURL:    url,
		DBPoolMinConns: 1,
		DBPoolMaxConns: 4,
		DBPoolMaxLife:  time.Hour,
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return New(pool)
}

func (s *Store) truncate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "TRUNCATE players, clans, seasons")
	return err
}

func snapshot(tag string, base int) provider.PlayerSnapshot {
	return provider.PlayerSnapshot{
		Tag:             tag,
		FriendInNeed:    base + 1,
		SharingIsCaring: base + 2,
		AttackWins:      base + 3,
		DefenseWins:     base + 4,
		Trophies:        base + 5,
		BestTrophies:    base + 6,
	}
}

func counters(base int) Counters {
	return Counters{
		FriendInNeed:    base + 1,
		SharingIsCaring: base + 2,
		AttackWins:      base + 3,
		DefenseWins:     base + 4,
		Trophies:        base + 5,
		BestTrophies:    base + 6,
	}
}

func TestStoreAgainstPostgres(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	start := time.Date(2024, 10, 28, 5, 0, 0, 0, time.UTC)
	finish := time.Date(2024, 11, 25, 5, 0, 0, 0, time.UTC)
	next := time.Date(2024, 12, 30, 5, 0, 0, 0, time.UTC)

	Convey("Given a tracked clan with three players in the first season", t, func() {
		So(s.truncate(ctx), ShouldBeNil)

		first, err := s.CreateSeason(ctx, start, finish)
		So(err, ShouldBeNil)
		So(first.ID, ShouldEqual, 1)

		So(s.TrackClan(ctx, Clan{Tag: "#CLAN", Name: "Zulu"}), ShouldBeNil)
		So(s.TrackClan(ctx, Clan{Tag: "#GONE", Name: "Old"}), ShouldBeNil)
		So(s.UntrackClan(ctx, "#GONE"), ShouldBeNil)

		n, err := s.UpsertMembers(ctx, first.ID, "#CLAN", []provider.ClanMember{
			{Tag: "#A", Name: "a", Donations: 300, Received: 100},
			{Tag: "#B", Name: "b", Donations: 900, Received: 50},
			{Tag: "#C", Name: "c", Donations: 10, Received: 0},
		})
		So(err, ShouldBeNil)
		So(n, ShouldEqual, 3)
		_, err = s.UpsertMembers(ctx, first.ID, "#GONE", []provider.ClanMember{{Tag: "#D", Name: "d"}})
		So(err, ShouldBeNil)

		Convey("Only players of tracked clans are pending", func() {
			tags, err := s.PendingPlayerTags(ctx, first.ID)
			So(err, ShouldBeNil)
			So(tags, ShouldResemble, []string{"#A", "#B", "#C"})
		})

		Convey("Each counter lands in its own start column", func() {
			w, err := s.ApplySnapshots(ctx, first.ID, []provider.PlayerSnapshot{snapshot("#A", 10)})
			So(err, ShouldBeNil)
			So(w, ShouldResemble, SnapshotWrite{Started: 1, Finalized: 0})

			rec, err := s.PlayerRecord(ctx, "#A", first.ID)
			So(err, ShouldBeNil)
			So(rec.StartUpdate, ShouldBeTrue)
			So(rec.Start, ShouldResemble, counters(10))
		})

		Convey("A start snapshot is written at most once", func() {
			_, err := s.ApplySnapshots(ctx, first.ID, []provider.PlayerSnapshot{snapshot("#A", 10)})
			So(err, ShouldBeNil)

			w, err := s.ApplySnapshots(ctx, first.ID, []provider.PlayerSnapshot{snapshot("#A", 500)})
			So(err, ShouldBeNil)
			So(w.Started, ShouldEqual, 0)

			rec, err := s.PlayerRecord(ctx, "#A", first.ID)
			So(err, ShouldBeNil)
			So(rec.Start, ShouldResemble, counters(10))
		})

		Convey("Ignored players leave the queue", func() {
			n, err := s.MarkIgnored(ctx, first.ID, []string{"#B"})
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
			tags, err := s.PendingPlayerTags(ctx, first.ID)
			So(err, ShouldBeNil)
			So(tags, ShouldResemble, []string{"#A", "#C"})
		})

		Convey("The leaderboard ranks by donations", func() {
			entries, err := s.Leaderboard(ctx, LeaderboardQuery{SeasonID: first.ID, ClanTag: "#CLAN", Limit: 2})
			So(err, ShouldBeNil)
			So(entries, ShouldHaveLength, 2)
			So(entries[0].Tag, ShouldEqual, "#B")
			So(entries[0].Rank, ShouldEqual, 1)
			So(entries[1].Tag, ShouldEqual, "#A")
			So(entries[1].Ratio, ShouldEqual, 3.0)
		})

		Convey("A second first season is refused", func() {
			_, err := s.CreateSeason(ctx, start, finish)
			So(errors.Is(err, ErrStaleSeason), ShouldBeTrue)
		})

		Convey("When the season is rolled", func() {
			So(s.LinkPlayer(ctx, "#A", "u-1"), ShouldBeNil)

			second, carried, err := s.RollSeason(ctx, first, next)
			So(err, ShouldBeNil)
			So(second.ID, ShouldEqual, first.ID+1)
			So(second.Start, ShouldEqual, finish)
			So(carried, ShouldEqual, 3)

			Convey("Tracked players are carried with zeroed counters", func() {
				rec, err := s.PlayerRecord(ctx, "#A", second.ID)
				So(err, ShouldBeNil)
				So(rec.StartUpdate, ShouldBeFalse)
				So(rec.Donations, ShouldEqual, 0)
				So(rec.ClanTag, ShouldEqual, "#CLAN")
				So(*rec.UserID, ShouldEqual, "u-1")

				_, err = s.PlayerRecord(ctx, "#D", second.ID)
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})

			Convey("Rolling from the old season again is stale", func() {
				_, _, err := s.RollSeason(ctx, first, next)
				So(errors.Is(err, ErrStaleSeason), ShouldBeTrue)
			})

			Convey("A partial capture finalizes the previous season only for fetched players", func() {
				snaps := []provider.PlayerSnapshot{snapshot("#A", 100), snapshot("#C", 300)}
				w, err := s.ApplySnapshots(ctx, second.ID, snaps)
				So(err, ShouldBeNil)
				So(w, ShouldResemble, SnapshotWrite{Started: 2, Finalized: 2})

				for _, tag := range []string{"#A", "#C"} {
					cur, err := s.PlayerRecord(ctx, tag, second.ID)
					So(err, ShouldBeNil)
					So(cur.StartUpdate, ShouldBeTrue)
					So(cur.FinalUpdate, ShouldBeFalse)

					prev, err := s.PlayerRecord(ctx, tag, first.ID)
					So(err, ShouldBeNil)
					So(prev.FinalUpdate, ShouldBeTrue)
					So(prev.End, ShouldResemble, cur.Start)
				}

				b, err := s.PlayerRecord(ctx, "#B", first.ID)
				So(err, ShouldBeNil)
				So(b.FinalUpdate, ShouldBeFalse)

				tags, err := s.PendingPlayerTags(ctx, second.ID)
				So(err, ShouldBeNil)
				So(tags, ShouldResemble, []string{"#B"})

				Convey("and rerunning the same batch changes nothing", func() {
					again := []provider.PlayerSnapshot{snapshot("#A", 700), snapshot("#C", 900)}
					w, err := s.ApplySnapshots(ctx, second.ID, again)
					So(err, ShouldBeNil)
					So(w, ShouldResemble, SnapshotWrite{})

					prev, err := s.PlayerRecord(ctx, "#A", first.ID)
					So(err, ShouldBeNil)
					So(prev.End, ShouldResemble, counters(100))
				})
			})
		})

		Convey("Season ids stay contiguous after a rolled back insert", func() {
			tx, err := s.pool.Begin(ctx)
			So(err, ShouldBeNil)
			var abandoned int
			So(tx.QueryRow(ctx, insertSeasonSQL, finish, next).Scan(&abandoned), ShouldBeNil)
			So(abandoned, ShouldEqual, first.ID+1)
			So(tx.Rollback(ctx), ShouldBeNil)

			second, _, err := s.RollSeason(ctx, first, next)
			So(err, ShouldBeNil)
			So(second.ID, ShouldEqual, first.ID+1)
		})

		Convey("Season ids have no sequence default", func() {
			var seq *string
			So(s.pool.QueryRow(ctx, "SELECT pg_get_serial_sequence('seasons', 'id')").Scan(&seq), ShouldBeNil)
			So(seq, ShouldBeNil)
		})
	})
}
