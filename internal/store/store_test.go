package store

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/albapepper/donation-tracker/internal/provider"
)

func TestColumnsOf(t *testing.T) {
	Convey("Given a snapshot batch with a repeated tag", t, func() {
		snaps := []provider.PlayerSnapshot{
			{Tag: "#A", FriendInNeed: 10, SharingIsCaring: 1, AttackWins: 2, DefenseWins: 3, Trophies: 4, BestTrophies: 5},
			{Tag: "#B", FriendInNeed: 20},
			{Tag: "#A", FriendInNeed: 99},
		}
		cols := columnsOf(snaps)

		Convey("Each tag appears once, first occurrence wins", func() {
			So(cols.tags, ShouldResemble, []string{"#A", "#B"})
			So(cols.fin, ShouldResemble, []int32{10, 20})
		})

		Convey("Every column has the same length", func() {
			for _, col := range [][]int32{cols.fin, cols.sic, cols.attacks, cols.defenses, cols.tr, cols.bestTr} {
				So(len(col), ShouldEqual, len(cols.tags))
			}
		})

		Convey("Arguments follow the unnest order after the season id", func() {
			args := cols.args(11)
			So(len(args), ShouldEqual, 8)
			So(args[0], ShouldEqual, 11)
			So(args[1], ShouldResemble, []string{"#A", "#B"})
			So(args[7], ShouldResemble, []int32{5, 0})
		})
	})
}

func TestLeaderboardHelpers(t *testing.T) {
	Convey("Ratio treats zero received as the donation count", t, func() {
		So(Ratio(300, 0), ShouldEqual, 300.0)
		So(Ratio(300, 150), ShouldEqual, 2.0)
		So(Ratio(0, 0), ShouldEqual, 0.0)
	})

	Convey("Limits are clamped", t, func() {
		So(ClampLimit(0), ShouldEqual, DefaultLeaderboardLimit)
		So(ClampLimit(-3), ShouldEqual, DefaultLeaderboardLimit)
		So(ClampLimit(10), ShouldEqual, 10)
		So(ClampLimit(5000), ShouldEqual, MaxLeaderboardLimit)
	})
}

func TestRecordHelpers(t *testing.T) {
	Convey("Counters subtract field by field", t, func() {
		end := Counters{FriendInNeed: 1500, SharingIsCaring: 40, AttackWins: 60, Trophies: 5100}
		start := Counters{FriendInNeed: 1000, SharingIsCaring: 35, AttackWins: 10, Trophies: 5000}
		So(end.Sub(start), ShouldResemble, Counters{FriendInNeed: 500, SharingIsCaring: 5, AttackWins: 50, Trophies: 100})
	})

	Convey("Remaining time never goes negative", t, func() {
		now := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
		s := Season{ID: 3, Start: now.AddDate(0, 0, -10), Finish: now.Add(48 * time.Hour)}
		So(s.Remaining(now), ShouldEqual, 48*time.Hour)
		So(s.Remaining(now.AddDate(0, 1, 0)), ShouldEqual, time.Duration(0))
	})

	Convey("pgx no-rows maps to ErrNotFound", t, func() {
		err := fmt.Errorf("season 4: %w", mapNoRows(pgx.ErrNoRows))
		So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		other := errors.New("conn reset")
		So(mapNoRows(other), ShouldEqual, other)
	})
}
