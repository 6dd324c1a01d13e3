// Package season computes season boundaries, tracks the active season id and
// rolls the store over to a new season when a boundary passes.
//
// A season ends on the last Monday of each month at 05:00 UTC, the moment the
// game resets its monthly counters.
package season

import "time"

// BoundaryHour is the UTC hour at which a season ends.
const BoundaryHour = 5

// CurrentSeasonStart returns the next season boundary relative to now: the
// last Monday of now's month at BoundaryHour UTC, or the following month's
// when now is at or past it.
func CurrentSeasonStart(now time.Time) time.Time {
	now = now.UTC()
	b := lastMonday(now.Year(), now.Month())
	if !now.Before(b) {
		b = lastMonday(now.Year(), now.Month()+1)
	}
	return b
}

// lastMonday returns the boundary in the given month. Month overflow is
// normalized by time.Date, so December+1 is January of the next year.
func lastMonday(year int, month time.Month) time.Time {
	last := time.Date(year, month+1, 0, BoundaryHour, 0, 0, 0, time.UTC)
	offset := (int(last.Weekday()) - int(time.Monday) + 7) % 7
	return last.AddDate(0, 0, -offset)
}
