package capture

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/albapepper/donation-tracker/internal/provider"
)

// Result tracks the outcome of one capture run.
type Result struct {
	RunID    string
	SeasonID int
	Queued   int
	Groups   int

	// Writes counts bulk write operations; one per successful group.
	Writes       int
	Captured     int
	Started      int64
	Finalized    int64
	Ignored      int64
	FailedGroups []int
	Skipped      map[provider.SkipReason]int
	Errors       []string
	Duration     time.Duration
}

func newResult(runID string, seasonID int) Result {
	return Result{RunID: runID, SeasonID: seasonID, Skipped: make(map[provider.SkipReason]int)}
}

// AddErrorf records a formatted error message.
func (r *Result) AddErrorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// SkippedTotal is the number of tags that produced no snapshot.
func (r *Result) SkippedTotal() int {
	n := 0
	for _, c := range r.Skipped {
		n += c
	}
	return n
}

// OK reports whether every group was written.
func (r *Result) OK() bool {
	return len(r.FailedGroups) == 0 && len(r.Errors) == 0
}

// Summary returns a human-readable summary of the run.
func (r *Result) Summary() string {
	reasons := make([]string, 0, len(r.Skipped))
	for reason, n := range r.Skipped {
		reasons = append(reasons, fmt.Sprintf("%s:%d", reason, n))
	}
	sort.Strings(reasons)

	return fmt.Sprintf(
		"season=%d queued=%d groups=%d writes=%d captured=%d started=%d finalized=%d skipped=%d[%s] failed_groups=%d errors=%d duration=%s",
		r.SeasonID, r.Queued, r.Groups, r.Writes, r.Captured, r.Started, r.Finalized,
		r.SkippedTotal(), strings.Join(reasons, ","), len(r.FailedGroups), len(r.Errors),
		r.Duration.Round(time.Millisecond),
	)
}
