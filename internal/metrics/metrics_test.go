package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

// counterValue sums every series of the named family.
func counterValue(m *Manager, name string) float64 {
	families, err := m.Registry().Gather()
	if err != nil {
		return -1
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, s := range mf.GetMetric() {
			total += s.GetCounter().GetValue()
		}
	}
	return total
}

func TestManager(t *testing.T) {
	Convey("Given a metrics manager", t, func() {
		m := New()

		Convey("Capture counters accumulate", func() {
			m.CaptureGroup(true, 100)
			m.CaptureGroup(true, 50)
			m.CaptureGroup(false, 0)
			m.CaptureSkipped("not_found", 3)
			m.CaptureSkipped("transient", 0)
			m.CaptureRun(true, 2*time.Second)

			So(counterValue(m, "donationbot_capture_groups_total"), ShouldEqual, 3.0)
			So(counterValue(m, "donationbot_capture_snapshots_total"), ShouldEqual, 150.0)
			So(counterValue(m, "donationbot_capture_skipped_total"), ShouldEqual, 3.0)
			So(counterValue(m, "donationbot_capture_runs_total"), ShouldEqual, 1.0)
		})

		Convey("Sync failures are counted apart from members", func() {
			m.SyncClan("#CLAN1", 48, nil)
			m.SyncClan("#CLAN2", 0, errors.New("timeout"))
			So(counterValue(m, "donationbot_sync_members_total"), ShouldEqual, 48.0)
			So(counterValue(m, "donationbot_sync_errors_total"), ShouldEqual, 1.0)
		})

		Convey("The handler serves the exposition format", func() {
			m.Rollover()
			m.HTTPRequest("/health", 200, time.Millisecond)
			rec := httptest.NewRecorder()
			m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			So(rec.Code, ShouldEqual, http.StatusOK)
			body := rec.Body.String()
			So(strings.Contains(body, "donationbot_season_rollovers_total 1"), ShouldBeTrue)
			So(strings.Contains(body, `donationbot_http_requests_total{code="200",route="/health"} 1`), ShouldBeTrue)
		})
	})

	Convey("A nil manager is a no-op", t, func() {
		var m *Manager
		So(func() {
			m.CaptureRun(false, time.Second)
			m.CaptureGroup(true, 1)
			m.CaptureSkipped("decode", 1)
			m.Rollover()
			m.SyncClan("#X", 1, nil)
			m.HTTPRequest("/", 500, 0)
		}, ShouldNotPanic)
		So(m.Registry(), ShouldBeNil)

		rec := httptest.NewRecorder()
		m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		So(rec.Code, ShouldEqual, http.StatusNotFound)
	})
}
