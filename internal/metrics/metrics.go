// Package metrics exposes Prometheus counters and histograms for the capture
// pipeline, clan sync and the HTTP API. A nil *Manager is valid and records
// nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "donationbot"

// Manager owns a private registry and the collectors registered on it.
type Manager struct {
	registry *prometheus.Registry

	captureRuns      *prometheus.CounterVec
	captureGroups    *prometheus.CounterVec
	captureSnapshots prometheus.Counter
	captureSkipped   *prometheus.CounterVec
	captureDuration  prometheus.Histogram
	rollovers        prometheus.Counter
	syncMembers      *prometheus.CounterVec
	syncErrors       prometheus.Counter
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New creates a Manager with Go runtime and process collectors.
func New() *Manager {
	reg := prometheus.NewRegistry()
	m := &Manager{
		registry: reg,
		captureRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "capture", Name: "runs_total",
			Help: "Capture runs by outcome.",
		}, []string{"status"}),
		captureGroups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "capture", Name: "groups_total",
			Help: "Capture groups by outcome.",
		}, []string{"status"}),
		captureSnapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "capture", Name: "snapshots_total",
			Help: "Player snapshots fetched and written.",
		}),
		captureSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "capture", Name: "skipped_total",
			Help: "Player tags skipped during capture by reason.",
		}, []string{"reason"}),
		captureDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "capture", Name: "duration_seconds",
			Help:    "Wall time of a capture run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		rollovers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "season", Name: "rollovers_total",
			Help: "Seasons opened.",
		}),
		syncMembers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sync", Name: "members_total",
			Help: "Clan member rows upserted by clan.",
		}, []string{"clan"}),
		syncErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sync", Name: "errors_total",
			Help: "Clans that failed to sync.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.captureRuns, m.captureGroups, m.captureSnapshots, m.captureSkipped, m.captureDuration,
		m.rollovers, m.syncMembers, m.syncErrors, m.httpRequests, m.httpDuration,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Manager) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CaptureRun records the outcome and duration of one run.
func (m *Manager) CaptureRun(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	m.captureRuns.WithLabelValues(status(ok)).Inc()
	m.captureDuration.Observe(d.Seconds())
}

// CaptureGroup records one group outcome with its written snapshot count.
func (m *Manager) CaptureGroup(ok bool, snapshots int) {
	if m == nil {
		return
	}
	m.captureGroups.WithLabelValues(status(ok)).Inc()
	m.captureSnapshots.Add(float64(snapshots))
}

// CaptureSkipped counts skipped tags by reason.
func (m *Manager) CaptureSkipped(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.captureSkipped.WithLabelValues(reason).Add(float64(n))
}

// Rollover counts an opened season.
func (m *Manager) Rollover() {
	if m == nil {
		return
	}
	m.rollovers.Inc()
}

// SyncClan records one clan sync.
func (m *Manager) SyncClan(clan string, members int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.syncErrors.Inc()
		return
	}
	m.syncMembers.WithLabelValues(clan).Add(float64(members))
}

// HTTPRequest records one served request.
func (m *Manager) HTTPRequest(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

func status(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
