// Package metrics exposes the engine's instrumentation as Prometheus
// collectors. A single Recorder satisfies the small Metrics interfaces
// declared by the fleet, alerts, holds and scheduler packages.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clearskies/internal/alerts"
	"clearskies/internal/fleet"
	"clearskies/internal/holds"
	"clearskies/internal/scheduler"
	"clearskies/internal/types"
)

const namespace = "clearskies"

// Compile-time assertions that Recorder implements every consumer interface.
var (
	_ fleet.Metrics     = (*Recorder)(nil)
	_ alerts.Metrics    = (*Recorder)(nil)
	_ holds.Metrics     = (*Recorder)(nil)
	_ scheduler.Metrics = (*Recorder)(nil)
)

// Recorder owns the engine's collectors.
type Recorder struct {
	gatherer prometheus.Gatherer

	cycles          *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	lastCycle       prometheus.Gauge
	siteFailures    *prometheus.CounterVec
	siteSkips       prometheus.Counter
	holdsOpened     *prometheus.CounterVec
	holdsCleared    *prometheus.CounterVec
	holdDuration    prometheus.Histogram
	openConflicts   prometheus.Counter
	notifications   *prometheus.CounterVec
	skippedVehicles *prometheus.CounterVec
	authentications *prometheus.CounterVec
}

// NewRecorder creates the collectors and registers them with reg. A nil reg
// uses a fresh private registry.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	r := &Recorder{
		gatherer: reg,
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Completed poll cycles by trigger.",
		}, []string{"trigger"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_cycle_duration_seconds",
			Help:      "Wall time from cycle start until every site settled.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		lastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_poll_cycle_timestamp_seconds",
			Help:      "Unix time the most recent cycle finished.",
		}),
		siteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "site_failures_total",
			Help:      "Site evaluations that failed, by error code.",
		}, []string{"code"}),
		siteSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "site_skips_total",
			Help:      "Site evaluations skipped because weather was unavailable.",
		}),
		holdsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "holds_opened_total",
			Help:      "Holds opened, by trigger rule.",
		}, []string{"rule"}),
		holdsCleared: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "holds_cleared_total",
			Help:      "Holds cleared, by trigger rule.",
		}, []string{"rule"}),
		holdDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "hold_duration_seconds",
			Help:      "Time from hold trigger to all-clear.",
			Buckets:   []float64{300, 900, 1800, 3600, 7200, 14400, 28800, 86400},
		}),
		openConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hold_open_conflicts_total",
			Help:      "Hold inserts rejected because an overlapping cycle opened one first.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification attempts by message type and status.",
		}, []string{"type", "status"}),
		skippedVehicles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_skipped_total",
			Help:      "Vehicles skipped for lack of a device id, by message type.",
		}, []string{"type"}),
		authentications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fleet_authentications_total",
			Help:      "Fleet provider logins by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		r.cycles, r.cycleDuration, r.lastCycle,
		r.siteFailures, r.siteSkips,
		r.holdsOpened, r.holdsCleared, r.holdDuration, r.openConflicts,
		r.notifications, r.skippedVehicles,
		r.authentications,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// RecordCycle implements scheduler.Metrics.
func (r *Recorder) RecordCycle(report scheduler.CycleReport) {
	r.cycles.WithLabelValues(string(report.Trigger)).Inc()
	r.cycleDuration.Observe(report.Duration().Seconds())
	r.lastCycle.Set(float64(report.FinishedAt.Unix()))
}

// RecordSiteFailure implements scheduler.Metrics.
func (r *Recorder) RecordSiteFailure(err error) {
	code := string(types.CodeOf(err))
	if code == "" {
		code = "unknown"
	}
	r.siteFailures.WithLabelValues(code).Inc()
}

// RecordSiteSkipped implements scheduler.Metrics.
func (r *Recorder) RecordSiteSkipped() {
	r.siteSkips.Inc()
}

// RecordHoldOpened implements holds.Metrics.
func (r *Recorder) RecordHoldOpened(rule types.Rule) {
	r.holdsOpened.WithLabelValues(string(rule)).Inc()
}

// RecordHoldCleared implements holds.Metrics.
func (r *Recorder) RecordHoldCleared(rule types.Rule, heldFor time.Duration) {
	r.holdsCleared.WithLabelValues(string(rule)).Inc()
	r.holdDuration.Observe(heldFor.Seconds())
}

// RecordOpenConflict implements holds.Metrics.
func (r *Recorder) RecordOpenConflict() {
	r.openConflicts.Inc()
}

// RecordNotification implements alerts.Metrics.
func (r *Recorder) RecordNotification(messageType types.MessageType, status types.NotificationStatus) {
	r.notifications.WithLabelValues(string(messageType), string(status)).Inc()
}

// RecordSkippedRecipient implements alerts.Metrics.
func (r *Recorder) RecordSkippedRecipient(messageType types.MessageType) {
	r.skippedVehicles.WithLabelValues(string(messageType)).Inc()
}

// RecordAuthentication implements fleet.Metrics.
func (r *Recorder) RecordAuthentication(result string) {
	r.authentications.WithLabelValues(result).Inc()
}
