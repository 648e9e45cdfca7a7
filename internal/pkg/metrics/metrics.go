package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Check-in outcomes
const (
	OutcomeApproved            = "approved"
	OutcomePending             = "pending"
	OutcomeRejected            = "rejected"
	OutcomePositionUnavailable = "position_unavailable"
	OutcomeOutOfGeofence       = "out_of_geofence"
	OutcomeOutOfTimeWindow     = "out_of_time_window"
	OutcomeCaptureFailure      = "capture_failure"
	OutcomeUploadFailure       = "upload_failure"
	OutcomeSubmissionFailure   = "submission_failure"
	OutcomeInProgress          = "in_progress"
	OutcomeNoSlot              = "no_slot"
	OutcomeError               = "error"
)

// CheckIn records check-in attempts and submission latency.
type CheckIn struct {
	registry *prometheus.Registry
	attempts *prometheus.CounterVec
	submit   prometheus.Histogram
}

// NewCheckIn registers the check-in collectors plus the Go and process collectors on a fresh registry.
func NewCheckIn() *CheckIn {
	reg := prometheus.NewRegistry()
	m := &CheckIn{
		registry: reg,
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkin_attempts_total",
			Help: "Check-in attempts by outcome.",
		}, []string{"outcome"}),
		submit: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "checkin_submit_seconds",
			Help:    "Time from submission start to reconciled result.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.attempts,
		m.submit,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *CheckIn) Attempt(outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
}

func (m *CheckIn) ObserveSubmit(d time.Duration) {
	if m == nil {
		return
	}
	m.submit.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *CheckIn) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *CheckIn) Registry() *prometheus.Registry {
	return m.registry
}
