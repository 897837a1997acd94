// Package metrics exposes Prometheus counters for the certificate lifecycle.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector groups the certificate metrics registered on one registry.
type Collector struct {
	generated       *prometheus.CounterVec
	sent            *prometheus.CounterVec
	triggerRuns     *prometheus.CounterVec
	triggerDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		generated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "certificates_generated_total",
			Help: "Certificates rendered, by result.",
		}, []string{"result"}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "certificates_sent_total",
			Help: "Certificate emails attempted, by result.",
		}, []string{"result"}),
		triggerRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "certificate_trigger_runs_total",
			Help: "Trigger firings, by phase and source.",
		}, []string{"phase", "source"}),
		triggerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certificate_trigger_duration_seconds",
			Help:    "Wall-clock duration of a trigger firing.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"phase"}),
	}
	reg.MustRegister(c.generated, c.sent, c.triggerRuns, c.triggerDuration)
	return c
}

// Generated records the outcome of one Generation Step.
func (c *Collector) Generated(successful, failed int) {
	if c == nil {
		return
	}
	c.generated.WithLabelValues("success").Add(float64(successful))
	c.generated.WithLabelValues("failure").Add(float64(failed))
}

// Sent records the outcome of one Dispatch Step.
func (c *Collector) Sent(successful, failed int) {
	if c == nil {
		return
	}
	c.sent.WithLabelValues("success").Add(float64(successful))
	c.sent.WithLabelValues("failure").Add(float64(failed))
}

// TriggerRun records one firing of phase from source ("cron", "oneshot", "manual").
func (c *Collector) TriggerRun(phase, source string, took time.Duration) {
	if c == nil {
		return
	}
	c.triggerRuns.WithLabelValues(phase, source).Inc()
	c.triggerDuration.WithLabelValues(phase).Observe(took.Seconds())
}
