// Package metrics exposes the assistant's Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements usecase.Recorder on top of Prometheus collectors.
// A nil *Recorder records nothing.
type Recorder struct {
	generations      *prometheus.CounterVec
	fallbacks        *prometheus.CounterVec
	upstreamFailures *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
}

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		generations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "miprojet_generations_total",
				Help: "Generation responses served, by action and source (model or fallback)",
			},
			[]string{"action", "source"},
		),
		fallbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "miprojet_generation_fallbacks_total",
				Help: "Generation requests answered with the deterministic fallback",
			},
			[]string{"action", "reason"},
		),
		upstreamFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "miprojet_upstream_failures_total",
				Help: "Failed calls to the AI gateway, by operation and HTTP status (0 when none)",
			},
			[]string{"operation", "status"},
		),
		upstreamLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "miprojet_upstream_duration_seconds",
				Help:    "Time until the AI gateway answered (headers only for streams)",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) GenerationServed(action, source string) {
	if r == nil {
		return
	}
	r.generations.WithLabelValues(action, source).Inc()
}

func (r *Recorder) FallbackUsed(action, reason string) {
	if r == nil {
		return
	}
	r.fallbacks.WithLabelValues(action, reason).Inc()
}

func (r *Recorder) UpstreamFailure(operation string, status int) {
	if r == nil {
		return
	}
	r.upstreamFailures.WithLabelValues(operation, strconv.Itoa(status)).Inc()
}

func (r *Recorder) UpstreamLatency(operation string, d time.Duration) {
	if r == nil {
		return
	}
	r.upstreamLatency.WithLabelValues(operation).Observe(d.Seconds())
}
