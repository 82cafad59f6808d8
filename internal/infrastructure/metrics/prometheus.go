// Package metrics exposes Prometheus collectors for the conversation server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gin-gonic/gin"
)

// Metrics bundles the collectors components report into. A nil *Metrics is
// valid everywhere and disables reporting, which keeps tests quiet.
type Metrics struct {
	registry *prometheus.Registry

	MeetingsStarted prometheus.Counter
	TurnsTotal      prometheus.Counter
	InboundEvents   *prometheus.CounterVec
	SynthesisTasks  *prometheus.CounterVec
	SynthesisTime   prometheus.Histogram
}

// New builds a self-contained registry with all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		MeetingsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "council_meetings_started_total",
			Help: "Meetings created since process start.",
		}),
		TurnsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "council_turns_total",
			Help: "Character turns generated.",
		}),
		InboundEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "council_inbound_events_total",
			Help: "Inbound session events by type and validation outcome.",
		}, []string{"type", "outcome"}),
		SynthesisTasks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "council_synthesis_tasks_total",
			Help: "Synthesis tasks by provider and terminal status.",
		}, []string{"provider", "status"}),
		SynthesisTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "council_synthesis_duration_seconds",
			Help:    "Wall time of one synthesis task, provider call included.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}
}

// ObserveSynthesis records one finished synthesis task.
func (m *Metrics) ObserveSynthesis(provider, status string, seconds float64) {
	if m == nil {
		return
	}
	m.SynthesisTasks.WithLabelValues(provider, status).Inc()
	m.SynthesisTime.Observe(seconds)
}

// RegisterQueueDepth tracks the audio queue depth through a gauge function.
func (m *Metrics) RegisterQueueDepth(depth func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "council_audio_queue_depth",
		Help: "Audio tasks queued or in flight.",
	}, func() float64 { return float64(depth()) }))
}

// Handler returns the exposition endpoint for the gin engine.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) { h.ServeHTTP(c.Writer, c.Request) }
}
