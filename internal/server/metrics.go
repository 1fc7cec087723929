package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/go-trait-tts/internal/synth"
)

// Metrics collects request and synthesis-state metrics on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  prometheus.Histogram
	inFlight         prometheus.Gauge
	transitionsTotal *prometheus.CounterVec
	audioSeconds     prometheus.Counter
	segmentsReused   prometheus.Counter
}

// NewMetrics registers the collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tts_requests_total",
			Help:      "POST /tts requests by response status.",
		}, []string{"status"}),
		requestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tts_request_duration_seconds",
			Help:      "Wall time of POST /tts requests.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tts_in_flight",
			Help:      "Synthesis calls holding a worker slot.",
		}),
		transitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_state_transitions_total",
			Help:      "Orchestrator state entries by state.",
		}, []string{"state"}),
		audioSeconds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesized_audio_seconds_total",
			Help:      "Seconds of audio returned to clients.",
		}),
		segmentsReused: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_reused_total",
			Help:      "Segments served from the freeze cache.",
		}),
	}
}

// Observe records an orchestrator state transition. It is safe for
// concurrent use and can be passed to synth.WithObserver.
func (m *Metrics) Observe(ev synth.Event) {
	m.transitionsTotal.WithLabelValues(string(ev.State)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) observeRequest(status int, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	m.requestDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) observeResult(res synth.Result) {
	m.audioSeconds.Add(res.Duration().Seconds())
	m.segmentsReused.Add(float64(res.Reused))
}
