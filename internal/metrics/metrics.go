// Package metrics exposes Prometheus collectors for audiobook runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docaudio"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	runs       *prometheus.CounterVec
	chunks     *prometheus.CounterVec
	latency    prometheus.Histogram
	inFlight   prometheus.Gauge
	queueDepth prometheus.Gauge
	audioBytes prometheus.Counter
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by final status.",
		}, []string{"status"}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Synthesized chunks by result (ok or a failure kind).",
		}, []string{"result"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_seconds",
			Help:      "Latency of successful synthesis requests.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 180},
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "synthesis_in_flight",
			Help:      "Synthesis requests currently outstanding.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Jobs waiting for a worker.",
		}),
		audioBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_bytes_total",
			Help:      "Bytes of merged audio written.",
		}),
	}
	reg.MustRegister(
		m.runs, m.chunks, m.latency, m.inFlight, m.queueDepth, m.audioBytes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RunFinished(status string) {
	if m != nil {
		m.runs.WithLabelValues(status).Inc()
	}
}

// ChunkDone records one chunk outcome; result is "ok" or a failure kind.
func (m *Metrics) ChunkDone(result string, latency time.Duration) {
	if m == nil {
		return
	}
	m.chunks.WithLabelValues(result).Inc()
	if result == "ok" {
		m.latency.Observe(latency.Seconds())
	}
}

func (m *Metrics) SynthStarted() {
	if m != nil {
		m.inFlight.Inc()
	}
}

func (m *Metrics) SynthFinished() {
	if m != nil {
		m.inFlight.Dec()
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.queueDepth.Set(float64(n))
	}
}

func (m *Metrics) AddOutputBytes(n int64) {
	if m != nil && n > 0 {
		m.audioBytes.Add(float64(n))
	}
}
