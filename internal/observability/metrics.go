package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ent0n29/voicebot/internal/reliability"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	registry *prometheus.Registry
	window   *latencyWindow

	Intents           *prometheus.CounterVec
	WSMessages        *prometheus.CounterVec
	ProviderErrors    *prometheus.CounterVec
	SpeechFallbacks   *prometheus.CounterVec
	StageLatency      *prometheus.HistogramVec
	ActiveConnections prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		window:   newLatencyWindow(256),
		Intents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_total",
			Help:      "Dispatched intents by kind and outcome.",
		}, []string{"intent", "ok"}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ProviderErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by pipeline stage and failure kind.",
		}, []string{"stage", "kind"}),
		SpeechFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_fallbacks_total",
			Help:      "Replies spoken by the fallback TTS provider.",
		}, []string{"provider"}),
		StageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_ms",
			Help:      "Turn pipeline stage latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000, 16000},
		}, []string{"stage"}),
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open websocket connections.",
		}),
	}
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	ms := float64(d.Microseconds()) / 1000
	m.StageLatency.WithLabelValues(stage).Observe(ms)
	m.window.observe(stage, ms)
}

func (m *Metrics) ObserveProviderError(stage string, kind reliability.Kind) {
	m.ProviderErrors.WithLabelValues(stage, string(kind)).Inc()
	m.window.observeError(stage, kind)
}

func (m *Metrics) ObserveFallback(provider string) {
	m.SpeechFallbacks.WithLabelValues(provider).Inc()
	m.window.observeFallback(provider)
}

func (m *Metrics) ObserveIntent(intent string, ok bool) {
	outcome := "false"
	if ok {
		outcome = "true"
	}
	m.Intents.WithLabelValues(intent, outcome).Inc()
}

// StageSnapshot returns the rolling latency window.
func (m *Metrics) StageSnapshot() StageSnapshot {
	return m.window.snapshot()
}

// ResetStages clears the rolling latency window.
func (m *Metrics) ResetStages() {
	m.window.reset()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
