// Package metrics exposes the bot's prometheus collectors. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quizbot"

type Metrics struct {
	registry *prometheus.Registry

	events         *prometheus.CounterVec
	gamesStarted   prometheus.Counter
	gamesEnded     *prometheus.CounterVec
	answers        *prometheus.CounterVec
	generation     *prometheus.HistogramVec
	activeSessions prometheus.Gauge
	droppedRecords prometheus.Counter
	egressErrors   prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events handled by the session state machine, by kind.",
		}, []string{"kind"}),
		gamesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_started_total",
			Help:      "Games started.",
		}),
		gamesEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_ended_total",
			Help:      "Games ended, by reason.",
		}, []string{"reason"}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Resolved questions, by result.",
		}, []string{"result"}),
		generation: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "question_generation_seconds",
			Help:      "Question generation latency including retries, by outcome.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"outcome"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Sessions held in memory.",
		}),
		droppedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answer_records_dropped_total",
			Help:      "Answer log records dropped because the write queue was full.",
		}),
		egressErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "egress_errors_total",
			Help:      "Failed outbound sends.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.events,
		m.gamesStarted,
		m.gamesEnded,
		m.answers,
		m.generation,
		m.activeSessions,
		m.droppedRecords,
		m.egressErrors,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Event(kind string) {
	if m != nil {
		m.events.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) GameStarted() {
	if m != nil {
		m.gamesStarted.Inc()
	}
}

func (m *Metrics) GameEnded(reason string) {
	if m != nil {
		m.gamesEnded.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) Answer(result string) {
	if m != nil {
		m.answers.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Generation(outcome string, d time.Duration) {
	if m != nil {
		m.generation.WithLabelValues(outcome).Observe(d.Seconds())
	}
}

func (m *Metrics) SetSessions(n int) {
	if m != nil {
		m.activeSessions.Set(float64(n))
	}
}

func (m *Metrics) RecordDropped() {
	if m != nil {
		m.droppedRecords.Inc()
	}
}

func (m *Metrics) EgressError() {
	if m != nil {
		m.egressErrors.Inc()
	}
}
