package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/xiaot623/gogo/supportchat/internal/adapter/llm"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	Registry *prometheus.Registry

	sessionsCreated   prometheus.Counter
	sessionsDeleted   prometheus.Counter
	messagesSent      prometheus.Counter
	writeConflicts    prometheus.Counter
	completions       *prometheus.CounterVec
	completionLatency *prometheus.HistogramVec
	tokens            *prometheus.CounterVec
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "supportchat_sessions_created_total",
			Help: "Sessions created.",
		}),
		sessionsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "supportchat_sessions_deleted_total",
			Help: "Sessions soft-deleted.",
		}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "supportchat_messages_sent_total",
			Help: "User messages answered.",
		}),
		writeConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "supportchat_write_conflicts_total",
			Help: "Versioned session writes retried after a conflict.",
		}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supportchat_completions_total",
			Help: "Completion calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		completionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "supportchat_completion_duration_seconds",
			Help:    "Completion call latency.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supportchat_completion_tokens_total",
			Help: "Tokens reported by the completion backend.",
		}, []string{"kind"}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sessionsCreated,
		m.sessionsDeleted,
		m.messagesSent,
		m.writeConflicts,
		m.completions,
		m.completionLatency,
		m.tokens,
	)
	return m
}

func (m *Metrics) sessionCreated() {
	if m != nil {
		m.sessionsCreated.Inc()
	}
}

func (m *Metrics) sessionDeleted() {
	if m != nil {
		m.sessionsDeleted.Inc()
	}
}

func (m *Metrics) messageSent() {
	if m != nil {
		m.messagesSent.Inc()
	}
}

func (m *Metrics) conflict() {
	if m != nil {
		m.writeConflicts.Inc()
	}
}

func (m *Metrics) observeCompletion(provider, outcome string, d time.Duration, usage *llm.Usage) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(provider, outcome).Inc()
	m.completionLatency.WithLabelValues(provider).Observe(d.Seconds())
	if usage != nil {
		m.tokens.WithLabelValues("prompt").Add(float64(usage.PromptTokens))
		m.tokens.WithLabelValues("completion").Add(float64(usage.CompletionTokens))
	}
}
