package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of a chat client.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Agent backend metrics
	AgentRequests *prometheus.CounterVec
	AgentDuration *prometheus.HistogramVec

	// Store metrics
	Syncs         *prometheus.CounterVec
	Claims        *prometheus.CounterVec
	ChatSends     *prometheus.CounterVec
	PersistWrites *prometheus.CounterVec
	Sessions      prometheus.Gauge
}

// New registers the collectors on reg. Passing prometheus.NewRegistry() keeps
// tests independent of the global registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AgentRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatstore_agent_requests_total",
				Help: "Total number of requests to the agent backend",
			},
			[]string{"operation", "status"},
		),
		AgentDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatstore_agent_request_duration_seconds",
				Help:    "Agent backend request duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"operation"},
		),
		Syncs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatstore_syncs_total",
				Help: "Total number of history reconciliations",
			},
			[]string{"result"},
		),
		Claims: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatstore_claims_total",
				Help: "Total number of session claim attempts",
			},
			[]string{"result"},
		),
		ChatSends: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatstore_chat_sends_total",
				Help: "Total number of chat messages sent to the agent",
			},
			[]string{"result"},
		),
		PersistWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatstore_persist_writes_total",
				Help: "Total number of snapshot writes",
			},
			[]string{"result"},
		),
		Sessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatstore_sessions",
				Help: "Number of sessions held by the store",
			},
		),
	}
}

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// ResultOf maps an error to a result label.
func ResultOf(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// ObserveAgent records one agent backend call.
func (m *Metrics) ObserveAgent(operation, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.AgentRequests.WithLabelValues(operation, status).Inc()
	m.AgentDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveSync records one reconciliation.
func (m *Metrics) ObserveSync(err error) {
	if m == nil {
		return
	}
	m.Syncs.WithLabelValues(ResultOf(err)).Inc()
}

// ObserveClaim records one claim attempt.
func (m *Metrics) ObserveClaim(err error) {
	if m == nil {
		return
	}
	m.Claims.WithLabelValues(ResultOf(err)).Inc()
}

// ObserveChat records one chat send.
func (m *Metrics) ObserveChat(err error) {
	if m == nil {
		return
	}
	m.ChatSends.WithLabelValues(ResultOf(err)).Inc()
}

// ObservePersist records one snapshot write.
func (m *Metrics) ObservePersist(err error) {
	if m == nil {
		return
	}
	m.PersistWrites.WithLabelValues(ResultOf(err)).Inc()
}

// SetSessions records the current session count.
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.Sessions.Set(float64(n))
}
