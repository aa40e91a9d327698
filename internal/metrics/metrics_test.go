package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserve(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveSync(nil)
	m.ObserveSync(errors.New("boom"))
	m.ObserveSync(nil)
	m.ObserveClaim(errors.New("denied"))
	m.ObserveAgent("history", "200", 15*time.Millisecond)
	m.SetSessions(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Syncs.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Syncs.WithLabelValues(ResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Claims.WithLabelValues(ResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AgentRequests.WithLabelValues("history", "200")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Sessions))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSync(nil)
		m.ObserveChat(errors.New("x"))
		m.ObservePersist(nil)
		m.ObserveAgent("chat", "500", time.Second)
		m.SetSessions(1)
	})
}
