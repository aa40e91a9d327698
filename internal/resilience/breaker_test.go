package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errBackend = errors.New("backend down")

func call(b *Breaker, ok bool) error {
	_, err := Do(b, func() (string, error) {
		if ok {
			return "ok", nil
		}
		return "", errBackend
	})
	return err
}

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		requests      []bool // true = success, false = failure
		expectedState State
	}{
		{"stays closed on successes", []bool{true, true, true}, StateClosed},
		{"stays closed below threshold", []bool{false, false, true, false}, StateClosed},
		{"opens after consecutive failures", []bool{false, false, false}, StateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("test", Settings{
				ShouldTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 3 },
			})
			for _, ok := range tt.requests {
				_ = call(b, ok)
			}
			assert.Equal(t, tt.expectedState, b.State())
		})
	}
}

func TestBreakerRecovers(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	var transitions []string
	b := New("agent", Settings{
		Cooldown:   10 * time.Second,
		ShouldTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
		Now:        clock.Now,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	require.ErrorIs(t, call(b, false), errBackend)
	assert.ErrorIs(t, call(b, true), ErrCircuitOpen)

	clock.Advance(11 * time.Second)
	assert.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, call(b, true))
	assert.Equal(t, StateClosed, b.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	b := New("agent", Settings{
		Cooldown:   time.Second,
		ShouldTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
		Now:        clock.Now,
	})

	_ = call(b, false)
	clock.Advance(2 * time.Second)
	_ = call(b, false)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerIgnoresClassifiedErrors(t *testing.T) {
	b := New("agent", Settings{
		ShouldTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
		IsFailure:  func(err error) bool { return !errors.Is(err, context.Canceled) },
	})

	_, err := Do(b, func() (int, error) { return 0, context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, uint32(1), b.Counts().Successes)
}

func TestBreakerWindowResetsCounts(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	b := New("agent", Settings{Window: time.Minute, Now: clock.Now})

	_ = call(b, false)
	assert.Equal(t, uint32(1), b.Counts().Failures)

	clock.Advance(2 * time.Minute)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, Counts{}, b.Counts())
}

func TestBreakerPanicCountsAsFailure(t *testing.T) {
	b := New("agent", Settings{ShouldTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 }})

	assert.Panics(t, func() {
		_, _ = Do(b, func() (int, error) { panic("boom") })
	})
	assert.Equal(t, StateOpen, b.State())
}
