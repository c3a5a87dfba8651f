package cache

import (
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

var errRedisDown = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

func fail() error    { return errRedisDown }
func succeed() error { return nil }

func newTestBreaker(maxFailures, trials int, onChange func(from, to CircuitBreakerState)) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		MaxFailures:      maxFailures,
		Timeout:          time.Second,
		HalfOpenMaxCalls: trials,
		OnStateChange:    onChange,
	})
	cb.now = clock.Now
	return cb, clock
}

func TestCircuitBreaker_TripsOnConsecutiveFailures(t *testing.T) {
	tests := []struct {
		name  string
		calls []func() error
		want  CircuitBreakerState
	}{
		{"successes stay closed", []func() error{succeed, succeed}, CircuitBreakerClosed},
		{"below threshold", []func() error{fail, fail}, CircuitBreakerClosed},
		{"at threshold", []func() error{fail, fail, fail}, CircuitBreakerOpen},
		{"success resets the run", []func() error{fail, fail, succeed, fail, fail}, CircuitBreakerClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, _ := newTestBreaker(3, 1, nil)
			for _, call := range tt.calls {
				_ = cb.Execute(call)
			}
			assert.Equal(t, tt.want, cb.GetState())
		})
	}
}

func TestCircuitBreaker_OpenRejectsWithoutCalling(t *testing.T) {
	cb, _ := newTestBreaker(1, 1, nil)
	assert.ErrorIs(t, cb.Execute(fail), errRedisDown)

	err := cb.Execute(func() error {
		t.Error("redis must not be called while the breaker is open")
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
	assert.Equal(t, int64(1), cb.GetStats().Rejected)
}

func TestCircuitBreaker_HalfOpenClosesAfterTrials(t *testing.T) {
	var transitions []string
	cb, clock := newTestBreaker(1, 2, func(from, to CircuitBreakerState) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	_ = cb.Execute(fail)
	clock.Advance(2 * time.Second)

	require.NoError(t, cb.Execute(succeed))
	assert.Equal(t, CircuitBreakerHalfOpen, cb.GetState())

	require.NoError(t, cb.Execute(succeed))
	assert.Equal(t, CircuitBreakerClosed, cb.GetState())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestCircuitBreaker_FailedTrialReopens(t *testing.T) {
	cb, clock := newTestBreaker(1, 2, nil)
	_ = cb.Execute(fail)
	clock.Advance(2 * time.Second)

	assert.ErrorIs(t, cb.Execute(fail), errRedisDown)
	assert.Equal(t, CircuitBreakerOpen, cb.GetState())
	assert.ErrorIs(t, cb.Execute(succeed), ErrCircuitBreakerOpen, "the timeout restarts on a failed trial")

	stats := cb.GetStats()
	assert.Equal(t, "open", stats.State)
	assert.Equal(t, int64(2), stats.Trips)
	assert.Equal(t, clock.Now(), stats.LastFailure)
}

func TestCircuitBreaker_ConcurrentCalls(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		MaxFailures:      5,
		Timeout:          50 * time.Millisecond,
		HalfOpenMaxCalls: 3,
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = cb.Execute(func() error {
					if (id+j)%3 == 0 {
						return errRedisDown
					}
					return nil
				})
			}
		}(i)
	}
	wg.Wait()

	err := cb.Execute(succeed)
	if err != nil {
		assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
	}
}
