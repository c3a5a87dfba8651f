package cache

import (
	"errors"
	"sync"
	"time"
)

type CircuitBreakerState int

const (
	CircuitBreakerClosed CircuitBreakerState = iota
	CircuitBreakerOpen
	CircuitBreakerHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case CircuitBreakerOpen:
		return "open"
	case CircuitBreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

var ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

type CircuitBreakerConfig struct {
	MaxFailures      int
	Timeout          time.Duration
	HalfOpenMaxCalls int
	// OnStateChange, when set, is called after every transition with the
	// breaker lock released.
	OnStateChange func(from, to CircuitBreakerState)
}

func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxFailures:      5,
		Timeout:          30 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// BreakerStats is what the breaker reports on /metrics.
type BreakerStats struct {
	State       string    `json:"state"`
	Failures    int       `json:"consecutive_failures"`
	Trials      int       `json:"successful_trials"`
	Rejected    int64     `json:"rejected"`
	Trips       int64     `json:"trips"`
	LastFailure time.Time `json:"last_failure,omitempty"`
}

// CircuitBreaker guards the Redis tier. MaxFailures consecutive failures
// open it for Timeout; after that up to HalfOpenMaxCalls trial calls run, and
// that many successes close it again. A failed trial re-opens it.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu          sync.Mutex
	state       CircuitBreakerState
	failures    int
	trials      int
	inFlight    int
	openedAt    time.Time
	lastFailure time.Time
	rejected    int64
	trips       int64
}

func NewCircuitBreaker(config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}
	cfg := *config
	if cfg.MaxFailures < 1 {
		cfg.MaxFailures = 1
	}
	if cfg.HalfOpenMaxCalls < 1 {
		cfg.HalfOpenMaxCalls = 1
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Execute runs fn unless the breaker is open. Any error from fn counts as a
// failure, so callers turn expected outcomes such as misses into nil first.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	trial, err := cb.before()
	if err != nil {
		return err
	}

	result := fn()
	cb.after(trial, result == nil)
	return result
}

func (cb *CircuitBreaker) before() (trial bool, err error) {
	cb.mu.Lock()
	from := cb.state

	switch cb.state {
	case CircuitBreakerOpen:
		if cb.now().Sub(cb.openedAt) < cb.cfg.Timeout {
			cb.rejected++
			cb.mu.Unlock()
			return false, ErrCircuitBreakerOpen
		}
		cb.state = CircuitBreakerHalfOpen
		cb.trials = 0
		cb.inFlight = 0
		fallthrough
	case CircuitBreakerHalfOpen:
		if cb.inFlight+cb.trials >= cb.cfg.HalfOpenMaxCalls {
			cb.rejected++
			cb.mu.Unlock()
			cb.notify(from, CircuitBreakerHalfOpen)
			return false, ErrCircuitBreakerOpen
		}
		cb.inFlight++
		trial = true
	}

	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
	return trial, nil
}

func (cb *CircuitBreaker) after(trial, ok bool) {
	cb.mu.Lock()
	from := cb.state

	if trial && cb.inFlight > 0 {
		cb.inFlight--
	}

	switch {
	case ok && cb.state == CircuitBreakerClosed:
		cb.failures = 0
	case ok && cb.state == CircuitBreakerHalfOpen && trial:
		cb.trials++
		if cb.trials >= cb.cfg.HalfOpenMaxCalls {
			cb.state = CircuitBreakerClosed
			cb.failures = 0
		}
	case !ok:
		cb.failures++
		cb.lastFailure = cb.now()
		if cb.state == CircuitBreakerHalfOpen || cb.failures >= cb.cfg.MaxFailures {
			cb.trip()
		}
	}

	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
}

// trip opens the breaker. Callers hold mu.
func (cb *CircuitBreaker) trip() {
	if cb.state != CircuitBreakerOpen {
		cb.trips++
	}
	cb.state = CircuitBreakerOpen
	cb.openedAt = cb.now()
	cb.trials = 0
	cb.inFlight = 0
}

func (cb *CircuitBreaker) notify(from, to CircuitBreakerState) {
	if from != to && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}

func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) GetStats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return BreakerStats{
		State:       cb.state.String(),
		Failures:    cb.failures,
		Trials:      cb.trials,
		Rejected:    cb.rejected,
		Trips:       cb.trips,
		LastFailure: cb.lastFailure,
	}
}
