// Package resilience guards calls to external dependencies of a batch run,
// such as the PostgreSQL timeline store, with a circuit breaker.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed forwards every call.
	Closed State = iota

	// Open rejects every call until the reset timeout elapsed.
	Open

	// HalfOpen lets probe calls through; enough successes close the breaker
	// and one failure opens it again.
	HalfOpen
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes a [Breaker]. Zero fields take their defaults.
type Config struct {
	// Name labels log lines.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// Probes is the number of successful half-open calls that close the
	// breaker. Default: 1.
	Probes int
}

// Breaker is a three-state circuit breaker. It is safe for concurrent use.
type Breaker struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	inFlight int
	probeOK  int
}

// Option configures a [Breaker].
type Option func(*Breaker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// New returns a closed [Breaker].
func New(cfg Config, opts ...Option) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 1
	}
	b := &Breaker{cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Do runs fn unless the breaker is open. While half-open at most Probes calls
// run concurrently; the rest are rejected with [ErrOpen].
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	if b.state == Open {
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = HalfOpen
		b.inFlight, b.probeOK = 0, 0
		slog.Info("resilience: circuit half-open", "name", b.cfg.Name)
	}
	probing := b.state == HalfOpen
	if probing {
		if b.inFlight >= b.cfg.Probes {
			b.mu.Unlock()
			return ErrOpen
		}
		b.inFlight++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if probing {
		b.inFlight--
	}
	if err != nil {
		b.failure(probing)
		return err
	}
	b.success(probing)
	return nil
}

// failure must be called with b.mu held.
func (b *Breaker) failure(probing bool) {
	b.failures++
	if !probing && b.failures < b.cfg.MaxFailures {
		return
	}
	if b.state != Open {
		slog.Warn("resilience: circuit opened", "name", b.cfg.Name, "consecutive_failures", b.failures)
	}
	b.state = Open
	b.openedAt = b.now()
}

// success must be called with b.mu held.
func (b *Breaker) success(probing bool) {
	if !probing {
		b.failures = 0
		return
	}
	if b.state != HalfOpen {
		return
	}
	b.probeOK++
	if b.probeOK >= b.cfg.Probes {
		b.state = Closed
		b.failures = 0
		slog.Info("resilience: circuit closed", "name", b.cfg.Name)
	}
}

// State returns the current state. An open breaker whose reset timeout
// elapsed reports [HalfOpen]; the transition happens on the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return HalfOpen
	}
	return b.state
}
