// Package circuit implements a small circuit breaker. Callers record the
// outcome of each upstream call; once failures cross the threshold the breaker
// opens and callers should fail fast or serve a fallback until enough
// successes close it again.
package circuit

import (
	"sync"
	"time"
)

// State is the breaker's current position.
type State string

const (
	StateClosed State = "closed"
	StateOpen   State = "open"
)

const (
	defaultFailureThreshold = 5
	defaultSuccessThreshold = 2
	defaultCooldown         = 30 * time.Second
)

// Change reports a state transition caused by a recorded outcome.
type Change struct {
	Opened bool
	Closed bool
}

// Breaker tracks consecutive failures and successes for one upstream.
type Breaker struct {
	name             string
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	now              func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

type Option func(*Breaker)

// WithFailureThreshold sets how many consecutive failures open the breaker.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) { b.failureThreshold = n }
}

// WithSuccessThreshold sets how many consecutive successes close an open breaker.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) { b.successThreshold = n }
}

// WithCooldown sets how long an open breaker blocks before allowing probes.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) { b.cooldown = d }
}

// WithClock overrides wall-clock time for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		failureThreshold: defaultFailureThreshold,
		successThreshold: defaultSuccessThreshold,
		cooldown:         defaultCooldown,
		now:              time.Now,
		state:            StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) Name() string { return b.name }

// State returns the breaker's current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsOpen reports whether callers should fail fast. Once the cooldown has
// elapsed it returns false so a probe call can go through, even though the
// state stays open until successes close it.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return false
	}
	return b.now().Sub(b.openedAt) < b.cooldown
}

// RecordFailure notes one failed call. It returns whether the caller should
// use its fallback, and the state change if this failure opened the breaker.
func (b *Breaker) RecordFailure() (bool, Change) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successes = 0
	if b.state == StateOpen {
		// A failed probe restarts the cooldown.
		b.openedAt = b.now()
		return true, Change{}
	}

	b.failures++
	if b.failures < b.failureThreshold {
		return false, Change{}
	}
	b.state = StateOpen
	b.openedAt = b.now()
	return true, Change{Opened: true}
}

// RecordSuccess notes one successful call. It returns whether the caller
// should use the primary path, and the state change if this success closed
// the breaker.
func (b *Breaker) RecordSuccess() (bool, Change) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state != StateOpen {
		return true, Change{}
	}

	b.successes++
	if b.successes < b.successThreshold {
		return false, Change{}
	}
	b.state = StateClosed
	b.successes = 0
	return true, Change{Closed: true}
}

// Reset forces the breaker closed and clears all counts.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
}
