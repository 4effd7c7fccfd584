// Package resilience guards calls to the cluster API.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Breaker opens after maxFailures consecutive failures and rejects calls
// for cooldown. Then a single probe call is let through: its success closes
// the breaker, its failure reopens it.
type Breaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	probing     bool
	openedAt    time.Time
	maxFailures int
	cooldown    time.Duration
	tripsOn     func(error) bool
	onChange    func(from, to State)
	now         func() time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureFilter counts an error as a failure only when tripsOn returns
// true. Errors that do not trip are still returned to the caller.
func WithFailureFilter(tripsOn func(error) bool) Option {
	return func(b *Breaker) { b.tripsOn = tripsOn }
}

// WithStateChange calls fn on every transition. fn runs with the breaker
// locked and must not call back into it.
func WithStateChange(fn func(from, to State)) Option {
	return func(b *Breaker) { b.onChange = fn }
}

// NewBreaker creates a closed breaker.
func NewBreaker(maxFailures int, cooldown time.Duration, opts ...Option) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	b := &Breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		tripsOn:     func(error) bool { return true },
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State reports the current position. An open breaker whose cooldown has
// elapsed reports half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Execute runs fn unless the breaker is open. Cancellation of ctx is the
// caller giving up, not the cluster failing, and never counts as a failure.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, ok := b.admit()
	if !ok {
		return ErrCircuitOpen
	}

	err := fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.probing = false
	}
	switch {
	case err != nil && ctx.Err() != nil:
		// cancelled: leave the state alone
	case err != nil && b.tripsOn(err):
		b.failures++
		if probe || b.failures >= b.maxFailures {
			b.openedAt = b.now()
			b.setState(StateOpen)
		}
	default:
		b.failures = 0
		b.setState(StateClosed)
	}
	return err
}

// admit decides whether a call may proceed and whether it is the probe.
func (b *Breaker) admit() (probe, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false, false
		}
		b.setState(StateHalfOpen)
	}
	if b.state == StateHalfOpen {
		if b.probing {
			return false, false
		}
		b.probing = true
		return true, true
	}
	return false, true
}

// setState must be called with b.mu held.
func (b *Breaker) setState(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	if b.onChange != nil {
		b.onChange(from, to)
	}
}
