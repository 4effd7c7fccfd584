package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var (
	errUnavailable = errors.New("service unavailable")
	errNotFound    = errors.New("not found")
)

func fail(context.Context) error    { return errUnavailable }
func succeed(context.Context) error { return nil }

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures int, opts ...Option) (*Breaker, *clock) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	b := NewBreaker(maxFailures, time.Minute, opts...)
	b.now = c.now
	return b, c
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(3)
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, succeed) // resets the count
	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	if b.State() != StateClosed {
		t.Fatalf("state = %v after interrupted failures", b.State())
	}

	_ = b.Execute(ctx, fail)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	called := false
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("open breaker ran fn: err=%v called=%v", err, called)
	}
}

func TestBreakerProbeAfterCooldown(t *testing.T) {
	tests := []struct {
		name  string
		probe func(context.Context) error
		want  State
	}{
		{"probe succeeds", succeed, StateClosed},
		{"probe fails", fail, StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, c := newTestBreaker(1)
			ctx := context.Background()
			_ = b.Execute(ctx, fail)

			c.advance(time.Minute)
			if b.State() != StateHalfOpen {
				t.Fatalf("state = %v after cooldown, want half-open", b.State())
			}
			_ = b.Execute(ctx, tt.probe)
			if b.State() != tt.want {
				t.Fatalf("state = %v, want %v", b.State(), tt.want)
			}
		})
	}
}

func TestBreakerAdmitsSingleProbe(t *testing.T) {
	b, c := newTestBreaker(1)
	ctx := context.Background()
	_ = b.Execute(ctx, fail)
	c.advance(time.Minute)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- b.Execute(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := b.Execute(ctx, succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("second call during probe: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v after successful probe", b.State())
	}
}

func TestBreakerFailureFilter(t *testing.T) {
	b, _ := newTestBreaker(1, WithFailureFilter(func(err error) bool {
		return !errors.Is(err, errNotFound)
	}))
	ctx := context.Background()

	err := b.Execute(ctx, func(context.Context) error { return errNotFound })
	if !errors.Is(err, errNotFound) {
		t.Fatalf("err = %v, want passthrough", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("filtered error tripped the breaker")
	}
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	b, _ := newTestBreaker(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("cancellation tripped the breaker")
	}
}

func TestBreakerReportsTransitions(t *testing.T) {
	var seen []string
	b, c := newTestBreaker(1, WithStateChange(func(from, to State) {
		seen = append(seen, from.String()+">"+to.String())
	}))
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	c.advance(time.Minute)
	_ = b.Execute(ctx, succeed)

	want := []string{"closed>open", "open>half-open", "half-open>closed"}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", seen, want)
		}
	}
}
