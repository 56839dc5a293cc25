package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devicelab-dev/bryndza/pkg/core"
)

// Check is one evaluation of a condition. A nil error means satisfied.
type Check[T any] func(ctx context.Context, attempt int) (T, error)

// Condition is a named check. The name appears in timeout errors and logs.
type Condition[T any] struct {
	Name  string
	Check Check[T]
}

// Observer receives engine events. Implementations must be safe for
// concurrent use when shared between sessions.
type Observer interface {
	// Attempt is called after every evaluation with its outcome.
	Attempt(condition string, attempt int, err error)
	// Done is called once per wait with the final outcome.
	Done(condition string, attempts int, elapsed time.Duration, err error)
}

// Option customizes a single wait.
type Option func(*options)

type options struct {
	observer Observer
	clock    func() time.Time
}

// WithObserver attaches an Observer to the wait.
func WithObserver(o Observer) Option {
	return func(opts *options) { opts.observer = o }
}

// Until evaluates cond until it succeeds or timeout elapses.
//
// Attempts are sequential and numbered from 1. Between attempts the engine
// sleeps for strategy.NextInterval. When that sleep would reach the deadline
// it makes one final attempt immediately and then gives up. The deadline is
// checked again after every sleep, so an attempt never starts once elapsed
// has reached timeout. Errors in the platform-not-supported and
// invalid-config categories end the wait at once. Cancelling ctx ends the
// wait with ctx's error.
func Until[T any](ctx context.Context, timeout time.Duration, strategy Strategy, cond Condition[T], opts ...Option) (T, error) {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	var zero T
	start := o.clock()
	attempt := 0
	final := false

	done := func(err error) error {
		if o.observer != nil {
			o.observer.Done(cond.Name, attempt, o.clock().Sub(start), err)
		}
		return err
	}
	timedOut := func(last error) error {
		return done(&core.TimeoutError{
			Timeout:   timeout,
			Attempts:  attempt,
			Condition: cond.Name,
			Last:      last,
		})
	}

	for {
		attempt++
		value, err := cond.Check(ctx, attempt)
		if o.observer != nil {
			o.observer.Attempt(cond.Name, attempt, err)
		}
		if err == nil {
			return value, done(nil)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, done(fmt.Errorf("wait %s cancelled after %d attempts: %w", cond.Name, attempt, ctxErr))
		}
		if isPermanent(err) {
			return zero, done(err)
		}

		elapsed := o.clock().Sub(start)
		if final || elapsed >= timeout {
			return zero, timedOut(err)
		}

		next := strategy.NextInterval(attempt, elapsed, timeout)
		if elapsed+next >= timeout {
			final = true
			continue
		}

		timer := time.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, done(fmt.Errorf("wait %s cancelled after %d attempts: %w", cond.Name, attempt, ctx.Err()))
		case <-timer.C:
		}
		// The timer can fire late under load.
		if o.clock().Sub(start) >= timeout {
			return zero, timedOut(err)
		}
	}
}

// ForCondition is Until for checks that produce no value.
func ForCondition(ctx context.Context, timeout time.Duration, strategy Strategy, check func(ctx context.Context, attempt int) error, opts ...Option) error {
	_, err := Until(ctx, timeout, strategy, Condition[struct{}]{
		Name: "condition",
		Check: func(ctx context.Context, attempt int) (struct{}, error) {
			return struct{}{}, check(ctx, attempt)
		},
	}, opts...)
	return err
}

func isPermanent(err error) bool {
	return errors.Is(err, core.ErrPlatformNotSupported) || errors.Is(err, core.ErrInvalidConfig)
}

func withClock(now func() time.Time) Option {
	return func(opts *options) { opts.clock = now }
}
