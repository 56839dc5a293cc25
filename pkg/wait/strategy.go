// Package wait is the single polling engine: every "wait for X" in the module
// is a condition handed to Until or ForCondition, never a private loop.
package wait

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/devicelab-dev/bryndza/pkg/core"
)

// StrategyType selects how the interval grows between attempts.
type StrategyType int

const (
	FixedInterval StrategyType = iota
	ExponentialBackoff
	LinearBackoff
	FibonacciBackoff
)

func (t StrategyType) String() string {
	switch t {
	case FixedInterval:
		return "fixed"
	case ExponentialBackoff:
		return "exponential"
	case LinearBackoff:
		return "linear"
	case FibonacciBackoff:
		return "fibonacci"
	}
	return "unknown"
}

// ParseStrategyType parses "fixed", "exponential", "linear" or "fibonacci".
func ParseStrategyType(s string) (StrategyType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fixed", "":
		return FixedInterval, nil
	case "exponential":
		return ExponentialBackoff, nil
	case "linear":
		return LinearBackoff, nil
	case "fibonacci":
		return FibonacciBackoff, nil
	}
	return FixedInterval, core.ConfigError(fmt.Sprintf("unknown wait strategy %q", s))
}

// MinInterval is the smallest interval the engine sleeps between attempts.
const MinInterval = time.Millisecond

// Strategy computes polling intervals.
type Strategy struct {
	Type            StrategyType
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultStrategy polls every 100ms.
func DefaultStrategy() Strategy {
	return Strategy{
		Type:            FixedInterval,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      1.5,
	}
}

// Fixed polls at a constant interval.
func Fixed(interval time.Duration) Strategy {
	return Strategy{Type: FixedInterval, InitialInterval: interval, MaxInterval: interval, Multiplier: 1}
}

// Exponential grows the interval by multiplier each attempt, capped at max.
func Exponential(initial, max time.Duration, multiplier float64) Strategy {
	return Strategy{Type: ExponentialBackoff, InitialInterval: initial, MaxInterval: max, Multiplier: multiplier}
}

// Linear grows the interval by initial each attempt, capped at max.
func Linear(initial, max time.Duration) Strategy {
	return Strategy{Type: LinearBackoff, InitialInterval: initial, MaxInterval: max, Multiplier: 1}
}

// Fibonacci scales initial by the Fibonacci sequence, capped at max.
func Fibonacci(initial, max time.Duration) Strategy {
	return Strategy{Type: FibonacciBackoff, InitialInterval: initial, MaxInterval: max, Multiplier: 1}
}

// Interval is the delay after the given failed attempt (1-based). It is
// floored at MinInterval.
func (s Strategy) Interval(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	var d time.Duration
	switch s.Type {
	case ExponentialBackoff:
		d = scale(s.InitialInterval, math.Pow(s.Multiplier, float64(attempt-1)), s.MaxInterval)
	case LinearBackoff:
		d = scale(s.InitialInterval, float64(attempt), s.MaxInterval)
	case FibonacciBackoff:
		d = scale(s.InitialInterval, float64(fib(attempt)), s.MaxInterval)
	default:
		d = s.InitialInterval
	}
	if d < MinInterval {
		d = MinInterval
	}
	return d
}

// NextInterval returns how long to sleep after attempt. The built-in
// strategies depend on attempt only; Until keeps the sleep inside the
// deadline.
func (s Strategy) NextInterval(attempt int, elapsed, timeout time.Duration) time.Duration {
	return s.Interval(attempt)
}

// Validate checks the strategy parameters.
func (s Strategy) Validate() error {
	if s.InitialInterval < 0 || s.MaxInterval < 0 {
		return core.ConfigError("wait intervals must not be negative")
	}
	if s.Type == ExponentialBackoff && s.Multiplier < 1 {
		return core.ConfigError(fmt.Sprintf("exponential multiplier must be >= 1, got %g", s.Multiplier))
	}
	if s.Type != FixedInterval && s.MaxInterval > 0 && s.MaxInterval < s.InitialInterval {
		return core.ConfigError("wait maxInterval must be >= initialInterval")
	}
	return nil
}

func (s Strategy) String() string {
	if s.Type == FixedInterval {
		return fmt.Sprintf("fixed(%v)", s.InitialInterval)
	}
	return fmt.Sprintf("%s(%v..%v)", s.Type, s.InitialInterval, s.MaxInterval)
}

// scale multiplies d by f, capping at max. A zero max means uncapped.
func scale(d time.Duration, f float64, max time.Duration) time.Duration {
	v := float64(d) * f
	if max > 0 && (v > float64(max) || math.IsInf(v, 0) || math.IsNaN(v)) {
		return max
	}
	if v > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(v)
}

// fib returns the nth Fibonacci number: fib(0)=0, fib(1)=1.
func fib(n int) uint64 {
	var a, b uint64 = 0, 1
	for i := 0; i < n; i++ {
		a, b = b, a+b
		if a > math.MaxUint32 {
			return a
		}
	}
	return a
}
