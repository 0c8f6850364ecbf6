// Package backoff provides the retry delay strategies for job execution.
// All strategies are safe for concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each attempt, without jitter.
// Delay = min(Base * 2^(attempt-1), Max).
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(base, maxDelay time.Duration) *Exponential {
	return &Exponential{Base: base, Max: maxDelay}
}

// Delay returns Base * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	d := time.Duration(float64(e.Base) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// Jittered exponential
// ──────────────────────────────────────────────────

// Jittered is exponential backoff with proportional jitter:
//
//	delay = min(Base * 2^(attempt-1), Max) * (1 ± Fraction)
//
// The jitter spreads retries of unrelated tenants apart so a burst of
// failures does not come back as a thundering herd. In production the
// jitter source is the shared PRNG; tests inject a seeded source via
// WithSource for deterministic delays.
type Jittered struct {
	Base     time.Duration
	Max      time.Duration
	Fraction float64

	mu  sync.Mutex
	rnd *rand.Rand
}

// JitteredOption configures a Jittered strategy.
type JitteredOption func(*Jittered)

// WithSource sets a deterministic random source. Intended for tests.
func WithSource(src rand.Source) JitteredOption {
	return func(j *Jittered) { j.rnd = rand.New(src) }
}

// NewJittered creates an exponential backoff with proportional jitter.
// Fraction must be in [0, 1); values outside are clamped.
func NewJittered(base, maxDelay time.Duration, fraction float64, opts ...JitteredOption) *Jittered {
	if fraction < 0 {
		fraction = 0
	}
	if fraction >= 1 {
		fraction = 0.99
	}
	j := &Jittered{Base: base, Max: maxDelay, Fraction: fraction}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Delay returns the capped exponential delay scaled by a random factor
// in [1-Fraction, 1+Fraction].
func (j *Jittered) Delay(attempt int) time.Duration {
	base := float64(j.Base) * math.Pow(2, float64(attempt-1))
	if j.Max > 0 && base > float64(j.Max) {
		base = float64(j.Max)
	}
	return time.Duration(base * j.factor())
}

func (j *Jittered) factor() float64 {
	if j.Fraction == 0 {
		return 1
	}

	var u float64
	if j.rnd != nil {
		j.mu.Lock()
		u = j.rnd.Float64()
		j.mu.Unlock()
	} else {
		u = rand.Float64() //nolint:gosec // jitter intentionally uses non-crypto rand
	}
	return 1 - j.Fraction + 2*j.Fraction*u
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultStrategy returns the default backoff used by the executor:
// Jittered with 1s base, 5m max, and 20% jitter.
func DefaultStrategy() Strategy {
	return NewJittered(1*time.Second, 5*time.Minute, 0.2)
}
