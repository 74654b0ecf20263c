// Package backoff computes retry delays for failed jobs. Strategies are
// stateless and safe for concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before retry attempt n (1-indexed: attempt 1
// is the first retry after the initial failure).
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Constant always returns the same delay.
type Constant struct {
	Interval time.Duration
}

func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// Exponential doubles the delay each attempt: Initial * 2^(attempt-1),
// capped at Max.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

func (e *Exponential) Delay(attempt int) time.Duration {
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ExponentialWithJitter picks a random delay in [0, exponential cap] so a
// burst of failures from a shared outage does not retry in lockstep.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	base := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	return time.Duration(rand.Float64() * base)
}

// Default is the queue's retry policy: full jitter over an exponential
// curve, 5s initial, capped at 10 minutes.
func Default() Strategy {
	return NewExponentialWithJitter(5*time.Second, 10*time.Minute)
}
