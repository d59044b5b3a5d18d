// Package retry wraps calls to the generation collaborators with
// exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy is passed to every collaborator call site. The zero value makes a
// single attempt.
type Policy struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	RateLimitFloor    time.Duration `yaml:"rate_limit_floor"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

func Default() Policy {
	return Policy{
		MaxAttempts:       3,
		BaseDelay:         2 * time.Second,
		RateLimitFloor:    10 * time.Second,
		BackoffMultiplier: 2,
	}
}

// RateLimiter is implemented by errors that carry a rate-limit signal from
// the upstream provider.
type RateLimiter interface {
	RateLimited() bool
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

func IsRateLimited(err error) bool {
	var rl RateLimiter
	return errors.As(err, &rl) && rl.RateLimited()
}

// exponential is the jitter-free schedule base, base*mult, base*mult^2...
func (p Policy) exponential() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = math.Max(p.BackoffMultiplier, 1)
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(math.MaxInt64)
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// floored raises waits after rate-limited failures to the policy floor.
type floored struct {
	backoff.BackOff
	floor time.Duration
	last  *error
}

func (f floored) NextBackOff() time.Duration {
	d := f.BackOff.NextBackOff()
	if d != backoff.Stop && d < f.floor && IsRateLimited(*f.last) {
		return f.floor
	}
	return d
}

// Delay is the wait before retry number attempt (1-based). Rate-limited
// failures never wait less than RateLimitFloor.
func (p Policy) Delay(attempt int, rateLimited bool) time.Duration {
	b := p.exponential()
	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}
	if rateLimited && d < p.RateLimitFloor {
		d = p.RateLimitFloor
	}
	return d
}

// Do calls fn until it succeeds, returns a permanent error, the attempts
// run out or ctx is done.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)
	var last error
	var b backoff.BackOff = floored{BackOff: p.exponential(), floor: p.RateLimitFloor, last: &last}
	b = backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)

	calls := 0
	err := backoff.Retry(func() error {
		calls++
		last = fn(ctx)
		return last
	}, b)
	var perm *backoff.PermanentError
	switch {
	case err == nil:
		return nil
	case errors.As(last, &perm):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	}
	return fmt.Errorf("gave up after %d attempts: %w", calls, err)
}
