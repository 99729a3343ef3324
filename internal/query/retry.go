package query

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// RetryPolicy is the retry schedule shared by every upstream query. Retry n
// (counting from 0) waits Unit for n <= 1 and Unit*2^n afterwards, capped at
// Cap.
type RetryPolicy struct {
	MaxRetries int
	Unit       time.Duration
	Cap        time.Duration
}

// DefaultRetryPolicy waits 1s, 1s, 4s between the three retries
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		Unit:       time.Second,
		Cap:        30 * time.Second,
	}
}

// Delay returns the wait before retry attempt
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return p.Unit
	}
	if attempt >= 32 {
		return p.Cap
	}
	d := p.Unit * time.Duration(1<<uint(attempt))
	if d > p.Cap || d <= 0 {
		return p.Cap
	}
	return d
}

// policyBackOff adapts a RetryPolicy to backoff.BackOff
type policyBackOff struct {
	policy  RetryPolicy
	attempt int
}

func (b *policyBackOff) NextBackOff() time.Duration {
	if b.attempt >= b.policy.MaxRetries {
		return backoff.Stop
	}
	d := b.policy.Delay(b.attempt)
	b.attempt++
	return d
}

func (b *policyBackOff) Reset() {
	b.attempt = 0
}

// Do runs op until it succeeds, fails permanently, the retries are used up
// or ctx is done.
func (p RetryPolicy) Do(ctx context.Context, name string, op func() error) error {
	b := backoff.WithContext(&policyBackOff{policy: p}, ctx)

	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		log.WithError(err).Debugf("[Query] %s failed, retrying in %v", name, wait)
	})
}

// retryable reports whether err may go away on a later attempt
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}
