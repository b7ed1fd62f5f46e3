// Package retry is the bounded retry combinator used by the polling loops of the
// controller: a fixed number of attempts with a pause between them, or repeated
// attempts until a wall-clock deadline.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrDeadline is returned by Until when the deadline elapses before an attempt succeeds.
var ErrDeadline = errors.New("retry: deadline elapsed")

// Notify is called after every failed attempt that will be retried, with the pause before the next one.
type Notify func(attempt int, err error, next time.Duration)

// Permanent stops the retry loop and returns err unwrapped.
func Permanent(err error) error { return backoff.Permanent(err) }

// Attempts runs op at most max times, pausing delay between failures.
// There is no pause after the final attempt. It returns the last error.
func Attempts(ctx context.Context, max int, delay time.Duration, op func(attempt int) error, notify Notify) error {
	if max < 1 {
		max = 1
	}
	attempt := 0
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(max-1)), ctx)
	return backoff.RetryNotify(func() error {
		attempt++
		return op(attempt)
	}, b, func(err error, d time.Duration) {
		if notify != nil {
			notify(attempt, err, d)
		}
	})
}

// Until runs op repeatedly, pausing interval between failures, until it succeeds or
// the deadline measured from the call elapses. A zero interval polls back to back.
func Until(ctx context.Context, deadline, interval time.Duration, op func(attempt int) error) error {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	attempt := 0
	var last error
	b := backoff.WithContext(&backoff.ConstantBackOff{Interval: interval}, ctx)
	err := backoff.Retry(func() error {
		attempt++
		last = op(attempt)
		if last != nil && ctx.Err() != nil {
			return backoff.Permanent(last)
		}
		return last
	}, b)
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrDeadline
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
