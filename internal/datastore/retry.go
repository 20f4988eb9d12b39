package datastore

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"
)

// RetryPolicy retries idempotent calls with exponential backoff.
// MaxAttempts <= 1 disables retries.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// NoRetry makes exactly one attempt.
var NoRetry = RetryPolicy{MaxAttempts: 1}

// delay returns the wait before attempt n+1, n starting at 1.
func (p RetryPolicy) delay(n int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := time.Duration(float64(p.InitialDelay) * math.Pow(mult, float64(n-1)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// retryable reports whether err is a transport failure or a 5xx answer.
func retryable(err error) bool {
	var re *ResponseError
	if errors.As(err, &re) {
		return re.Temporary()
	}
	// Anything else came from the transport before a response was read.
	return true
}

// Do runs fn until it succeeds, fails permanently or attempts run out.
func (p RetryPolicy) Do(ctx context.Context, logger *slog.Logger, action string, fn func() error) error {
	attempts := max(p.MaxAttempts, 1)

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			if attempt > 1 {
				logger.Info("call succeeded after retry", "action", action, "attempts", attempt)
			}
			return nil
		}
		if attempt >= attempts || ctx.Err() != nil || !retryable(err) {
			return err
		}

		wait := p.delay(attempt)
		logger.Warn("call failed, retrying", "action", action, "attempt", attempt, "wait", wait, "error", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}
