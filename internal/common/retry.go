package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/statement-flow/internal/service"
)

var (
	// ErrRateLimit indicates that the API rate limit has been exceeded.
	ErrRateLimit = errors.New("rate limit exceeded")
	// ErrMaxRetries indicates that all retry attempts have been exhausted.
	ErrMaxRetries = errors.New("max retries exceeded")
)

// RetryableError wraps an error with retry-specific metadata. After, when
// set, is the wait the remote side asked for before the next attempt.
type RetryableError struct {
	Err       error
	After     time.Duration
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// WithRetry executes operation until it succeeds, returns a non-retryable
// error, or runs out of attempts. Delays grow by opts.Multiplier up to
// opts.MaxDelay.
func WithRetry(ctx context.Context, operation func() error, opts service.RetryOptions) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 100 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = 2.0
	}
	logger := LoggerOrDefault(opts.Logger)

	backoff := opts.InitialDelay
	for attempt := 1; ; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		var re *RetryableError
		if errors.As(err, &re) && !re.Retryable {
			return err
		}
		if attempt >= opts.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %v", ErrMaxRetries, opts.MaxAttempts, err)
		}

		wait := nextWait(err, re, backoff, opts.MaxDelay)
		logger.Warn("Operation failed, retrying",
			"attempt", attempt,
			"max_attempts", opts.MaxAttempts,
			"delay", wait,
			"error", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(time.Duration(float64(backoff)*opts.Multiplier), opts.MaxDelay)
	}
}

// nextWait picks the delay before the next attempt. A server hint wins over
// the backoff; a bare rate limit waits the maximum. Neither exceeds maxDelay.
func nextWait(err error, re *RetryableError, backoff, maxDelay time.Duration) time.Duration {
	switch {
	case re != nil && re.After > 0:
		return min(re.After, maxDelay)
	case errors.Is(err, ErrRateLimit):
		return maxDelay
	default:
		return backoff
	}
}
