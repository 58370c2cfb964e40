package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted matches (via errors.Is) any *ExhaustedError.
var ErrExhausted = errors.New("retry: attempts exhausted")

// ExhaustedError reports that a bounded policy ran out of attempts.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// Policy describes how often and how long to retry an operation.
//
// MaxAttempts counts the first try; 0 means retry until the operation succeeds,
// returns a non-retryable error or the context is done. Delay is the wait
// before the second attempt; each further wait is multiplied by Multiplier
// (values below 1 are treated as 1) and capped at MaxDelay when it is set.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// Fixed returns a bounded policy with a constant delay.
func Fixed(attempts int, delay time.Duration) Policy {
	return Policy{MaxAttempts: attempts, Delay: delay, Multiplier: 1}
}

// Do runs op until it succeeds. Errors for which retryable returns false are
// returned as is; a nil retryable retries every error.
func (p Policy) Do(ctx context.Context, op func() error, retryable func(error) bool) error {
	delay := p.Delay
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return &ExhaustedError{Attempts: attempt, Last: err}
		}

		if err := sleep(ctx, delay); err != nil {
			return err
		}
		delay = p.next(delay)
	}
}

func (p Policy) next(d time.Duration) time.Duration {
	if p.Multiplier > 1 {
		d = time.Duration(float64(d) * p.Multiplier)
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Wait blocks for d or until ctx is done.
func Wait(ctx context.Context, d time.Duration) error {
	return sleep(ctx, d)
}
