package fn

import (
	"context"
	"math/rand"
	"time"
)

// RetryOpts configures retry behavior. Retrying stops when either
// MaxAttempts calls have been made or MaxElapsed has passed since the
// first attempt, whichever comes first.
type RetryOpts struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	MaxElapsed  time.Duration
	Jitter      bool
	// Retriable decides whether an error is worth retrying. Nil means
	// every error is retriable.
	Retriable func(error) bool
}

// DefaultRetry provides sensible retry defaults: exponential backoff with a
// 60-second ceiling on total elapsed time.
var DefaultRetry = RetryOpts{
	MaxAttempts: 8,
	InitialWait: time.Second,
	MaxWait:     30 * time.Second,
	MaxElapsed:  60 * time.Second,
	Jitter:      true,
}

// Retry retries f with exponential backoff until it succeeds, the error is
// non-retriable, the attempt or elapsed budget runs out, or ctx is done.
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) Result[T]) Result[T] {
	var result Result[T]
	wait := opts.InitialWait
	start := time.Now()

	for attempt := 0; opts.MaxAttempts <= 0 || attempt < opts.MaxAttempts; attempt++ {
		result = f(ctx)
		if result.IsOk() {
			return result
		}
		if opts.Retriable != nil {
			if _, err := result.Unwrap(); !opts.Retriable(err) {
				return result
			}
		}
		if opts.MaxElapsed > 0 && time.Since(start) >= opts.MaxElapsed {
			return result
		}

		sleepDur := wait
		if opts.Jitter {
			sleepDur = time.Duration(float64(wait) * (0.5 + rand.Float64()))
		}
		if opts.MaxWait > 0 && sleepDur > opts.MaxWait {
			sleepDur = opts.MaxWait
		}
		if opts.MaxElapsed > 0 {
			if remaining := opts.MaxElapsed - time.Since(start); sleepDur > remaining {
				sleepDur = remaining
			}
		}

		select {
		case <-ctx.Done():
			return Err[T](ctx.Err())
		case <-time.After(sleepDur):
		}

		wait *= 2
		if opts.MaxWait > 0 && wait > opts.MaxWait {
			wait = opts.MaxWait
		}
	}
	return result
}

// RetryStage wraps a Stage with retry logic.
func RetryStage[In, Out any](opts RetryOpts, stage Stage[In, Out]) Stage[In, Out] {
	return func(ctx context.Context, in In) Result[Out] {
		return Retry(ctx, opts, func(ctx context.Context) Result[Out] {
			return stage(ctx, in)
		})
	}
}
