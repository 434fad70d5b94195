package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCallTimeout indicates a remote call exceeded its wall-clock limit.
	// The in-flight call is abandoned, not interrupted; any late result is
	// discarded.
	ErrCallTimeout = errors.New("remote call timed out")

	// ErrRemoteService normalizes third-party failures (transport errors,
	// malformed responses, panics inside client libraries) into one stable
	// kind callers can branch on.
	ErrRemoteService = errors.New("remote service error")
)

// RemoteFailure reports whether err is a timeout or a normalized remote
// service error, the two tolerable per-call failure classes.
func RemoteFailure(err error) bool {
	return errors.Is(err, ErrCallTimeout) || errors.Is(err, ErrRemoteService)
}

type callResult[T any] struct {
	value T
	err   error
}

// CallWithTimeout runs fn on its own goroutine and waits at most d for it to
// finish. On deadline the goroutine is abandoned: the buffered channel lets
// it complete and be collected without anyone reading the result.
func CallWithTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	results := make(chan callResult[T], 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				results <- callResult[T]{err: fmt.Errorf("%w: panic: %v", ErrRemoteService, recovered)}
			}
		}()
		value, err := fn(callCtx)
		results <- callResult[T]{value: value, err: err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-timer.C:
		return zero, fmt.Errorf("%w after %s", ErrCallTimeout, d)
	case result := <-results:
		if result.err != nil {
			if errors.Is(result.err, context.DeadlineExceeded) {
				return zero, fmt.Errorf("%w after %s", ErrCallTimeout, d)
			}
			return zero, result.err
		}
		return result.value, nil
	}
}
