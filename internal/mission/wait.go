package mission

import (
	"context"
	"fmt"
	"time"

	derrors "FlightCheck/internal/errors"
)

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// waitFor subscribes to a telemetry stream and returns the first value that
// satisfies cond. A zero timeout waits for as long as ctx lives.
func waitFor[T any](ctx context.Context, timeout time.Duration, subscribe func(context.Context) <-chan T, cond func(T) bool) (T, error) {
	var zero T

	waitCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	values := subscribe(waitCtx)
	for {
		select {
		case v, ok := <-values:
			if !ok {
				if waitCtx.Err() != nil {
					return zero, waitError(ctx, timeout)
				}
				return zero, derrors.ErrStreamClosed
			}
			if cond(v) {
				return v, nil
			}
		case <-waitCtx.Done():
			return zero, waitError(ctx, timeout)
		}
	}
}

// waitError tells a mission cancellation apart from a wait that ran out of time.
func waitError(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w after %s", derrors.ErrConditionTimeout, timeout)
}
