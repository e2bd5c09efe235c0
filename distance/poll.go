package distance

import (
	"context"
	"errors"
	"time"
)

// pollUntil evaluates cond every interval until it reports true, cond fails,
// ctx is done or timeout elapses. A zero timeout leaves only ctx as the bound.
func pollUntil(ctx context.Context, interval, timeout time.Duration, cond func(context.Context) (bool, error)) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, timeout, ErrTimeout)
		defer cancel()
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		done, err := cond(ctx)
		if err != nil {
			if errors.Is(context.Cause(ctx), ErrTimeout) {
				return ErrTimeout
			}
			return err
		}
		if done {
			return nil
		}
		timer.Reset(interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}
}
