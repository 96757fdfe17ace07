package link

import (
	"context"
	"time"
)

// Race waits for one value from ch, racing it against disconnection and
// context cancellation. Disconnect wins over a pending value and
// converts the wait into ErrLinkLost.
func Race[T any](ctx context.Context, disconnected <-chan struct{}, ch <-chan T) (T, error) {
	var zero T
	select {
	case <-disconnected:
		return zero, ErrLinkLost
	case <-ctx.Done():
		return zero, ctx.Err()
	case v, ok := <-ch:
		if !ok {
			return zero, ErrLinkLost
		}
		return v, nil
	}
}

// RaceTimeout is Race with a per-operation deadline. On expiry it
// returns a TimeoutError naming op. The timeout is local to this wait
// and independent of the disconnect race.
func RaceTimeout[T any](ctx context.Context, disconnected <-chan struct{}, ch <-chan T, d time.Duration, op string) (T, error) {
	var zero T
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-disconnected:
		return zero, ErrLinkLost
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-timer.C:
		return zero, &TimeoutError{Op: op}
	case v, ok := <-ch:
		if !ok {
			return zero, ErrLinkLost
		}
		return v, nil
	}
}

// WaitDisconnect blocks until the link drops or the context ends.
func WaitDisconnect(ctx context.Context, disconnected <-chan struct{}) error {
	select {
	case <-disconnected:
		return ErrLinkLost
	case <-ctx.Done():
		return ctx.Err()
	}
}
