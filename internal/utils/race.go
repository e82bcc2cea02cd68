package utils

import (
	"context"
	"errors"
	"time"
)

// ErrTimedOut is returned by FirstOf when the timer wins the race.
var ErrTimedOut = errors.New("operation timed out")

type outcome[T any] struct {
	value T
	err   error
}

// FirstOf races op against a timer of the given duration and returns whichever
// finishes first. When the timer (or ctx) wins, op's context is cancelled and its
// eventual result is discarded. A non-positive timeout disables the timer.
func FirstOf[T any](ctx context.Context, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so the losing goroutine never blocks on send.
	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				done <- outcome[T]{value: zero, err: errors.New("operation panicked")}
			}
		}()
		v, err := op(opCtx)
		done <- outcome[T]{value: v, err: err}
	}()

	var timerC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timerC = timer.C
	}

	var zero T
	select {
	case res := <-done:
		return res.value, res.err
	case <-timerC:
		return zero, ErrTimedOut
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
