package utils

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstOfReturnsOperationResult(t *testing.T) {
	got, err := FirstOf(context.Background(), time.Second, func(context.Context) (string, error) {
		return "abc", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "abc", got)
}

func TestFirstOfReturnsOperationError(t *testing.T) {
	boom := errors.New("boom")
	_, err := FirstOf(context.Background(), time.Second, func(context.Context) (int, error) {
		return 0, boom
	})

	assert.ErrorIs(t, err, boom)
}

func TestFirstOfTimerWinsAndCancelsOperation(t *testing.T) {
	cancelled := make(chan struct{})
	got, err := FirstOf(context.Background(), 20*time.Millisecond, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		close(cancelled)
		return "late", nil
	})

	assert.ErrorIs(t, err, ErrTimedOut)
	assert.Empty(t, got)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("operation context was not cancelled after timeout")
	}
}

func TestFirstOfLateResultIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	var finished atomic.Bool

	_, err := FirstOf(context.Background(), 10*time.Millisecond, func(context.Context) (int, error) {
		<-release
		finished.Store(true)
		return 42, nil
	})
	require.ErrorIs(t, err, ErrTimedOut)

	close(release)
	assert.Eventually(t, finished.Load, time.Second, 5*time.Millisecond)
}

func TestFirstOfHonoursParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FirstOf(ctx, 0, func(opCtx context.Context) (int, error) {
		<-opCtx.Done()
		return 0, opCtx.Err()
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestFirstOfRecoversPanickingOperation(t *testing.T) {
	_, err := FirstOf(context.Background(), time.Second, func(context.Context) (int, error) {
		panic("kaboom")
	})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimedOut)
}
