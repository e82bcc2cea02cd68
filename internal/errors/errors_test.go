package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUsesSentinelWhenErrIsNil(t *testing.T) {
	err := New(KindNotConnected, "ensure_connected", nil)

	assert.Equal(t, "ensure_connected: not connected to MongoDB", err.Error())
	assert.True(t, errors.Is(err, ErrNotConnected))
	assert.True(t, IsNotConnected(err))
	assert.False(t, IsAuthenticationRequired(err))
}

func TestIsMatchesKindSentinelAndWrappedError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := New(KindMisconfiguredConnection, "connect", cause)

	assert.True(t, errors.Is(err, ErrMisconfiguredConnection))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrNotConnected))
	assert.False(t, err.Is(nil))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"typed", New(KindAuthenticationRequired, "", nil), KindAuthenticationRequired},
		{"wrapped", fmt.Errorf("outer: %w", New(KindAPI, "get_cluster", errors.New("boom"))), KindAPI},
		{"plain", errors.New("plain"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestHasKind(t *testing.T) {
	assert.True(t, HasKind(New(KindInvalidArguments, "count", nil)))
	assert.False(t, HasKind(errors.New("untyped")))
}

func TestNewfFormatsMessage(t *testing.T) {
	err := Newf(KindInvalidArguments, "count", "argument %q is required", "database")

	require.Error(t, err)
	assert.Equal(t, `count: argument "database" is required`, err.Error())
	assert.True(t, errors.Is(err, ErrInvalidArguments))
}

func TestErrorWithoutOpOrCause(t *testing.T) {
	err := &Error{Kind: Kind("custom")}
	assert.Equal(t, "custom", err.Error())
}

func TestMessageDropsOp(t *testing.T) {
	assert.Equal(t, `argument "database" is required`, Message(Newf(KindInvalidArguments, "count", "argument %q is required", "database")))
	assert.Equal(t, "not connected to MongoDB", Message(New(KindNotConnected, "ensure_connected", nil)))

	wrapped := fmt.Errorf("outer: %w", New(KindAPI, "get_cluster", errors.New("boom")))
	assert.Equal(t, "outer: get_cluster: boom", Message(wrapped))
	assert.Equal(t, "plain", Message(errors.New("plain")))
	assert.Empty(t, Message(nil))
}
