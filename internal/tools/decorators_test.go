package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongodb-labs/atlas-mcp-server/internal/atlas"
	mcperrors "github.com/mongodb-labs/atlas-mcp-server/internal/errors"
	"github.com/mongodb-labs/atlas-mcp-server/internal/mongodb"
	"github.com/mongodb-labs/atlas-mcp-server/internal/session"
)

type stubConn struct{ mongodb.Conn }

type connProviderFunc func(ctx context.Context) (mongodb.Conn, error)

func (f connProviderFunc) EnsureConnected(ctx context.Context) (mongodb.Conn, error) { return f(ctx) }

type authProviderFunc func() (session.ManagementClient, error)

func (f authProviderFunc) EnsureAuthenticated() (session.ManagementClient, error) { return f() }

type stubClient struct{ session.ManagementClient }

func (stubClient) ListProjects(context.Context) ([]atlas.Project, error) { return nil, nil }

func TestRequireConnectionInjectsConnection(t *testing.T) {
	conn := &stubConn{}
	wrapped := RequireConnection(connProviderFunc(func(context.Context) (mongodb.Conn, error) {
		return conn, nil
	}))(func(ctx context.Context, _ Arguments) (*Result, error) {
		got, err := ConnFromContext(ctx)
		require.NoError(t, err)
		assert.Same(t, conn, got)
		return NewTextResult("ok"), nil
	})

	res, err := wrapped(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text())
}

func TestRequireConnectionShortCircuits(t *testing.T) {
	called := false
	wrapped := RequireConnection(connProviderFunc(func(context.Context) (mongodb.Conn, error) {
		return nil, mcperrors.New(mcperrors.KindNotConnected, "ensure_connected", nil)
	}))(func(context.Context, Arguments) (*Result, error) {
		called = true
		return nil, nil
	})

	_, err := wrapped(context.Background(), nil)

	assert.True(t, mcperrors.IsNotConnected(err))
	assert.False(t, called)
}

func TestRequireAuthentication(t *testing.T) {
	client := stubClient{}
	ok := RequireAuthentication(authProviderFunc(func() (session.ManagementClient, error) {
		return client, nil
	}))(func(ctx context.Context, _ Arguments) (*Result, error) {
		got, err := ClientFromContext(ctx)
		require.NoError(t, err)
		assert.Equal(t, client, got)
		return NewTextResult("ok"), nil
	})
	_, err := ok(context.Background(), nil)
	require.NoError(t, err)

	denied := RequireAuthentication(authProviderFunc(func() (session.ManagementClient, error) {
		return nil, mcperrors.New(mcperrors.KindAuthenticationRequired, "ensure_authenticated", nil)
	}))(func(context.Context, Arguments) (*Result, error) {
		t.Fatal("tool body must not run without credentials")
		return nil, nil
	})
	_, err = denied(context.Background(), nil)
	assert.True(t, mcperrors.IsAuthenticationRequired(err))
}

func TestFromContextWithoutDecorator(t *testing.T) {
	_, err := ConnFromContext(context.Background())
	assert.True(t, mcperrors.IsNotConnected(err))

	_, err = ClientFromContext(context.Background())
	assert.True(t, mcperrors.IsAuthenticationRequired(err))
}

func TestArguments(t *testing.T) {
	args := Arguments{"database": "db", "empty": "", "filter": map[string]any{"a": 1.0}, "bad": 3}

	v, err := args.RequireString("count", "database")
	require.NoError(t, err)
	assert.Equal(t, "db", v)

	_, err = args.RequireString("count", "empty")
	assert.Equal(t, mcperrors.KindInvalidArguments, mcperrors.KindOf(err))
	_, err = args.RequireString("count", "missing")
	assert.Error(t, err)

	m, err := args.Object("count", "filter")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1.0}, m)

	m, err = args.Object("count", "missing")
	require.NoError(t, err)
	assert.Nil(t, m)

	_, err = args.Object("count", "bad")
	assert.True(t, errors.Is(err, mcperrors.ErrInvalidArguments))
}
