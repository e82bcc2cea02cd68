package tools

import (
	"context"

	mcperrors "github.com/mongodb-labs/atlas-mcp-server/internal/errors"
	"github.com/mongodb-labs/atlas-mcp-server/internal/mongodb"
	"github.com/mongodb-labs/atlas-mcp-server/internal/session"
)

// ConnectionProvider opens or returns the session's backend connection.
type ConnectionProvider interface {
	EnsureConnected(ctx context.Context) (mongodb.Conn, error)
}

// AuthProvider returns a management client that holds credentials.
type AuthProvider interface {
	EnsureAuthenticated() (session.ManagementClient, error)
}

type connKey struct{}

type clientKey struct{}

// RequireConnection makes the wrapped tool run only with a live connection,
// which it reads back with ConnFromContext.
func RequireConnection(p ConnectionProvider) Decorator {
	return func(next ExecuteFunc) ExecuteFunc {
		return func(ctx context.Context, args Arguments) (*Result, error) {
			conn, err := p.EnsureConnected(ctx)
			if err != nil {
				return nil, err
			}
			return next(context.WithValue(ctx, connKey{}, conn), args)
		}
	}
}

// RequireAuthentication makes the wrapped tool run only with configured API
// credentials. The client is available through ClientFromContext.
func RequireAuthentication(p AuthProvider) Decorator {
	return func(next ExecuteFunc) ExecuteFunc {
		return func(ctx context.Context, args Arguments) (*Result, error) {
			client, err := p.EnsureAuthenticated()
			if err != nil {
				return nil, err
			}
			return next(context.WithValue(ctx, clientKey{}, client), args)
		}
	}
}

// ConnFromContext returns the connection installed by RequireConnection.
func ConnFromContext(ctx context.Context) (mongodb.Conn, error) {
	if conn, ok := ctx.Value(connKey{}).(mongodb.Conn); ok && conn != nil {
		return conn, nil
	}
	return nil, mcperrors.New(mcperrors.KindNotConnected, "connection_from_context", nil)
}

// ClientFromContext returns the client installed by RequireAuthentication.
func ClientFromContext(ctx context.Context) (session.ManagementClient, error) {
	if client, ok := ctx.Value(clientKey{}).(session.ManagementClient); ok && client != nil {
		return client, nil
	}
	return nil, mcperrors.New(mcperrors.KindAuthenticationRequired, "client_from_context", nil)
}
