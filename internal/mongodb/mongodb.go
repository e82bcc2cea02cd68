// Package mongodb wraps the MongoDB driver behind the small connection handle
// surface the session and tools need.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// DefaultConnectTimeout bounds server selection when no timeout is configured.
const DefaultConnectTimeout = 10 * time.Second

// DatabaseInfo describes one database on the connected deployment.
type DatabaseInfo struct {
	Name       string `json:"name"`
	SizeOnDisk int64  `json:"sizeOnDisk"`
	Empty      bool   `json:"empty"`
}

// Conn is a live connection handle. Implementations are safe for concurrent use.
type Conn interface {
	Ping(ctx context.Context) error
	ListDatabases(ctx context.Context) ([]DatabaseInfo, error)
	ListCollections(ctx context.Context, database string) ([]string, error)
	Count(ctx context.Context, database, collection string, filter map[string]any) (int64, error)
	Disconnect(ctx context.Context) error
}

// ConnectOptions tunes Connect.
type ConnectOptions struct {
	Timeout time.Duration
}

type client struct {
	c *mongo.Client
}

// Connect dials uri and verifies the deployment is reachable before returning.
func Connect(ctx context.Context, uri string, opts ConnectOptions) (Conn, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	clientOpts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(timeout).
		SetConnectTimeout(timeout)

	c, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = c.Disconnect(context.Background())
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &client{c: c}, nil
}

func (cl *client) Ping(ctx context.Context) error {
	return cl.c.Ping(ctx, readpref.Primary())
}

func (cl *client) ListDatabases(ctx context.Context) ([]DatabaseInfo, error) {
	res, err := cl.c.ListDatabases(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	out := make([]DatabaseInfo, 0, len(res.Databases))
	for _, db := range res.Databases {
		out = append(out, DatabaseInfo{Name: db.Name, SizeOnDisk: db.SizeOnDisk, Empty: db.Empty})
	}
	return out, nil
}

func (cl *client) ListCollections(ctx context.Context, database string) ([]string, error) {
	return cl.c.Database(database).ListCollectionNames(ctx, bson.D{})
}

func (cl *client) Count(ctx context.Context, database, collection string, filter map[string]any) (int64, error) {
	if filter == nil {
		filter = map[string]any{}
	}
	return cl.c.Database(database).Collection(collection).CountDocuments(ctx, bson.M(filter))
}

func (cl *client) Disconnect(ctx context.Context) error {
	return cl.c.Disconnect(ctx)
}
