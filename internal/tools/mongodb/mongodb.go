// Package mongodb holds the tools that operate on the connected deployment.
package mongodb

import (
	"context"

	mdb "github.com/mongodb-labs/atlas-mcp-server/internal/mongodb"
	"github.com/mongodb-labs/atlas-mcp-server/internal/session"
	"github.com/mongodb-labs/atlas-mcp-server/internal/tools"
)

// Backend is the part of the session the MongoDB tools use.
type Backend interface {
	EnsureConnected(ctx context.Context) (mdb.Conn, error)
	Connect(ctx context.Context, uri string) error
	ConnectedCluster() (session.ConnectedCluster, bool)
}

// Register adds every MongoDB tool to r. defaultURI is used by connect when
// no connection string argument is given.
func Register(r *tools.Registry, b Backend, defaultURI string) {
	r.Register(&ConnectTool{base: base{backend: b}, defaultURI: defaultURI})

	requireConn := tools.RequireConnection(b)
	r.Register(&ListDatabasesTool{base{backend: b}}, requireConn)
	r.Register(&ListCollectionsTool{base{backend: b}}, requireConn)
	r.Register(&CountTool{base{backend: b}}, requireConn)
}

type base struct {
	backend Backend
}

func (base) Category() tools.Category { return tools.CategoryMongoDB }

// TelemetryMetadata names the Atlas project when the session is connected
// through an Atlas grant.
func (b base) TelemetryMetadata(context.Context, tools.Arguments) tools.Metadata {
	var md tools.Metadata
	if cluster, ok := b.backend.ConnectedCluster(); ok && cluster.ProjectID != "" {
		md.ProjectID = cluster.ProjectID
	}
	return md
}
