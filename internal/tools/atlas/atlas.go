// Package atlas holds the tools that call the Atlas management API.
package atlas

import (
	"context"
	"encoding/json"
	"time"

	mcperrors "github.com/mongodb-labs/atlas-mcp-server/internal/errors"
	"github.com/mongodb-labs/atlas-mcp-server/internal/session"
	"github.com/mongodb-labs/atlas-mcp-server/internal/tools"
)

// DefaultTemporaryUserLifetime is how long a database user created by
// atlas-connect-cluster lives before Atlas deletes it.
const DefaultTemporaryUserLifetime = 12 * time.Hour

// Backend is the part of the session the Atlas tools use.
type Backend interface {
	EnsureAuthenticated() (session.ManagementClient, error)
	ConnectWithCredential(ctx context.Context, uri string, cred session.GrantedCredential) error
}

// Options configures the Atlas tools.
type Options struct {
	TemporaryUserLifetime time.Duration
}

// Register adds every Atlas tool to r.
func Register(r *tools.Registry, b Backend, opts Options) {
	if opts.TemporaryUserLifetime <= 0 {
		opts.TemporaryUserLifetime = DefaultTemporaryUserLifetime
	}

	requireAuth := tools.RequireAuthentication(b)
	r.Register(&ListProjectsTool{}, requireAuth)
	r.Register(&ListClustersTool{}, requireAuth)
	r.Register(&InspectClusterTool{}, requireAuth)
	r.Register(&ConnectClusterTool{backend: b, lifetime: opts.TemporaryUserLifetime}, requireAuth)
}

type base struct{}

func (base) Category() tools.Category { return tools.CategoryAtlas }

// TelemetryMetadata reports the project and cluster named in the arguments.
func (base) TelemetryMetadata(_ context.Context, args tools.Arguments) tools.Metadata {
	isAtlas := true
	md := tools.Metadata{IsAtlas: &isAtlas}
	md.ProjectID, _ = args.String("projectId")
	md.ClusterName, _ = args.String("clusterName")
	return md
}

func apiError(op string, err error) error {
	if err == nil || mcperrors.HasKind(err) {
		return err
	}
	return mcperrors.New(mcperrors.KindAPI, op, err)
}

var projectSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "projectId": {"type": "string", "description": "Atlas project ID"}
  },
  "required": ["projectId"]
}`)

var clusterSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "projectId": {"type": "string", "description": "Atlas project ID"},
    "clusterName": {"type": "string", "description": "Atlas cluster name"}
  },
  "required": ["projectId", "clusterName"]
}`)
