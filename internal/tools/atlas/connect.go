package atlas

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	api "github.com/mongodb-labs/atlas-mcp-server/internal/atlas"
	mcperrors "github.com/mongodb-labs/atlas-mcp-server/internal/errors"
	"github.com/mongodb-labs/atlas-mcp-server/internal/logging"
	"github.com/mongodb-labs/atlas-mcp-server/internal/mongodb"
	"github.com/mongodb-labs/atlas-mcp-server/internal/session"
	"github.com/mongodb-labs/atlas-mcp-server/internal/tools"
)

var (
	nowFn    = time.Now
	randRead = rand.Read
)

// ConnectClusterTool connects the session to an Atlas cluster through a
// temporary database user that Atlas deletes after the configured lifetime.
type ConnectClusterTool struct {
	base
	backend  Backend
	lifetime time.Duration
}

func (*ConnectClusterTool) Name() string { return "atlas-connect-cluster" }

func (*ConnectClusterTool) Description() string { return "Connect to MongoDB Atlas cluster" }

func (*ConnectClusterTool) OperationType() tools.OperationType { return tools.OperationConnect }

func (*ConnectClusterTool) Schema() json.RawMessage { return clusterSchema }

func (t *ConnectClusterTool) Execute(ctx context.Context, args tools.Arguments) (*tools.Result, error) {
	projectID, err := args.RequireString(t.Name(), "projectId")
	if err != nil {
		return nil, err
	}
	clusterName, err := args.RequireString(t.Name(), "clusterName")
	if err != nil {
		return nil, err
	}
	client, err := tools.ClientFromContext(ctx)
	if err != nil {
		return nil, err
	}

	cluster, err := client.GetCluster(ctx, projectID, clusterName)
	if err != nil {
		return nil, apiError(t.Name(), err)
	}
	baseURI := cluster.PreferredConnectionString()
	if baseURI == "" {
		return nil, mcperrors.Newf(mcperrors.KindAPI, t.Name(), "connection string not available for cluster %q", clusterName)
	}

	username, err := randomToken("usrMcp", 4)
	if err != nil {
		return nil, mcperrors.New(mcperrors.KindInternal, t.Name(), err)
	}
	password, err := randomToken("", 18)
	if err != nil {
		return nil, mcperrors.New(mcperrors.KindInternal, t.Name(), err)
	}
	expiresAt := nowFn().Add(t.lifetime).UTC()

	_, err = client.CreateDatabaseUser(ctx, projectID, api.DatabaseUser{
		DatabaseName:    "admin",
		GroupID:         projectID,
		Username:        username,
		Password:        password,
		Roles:           []api.Role{{RoleName: "readWriteAnyDatabase", DatabaseName: "admin"}},
		Scopes:          []api.Scope{{Type: "CLUSTER", Name: clusterName}},
		DeleteAfterDate: &expiresAt,
		AWSIAMType:      "NONE",
		LDAPAuthType:    "NONE",
		OIDCAuthType:    "NONE",
		X509Type:        "NONE",
	})
	if err != nil {
		return nil, apiError(t.Name(), err)
	}
	logger := logging.FromContext(ctx)
	logger.Debug().
		Str("project_id", projectID).
		Str("cluster", clusterName).
		Str("principal", username).
		Time("expires_at", expiresAt).
		Msg("Created temporary database user")

	uri, err := mongodb.WithCredentials(baseURI, username, password)
	if err != nil {
		if delErr := client.DeleteDatabaseUser(ctx, projectID, username); delErr != nil {
			logger.Error().
				Err(mcperrors.New(mcperrors.KindCredentialRevocationFailure, t.Name(), delErr)).
				Str("project_id", projectID).
				Str("principal", username).
				Msg("Failed to delete temporary database user")
		}
		return nil, mcperrors.New(mcperrors.KindInternal, t.Name(), err)
	}
	uri = mongodb.SetOptionIfMissing(uri, "authSource", "admin")

	cred := session.GrantedCredential{
		Principal:    username,
		ScopeID:      projectID,
		ResourceName: clusterName,
		ExpiresAt:    expiresAt,
	}
	if err := t.backend.ConnectWithCredential(ctx, uri, cred); err != nil {
		return nil, err
	}
	return tools.NewTextResult(fmt.Sprintf("Connected to cluster %q", clusterName)), nil
}

func randomToken(prefix string, n int) (string, error) {
	b := make([]byte, n)
	if _, err := randRead(b); err != nil {
		return "", fmt.Errorf("generate random value: %w", err)
	}
	return prefix + hex.EncodeToString(b), nil
}
