package atlas

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	api "github.com/mongodb-labs/atlas-mcp-server/internal/atlas"
	"github.com/mongodb-labs/atlas-mcp-server/internal/tools"
)

// ListProjectsTool lists the projects the API credentials can see.
type ListProjectsTool struct{ base }

func (*ListProjectsTool) Name() string { return "atlas-list-projects" }

func (*ListProjectsTool) Description() string { return "List MongoDB Atlas projects" }

func (*ListProjectsTool) OperationType() tools.OperationType { return tools.OperationRead }

func (*ListProjectsTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *ListProjectsTool) Execute(ctx context.Context, _ tools.Arguments) (*tools.Result, error) {
	client, err := tools.ClientFromContext(ctx)
	if err != nil {
		return nil, err
	}
	projects, err := client.ListProjects(ctx)
	if err != nil {
		return nil, apiError(t.Name(), err)
	}
	if len(projects) == 0 {
		return tools.NewTextResult("No projects found in your MongoDB Atlas account."), nil
	}

	var b strings.Builder
	b.WriteString("Project Name | Project ID | Created At\n")
	b.WriteString("----------------|----------------|----------------")
	for _, p := range projects {
		created := "N/A"
		if !p.Created.IsZero() {
			created = p.Created.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(&b, "\n%s | %s | %s", p.Name, p.ID, created)
	}
	return tools.NewTextResult(b.String()), nil
}

// ListClustersTool lists the clusters in a project.
type ListClustersTool struct{ base }

func (*ListClustersTool) Name() string { return "atlas-list-clusters" }

func (*ListClustersTool) Description() string { return "List MongoDB Atlas clusters in a project" }

func (*ListClustersTool) OperationType() tools.OperationType { return tools.OperationRead }

func (*ListClustersTool) Schema() json.RawMessage { return projectSchema }

func (t *ListClustersTool) Execute(ctx context.Context, args tools.Arguments) (*tools.Result, error) {
	projectID, err := args.RequireString(t.Name(), "projectId")
	if err != nil {
		return nil, err
	}
	client, err := tools.ClientFromContext(ctx)
	if err != nil {
		return nil, err
	}
	clusters, err := client.ListClusters(ctx, projectID)
	if err != nil {
		return nil, apiError(t.Name(), err)
	}
	if len(clusters) == 0 {
		return tools.NewTextResult(fmt.Sprintf("No clusters found in project %q.", projectID)), nil
	}
	return tools.NewTextResult(clusterRows(clusters)), nil
}

// InspectClusterTool shows the details of one cluster.
type InspectClusterTool struct{ base }

func (*InspectClusterTool) Name() string { return "atlas-inspect-cluster" }

func (*InspectClusterTool) Description() string { return "Inspect a MongoDB Atlas cluster" }

func (*InspectClusterTool) OperationType() tools.OperationType { return tools.OperationRead }

func (*InspectClusterTool) Schema() json.RawMessage { return clusterSchema }

func (t *InspectClusterTool) Execute(ctx context.Context, args tools.Arguments) (*tools.Result, error) {
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
	return tools.NewTextResult(clusterRows([]api.Cluster{*cluster})), nil
}

// clusterRows renders clusters as a markdown table.
func clusterRows(clusters []api.Cluster) string {
	var b strings.Builder
	b.WriteString("Cluster Name | State | MongoDB Version | Connection String\n")
	b.WriteString("----------------|----------------|----------------|----------------")
	for _, c := range clusters {
		conn := c.PreferredConnectionString()
		if conn == "" {
			conn = "N/A"
		}
		fmt.Fprintf(&b, "\n%s | %s | %s | %s", c.Name, c.StateName, c.MongoDBVersion, conn)
	}
	return b.String()
}
