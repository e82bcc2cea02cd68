package mongodb

import (
	"context"
	"encoding/json"

	mcperrors "github.com/mongodb-labs/atlas-mcp-server/internal/errors"
	mdb "github.com/mongodb-labs/atlas-mcp-server/internal/mongodb"
	"github.com/mongodb-labs/atlas-mcp-server/internal/tools"
)

// ConnectTool connects the session to a deployment.
type ConnectTool struct {
	base
	defaultURI string
}

func (*ConnectTool) Name() string { return "connect" }

func (*ConnectTool) Description() string {
	return "Connect to a MongoDB instance. Uses the configured connection string when none is given."
}

func (*ConnectTool) OperationType() tools.OperationType { return tools.OperationConnect }

func (*ConnectTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "connectionString": {"type": "string", "description": "MongoDB connection string (mongodb:// or mongodb+srv://)"}
  }
}`)
}

func (t *ConnectTool) Execute(ctx context.Context, args tools.Arguments) (*tools.Result, error) {
	uri, _ := args.String("connectionString")
	if uri == "" {
		uri = t.defaultURI
	}
	if uri == "" {
		return nil, mcperrors.Newf(mcperrors.KindInvalidArguments, "connect", "no connection string provided and none is configured")
	}
	if err := mdb.Validate(uri); err != nil {
		return nil, mcperrors.New(mcperrors.KindInvalidArguments, "connect", err)
	}

	if err := t.backend.Connect(ctx, uri); err != nil {
		return nil, err
	}
	return tools.NewTextResult("Successfully connected to MongoDB."), nil
}
