package mongodb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mongodb-labs/atlas-mcp-server/internal/tools"
)

// ListDatabasesTool lists the databases on the connected deployment.
type ListDatabasesTool struct{ base }

func (*ListDatabasesTool) Name() string { return "list-databases" }

func (*ListDatabasesTool) Description() string {
	return "List all databases for a MongoDB connection"
}

func (*ListDatabasesTool) OperationType() tools.OperationType { return tools.OperationMetadata }

func (*ListDatabasesTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (*ListDatabasesTool) Execute(ctx context.Context, _ tools.Arguments) (*tools.Result, error) {
	conn, err := tools.ConnFromContext(ctx)
	if err != nil {
		return nil, err
	}
	dbs, err := conn.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(dbs))
	for _, db := range dbs {
		texts = append(texts, fmt.Sprintf("Name: %s, Size: %d bytes", db.Name, db.SizeOnDisk))
	}
	return tools.NewTextResult(texts...), nil
}

// ListCollectionsTool lists the collections in one database.
type ListCollectionsTool struct{ base }

func (*ListCollectionsTool) Name() string { return "list-collections" }

func (*ListCollectionsTool) Description() string {
	return "List all collections for a given database"
}

func (*ListCollectionsTool) OperationType() tools.OperationType { return tools.OperationMetadata }

func (*ListCollectionsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "database": {"type": "string", "description": "Database name"}
  },
  "required": ["database"]
}`)
}

func (t *ListCollectionsTool) Execute(ctx context.Context, args tools.Arguments) (*tools.Result, error) {
	database, err := args.RequireString(t.Name(), "database")
	if err != nil {
		return nil, err
	}
	conn, err := tools.ConnFromContext(ctx)
	if err != nil {
		return nil, err
	}
	names, err := conn.ListCollections(ctx, database)
	if err != nil {
		return nil, err
	}

	if len(names) == 0 {
		return tools.NewTextResult(fmt.Sprintf("No collections found for database %q.", database)), nil
	}
	texts := make([]string, 0, len(names))
	for _, n := range names {
		texts = append(texts, fmt.Sprintf("Name: %q", n))
	}
	return tools.NewTextResult(texts...), nil
}

// CountTool counts the documents matching a filter.
type CountTool struct{ base }

func (*CountTool) Name() string { return "count" }

func (*CountTool) Description() string {
	return "Gets the number of documents in a MongoDB collection"
}

func (*CountTool) OperationType() tools.OperationType { return tools.OperationRead }

func (*CountTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "database": {"type": "string", "description": "Database name"},
    "collection": {"type": "string", "description": "Collection name"},
    "filter": {"type": "object", "description": "The query filter to count documents. Matches the syntax of the filter argument of db.collection.countDocuments()"},
    "query": {"type": "object", "description": "Alternative old name for filter. Will be used in db.collection.countDocuments()"}
  },
  "required": ["database", "collection"]
}`)
}

func (t *CountTool) Execute(ctx context.Context, args tools.Arguments) (*tools.Result, error) {
	database, err := args.RequireString(t.Name(), "database")
	if err != nil {
		return nil, err
	}
	collection, err := args.RequireString(t.Name(), "collection")
	if err != nil {
		return nil, err
	}
	filter, err := args.Object(t.Name(), "filter")
	if err != nil {
		return nil, err
	}
	if filter == nil {
		// "query" is the older name for filter.
		if filter, err = args.Object(t.Name(), "query"); err != nil {
			return nil, err
		}
	}

	conn, err := tools.ConnFromContext(ctx)
	if err != nil {
		return nil, err
	}
	n, err := conn.Count(ctx, database, collection, filter)
	if err != nil {
		return nil, err
	}
	return tools.NewTextResult(fmt.Sprintf("Found %d documents in the collection %q", n, collection)), nil
}
