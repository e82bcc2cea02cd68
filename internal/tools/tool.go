// Package tools defines the tool contract and the dispatcher envelope every
// tool call passes through: registration gating, timing, telemetry and error
// normalization.
package tools

import (
	"context"
	"encoding/json"

	mcperrors "github.com/mongodb-labs/atlas-mcp-server/internal/errors"
)

// Category groups tools by the backend they talk to.
type Category string

const (
	CategoryMongoDB Category = "mongodb"
	CategoryAtlas   Category = "atlas"
)

// OperationType classifies what a tool does to its backend.
type OperationType string

const (
	OperationMetadata OperationType = "metadata"
	OperationRead     OperationType = "read"
	OperationCreate   OperationType = "create"
	OperationUpdate   OperationType = "update"
	OperationDelete   OperationType = "delete"
	OperationConnect  OperationType = "connect"
)

// Mutates reports whether the operation changes backend data.
func (o OperationType) Mutates() bool {
	switch o {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	default:
		return false
	}
}

// Tool is a single callable command.
type Tool interface {
	Name() string
	Description() string
	Category() Category
	OperationType() OperationType
	// Schema is the JSON schema of the arguments object.
	Schema() json.RawMessage
	Execute(ctx context.Context, args Arguments) (*Result, error)
}

// ErrorHandler is implemented by tools that render their own failures.
// Returning nil falls back to the default rendering.
type ErrorHandler interface {
	HandleError(err error, args Arguments) *Result
}

// Metadata carries resource identifiers attached to a tool's telemetry event.
type Metadata struct {
	ProjectID   string
	OrgID       string
	ClusterName string
	IsAtlas     *bool
}

// MetadataResolver is implemented by tools that can name the resource a call touched.
type MetadataResolver interface {
	TelemetryMetadata(ctx context.Context, args Arguments) Metadata
}

// ExecuteFunc runs a tool body.
type ExecuteFunc func(ctx context.Context, args Arguments) (*Result, error)

// Decorator wraps an ExecuteFunc with cross-cutting behaviour at registration time.
type Decorator func(next ExecuteFunc) ExecuteFunc

// Arguments are the decoded arguments of a tool call.
type Arguments map[string]any

// String returns the string argument key, if present and a string.
func (a Arguments) String(key string) (string, bool) {
	v, ok := a[key].(string)
	return v, ok
}

// RequireString returns a non-empty string argument or an InvalidArguments error.
func (a Arguments) RequireString(op, key string) (string, error) {
	v, ok := a.String(key)
	if !ok || v == "" {
		return "", mcperrors.Newf(mcperrors.KindInvalidArguments, op, "argument %q is required", key)
	}
	return v, nil
}

// Object returns the object argument key, or nil when it is missing or null.
func (a Arguments) Object(op, key string) (map[string]any, error) {
	v, present := a[key]
	if !present || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, mcperrors.Newf(mcperrors.KindInvalidArguments, op, "argument %q must be an object", key)
	}
	return m, nil
}
