package telemetry

import (
	"time"
)

// Source tags every event emitted by this server.
const Source = "mdbmcp"

// Result is the outcome recorded on a tool event.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// Event is one telemetry record. Properties hold event-specific fields only;
// common properties are merged in at send time.
type Event struct {
	Timestamp  time.Time      `json:"timestamp"`
	Source     string         `json:"source"`
	Properties map[string]any `json:"properties"`
}

// ToolEventInput describes one tool invocation.
type ToolEventInput struct {
	Command  string
	Category string
	Duration time.Duration
	Result   Result

	// Set on failure only.
	ErrorCode string
	ErrorType string

	// Resource identifiers resolved from the invocation, when known.
	ProjectID   string
	OrgID       string
	ClusterName string
	IsAtlas     *bool
}

// NewToolEvent builds the event for a single tool invocation.
func NewToolEvent(in ToolEventInput) Event {
	props := map[string]any{
		"component":   "tool",
		"command":     in.Command,
		"category":    in.Category,
		"duration_ms": in.Duration.Milliseconds(),
		"result":      string(in.Result),
	}
	if in.Result == ResultFailure {
		if in.ErrorCode != "" {
			props["error_code"] = in.ErrorCode
		}
		if in.ErrorType != "" {
			props["error_type"] = in.ErrorType
		}
	}
	if in.ProjectID != "" {
		props["project_id"] = in.ProjectID
	}
	if in.OrgID != "" {
		props["org_id"] = in.OrgID
	}
	if in.ClusterName != "" {
		props["cluster_name"] = in.ClusterName
	}
	if in.IsAtlas != nil {
		props["is_atlas"] = *in.IsAtlas
	}

	return Event{
		Timestamp:  nowFn().UTC(),
		Source:     Source,
		Properties: props,
	}
}

// withCommon returns a copy of e whose properties are common overlaid by e's own.
func (e Event) withCommon(common map[string]any) Event {
	props := make(map[string]any, len(common)+len(e.Properties))
	for k, v := range common {
		props[k] = v
	}
	for k, v := range e.Properties {
		props[k] = v
	}
	e.Properties = props
	if e.Source == "" {
		e.Source = Source
	}
	return e
}
