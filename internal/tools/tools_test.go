package tools

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mongodb-labs/atlas-mcp-server/internal/telemetry"
)

type fakeTool struct {
	name    string
	cat     Category
	op      OperationType
	execute ExecuteFunc
}

func (f *fakeTool) Name() string                 { return f.name }
func (f *fakeTool) Description() string          { return "fake " + f.name }
func (f *fakeTool) Category() Category           { return f.cat }
func (f *fakeTool) OperationType() OperationType { return f.op }
func (f *fakeTool) Schema() json.RawMessage      { return json.RawMessage(`{"type":"object"}`) }

func (f *fakeTool) Execute(ctx context.Context, args Arguments) (*Result, error) {
	if f.execute == nil {
		return NewTextResult("ok"), nil
	}
	return f.execute(ctx, args)
}

func newFakeTool(name string, cat Category, op OperationType) *fakeTool {
	return &fakeTool{name: name, cat: cat, op: op}
}

type handlingTool struct {
	*fakeTool
	handle func(err error, args Arguments) *Result
}

func (h *handlingTool) HandleError(err error, args Arguments) *Result {
	return h.handle(err, args)
}

type resolvingTool struct {
	*fakeTool
	md Metadata
}

func (r *resolvingTool) TelemetryMetadata(context.Context, Arguments) Metadata {
	return r.md
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []telemetry.Event
	block  chan struct{}
	panics bool
}

func (e *fakeEmitter) EmitEvents(ctx context.Context, events []telemetry.Event) {
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return
		}
	}
	if e.panics {
		panic("emitter exploded")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, events...)
}

func (e *fakeEmitter) recorded() []telemetry.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]telemetry.Event(nil), e.events...)
}
