package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	mcperrors "github.com/mongodb-labs/atlas-mcp-server/internal/errors"
	"github.com/mongodb-labs/atlas-mcp-server/internal/logging"
	"github.com/mongodb-labs/atlas-mcp-server/internal/metrics"
	"github.com/mongodb-labs/atlas-mcp-server/internal/telemetry"
)

// DefaultTelemetryTimeout bounds a single asynchronous telemetry emission.
const DefaultTelemetryTimeout = 15 * time.Second

var nowFn = time.Now

// Emitter accepts telemetry events. It must never block for long or panic
// back into the caller; the dispatcher guards against both anyway.
type Emitter interface {
	EmitEvents(ctx context.Context, events []telemetry.Event)
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTelemetryTimeout bounds each asynchronous telemetry emission.
func WithTelemetryTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.telemetryTimeout = d
		}
	}
}

// Dispatcher runs registered tools inside the common call envelope.
type Dispatcher struct {
	registry         *Registry
	emitter          Emitter
	telemetryTimeout time.Duration

	// mu orders closing against inflight.Add so no call starts once Shutdown waits.
	mu       sync.Mutex
	closing  bool
	inflight sync.WaitGroup
}

// NewDispatcher creates a dispatcher over registry. emitter may be nil.
func NewDispatcher(registry *Registry, emitter Emitter, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry:         registry,
		emitter:          emitter,
		telemetryTimeout: DefaultTelemetryTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Call executes the named tool. It always returns a well-formed result and
// never panics; failures are rendered as results with IsError set.
func (d *Dispatcher) Call(ctx context.Context, name string, args Arguments) *Result {
	reg, ok := d.registry.lookup(name)
	if !ok {
		return NewErrorResult(fmt.Sprintf("Tool %s not found", name))
	}
	if !d.enter() {
		return NewErrorResult(fmt.Sprintf("Error running %s: the server is shutting down", name))
	}
	defer d.inflight.Done()
	tool := reg.tool
	logger := logging.FromContext(ctx)

	start := nowFn()
	logger.Debug().
		Str("tool", name).
		Interface("args", args).
		Msg("Executing tool")

	result, err := safeExecute(ctx, reg.execute, args)
	elapsed := nowFn().Sub(start)

	outcome := telemetry.ResultSuccess
	if err != nil {
		outcome = telemetry.ResultFailure
		logger.Error().
			Err(err).
			Str("tool", name).
			Str("kind", string(mcperrors.KindOf(err))).
			Msg("Error executing tool")
	} else if result == nil {
		result = NewTextResult()
	}

	metrics.RecordToolCall(name, string(tool.Category()), string(outcome), elapsed)
	d.emitToolEvent(ctx, tool, args, elapsed, outcome, err)

	if err != nil {
		return d.handleError(tool, args, err)
	}
	return result
}

func (d *Dispatcher) enter() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return false
	}
	d.inflight.Add(1)
	return true
}

func safeExecute(ctx context.Context, exec ExecuteFunc, args Arguments) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = mcperrors.Newf(mcperrors.KindInternal, "execute", "panic: %v", r)
		}
	}()
	return exec(ctx, args)
}

func (d *Dispatcher) handleError(tool Tool, args Arguments, err error) (result *Result) {
	if h, ok := tool.(ErrorHandler); ok {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Str("tool", tool.Name()).Interface("panic", r).Msg("Tool error handler panicked")
					result = nil
				}
			}()
			result = h.HandleError(err, args)
		}()
		if result != nil {
			result.IsError = true
			return result
		}
	}
	return DefaultErrorResult(tool.Name(), err)
}

// DefaultErrorResult renders err for the tool called name.
func DefaultErrorResult(name string, err error) *Result {
	prefix := fmt.Sprintf("Error running %s: ", name)

	switch mcperrors.KindOf(err) {
	case mcperrors.KindNotConnected:
		return NewErrorResult(
			prefix+"You need to connect to a MongoDB instance before you can access its data.",
			"Please use the 'connect' tool to connect to a MongoDB instance.",
		)
	case mcperrors.KindMisconfiguredConnection:
		return NewErrorResult(
			prefix + "The configured connection string is not valid. Please check the connection string and confirm it points to a valid MongoDB instance. Alternatively, use the 'connect' tool to connect to a different instance.",
		)
	case mcperrors.KindAuthenticationRequired:
		return NewErrorResult(
			prefix+"Atlas API credentials are not configured.",
			"Set MDB_MCP_API_CLIENT_ID and MDB_MCP_API_CLIENT_SECRET to use the Atlas tools.",
		)
	case mcperrors.KindInvalidArguments,
		mcperrors.KindAPI,
		mcperrors.KindInternal,
		mcperrors.KindTelemetrySendFailure,
		mcperrors.KindCredentialRevocationFailure:
		return NewErrorResult(prefix + logging.Redact(mcperrors.Message(err)))
	default:
		return NewErrorResult(prefix + logging.Redact(mcperrors.Message(err)))
	}
}

func (d *Dispatcher) emitToolEvent(ctx context.Context, tool Tool, args Arguments, elapsed time.Duration, outcome telemetry.Result, callErr error) {
	if d.emitter == nil {
		return
	}

	in := telemetry.ToolEventInput{
		Command:  tool.Name(),
		Category: string(tool.Category()),
		Duration: elapsed,
		Result:   outcome,
	}
	if callErr != nil {
		in.ErrorCode = string(mcperrors.KindOf(callErr))
		in.ErrorType = logging.Redact(callErr.Error())
	}
	if r, ok := tool.(MetadataResolver); ok {
		md := resolveMetadata(ctx, r, args)
		in.ProjectID = md.ProjectID
		in.OrgID = md.OrgID
		in.ClusterName = md.ClusterName
		in.IsAtlas = md.IsAtlas
	}
	event := telemetry.NewToolEvent(in)

	// The caller's context may be cancelled as soon as the result is returned.
	emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.telemetryTimeout)
	// The enclosing Call still holds its own count, so this Add never starts from zero.
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Str("tool", tool.Name()).Interface("panic", r).Msg("Telemetry emission panicked")
			}
		}()
		d.emitter.EmitEvents(emitCtx, []telemetry.Event{event})
	}()
}

func resolveMetadata(ctx context.Context, r MetadataResolver, args Arguments) (md Metadata) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Warn().Interface("panic", rec).Msg("Resolving telemetry metadata panicked")
			md = Metadata{}
		}
	}()
	return r.TelemetryMetadata(ctx, args)
}

// Shutdown stops accepting calls and waits for running calls and their
// telemetry emissions to finish, or for ctx to end.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closing = true
	d.mu.Unlock()
	return d.Wait(ctx)
}

// Wait blocks until running calls and their telemetry emissions finish or ctx
// ends. Unlike Shutdown it keeps accepting calls.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Registry returns the registry backing d.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}
