// Package mcp exposes the tool dispatcher over the Model Context Protocol.
package mcp

import (
	"context"
	"errors"
	"io"
	stdlog "log"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"

	"github.com/mongodb-labs/atlas-mcp-server/internal/logging"
	"github.com/mongodb-labs/atlas-mcp-server/internal/tools"
)

const (
	// HTTPPath is where the streamable HTTP transport is mounted.
	HTTPPath = "/mcp"

	shutdownTimeout = 10 * time.Second
)

// AgentRecorder receives the client identity sent during initialization.
type AgentRecorder interface {
	SetAgentRunner(name, version string)
}

// Config identifies the server to clients.
type Config struct {
	Name         string
	Version      string
	Instructions string
}

// Server serves the dispatcher's tools over stdio or streamable HTTP.
type Server struct {
	cfg        Config
	dispatcher *tools.Dispatcher
	agent      AgentRecorder
	mcp        *server.MCPServer

	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer creates a server exposing every tool registered with dispatcher.
// agent may be nil.
func NewServer(cfg Config, dispatcher *tools.Dispatcher, agent AgentRecorder) *Server {
	s := &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		agent:      agent,
	}

	hooks := &server.Hooks{}
	hooks.AddAfterInitialize(s.afterInitialize)

	opts := []server.ServerOption{
		server.WithToolCapabilities(false),
		server.WithHooks(hooks),
		server.WithRecovery(),
	}
	if cfg.Instructions != "" {
		opts = append(opts, server.WithInstructions(cfg.Instructions))
	}
	s.mcp = server.NewMCPServer(cfg.Name, cfg.Version, opts...)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	for _, d := range s.dispatcher.Registry().Tools() {
		s.mcp.AddTool(toMCPTool(d), s.handleCallTool)
	}
	log.Debug().Int("tools", len(s.dispatcher.Registry().Tools())).Msg("Registered MCP tools")
}

func toMCPTool(d tools.Descriptor) mcp.Tool {
	t := mcp.NewToolWithRawSchema(d.Name, d.Description, d.Schema)
	readOnly := !d.OperationType.Mutates()
	destructive := d.OperationType == tools.OperationDelete
	t.Annotations.ReadOnlyHint = &readOnly
	t.Annotations.DestructiveHint = &destructive
	return t
}

func (s *Server) afterInitialize(ctx context.Context, _ any, req *mcp.InitializeRequest, _ *mcp.InitializeResult) {
	client := req.Params.ClientInfo
	log.Info().
		Str("client", client.Name).
		Str("clientVersion", client.Version).
		Str("protocolVersion", req.Params.ProtocolVersion).
		Msg("MCP client connected")

	if s.agent != nil {
		s.agent.SetAgentRunner(client.Name, client.Version)
	}
}

func (s *Server) handleCallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if cs := server.ClientSessionFromContext(ctx); cs != nil && cs.SessionID() != "" {
		ctx, _ = logging.WithCorrelationID(ctx, cs.SessionID())
	}
	res := s.dispatcher.Call(ctx, req.Params.Name, tools.Arguments(req.GetArguments()))
	return toCallToolResult(res), nil
}

func toCallToolResult(res *tools.Result) *mcp.CallToolResult {
	out := &mcp.CallToolResult{Content: []mcp.Content{}}
	if res == nil {
		return out
	}
	for _, c := range res.Content {
		out.Content = append(out.Content, mcp.NewTextContent(c.Text))
	}
	out.IsError = res.IsError
	return out
}

// HandleMessage processes one raw JSON-RPC message.
func (s *Server) HandleMessage(ctx context.Context, msg []byte) mcp.JSONRPCMessage {
	return s.mcp.HandleMessage(ctx, msg)
}

// ServeStdio serves the protocol on in and out until ctx is cancelled or in is closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(stdlog.New(log.Logger, "", 0))

	log.Info().Msg("Starting MCP server on stdio")
	err := stdio.Listen(ctx, in, out)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ServeHTTP serves the streamable HTTP transport on addr until ctx is cancelled.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle(HTTPPath, server.NewStreamableHTTPServer(s.mcp))
	mux.HandleFunc("/health", handleHealth)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("path", HTTPPath).Msg("Starting MCP server on HTTP")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	}
}

// Stop stops the HTTP transport if it is running.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status": "ok"}`))
}
