package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mongodb-labs/atlas-mcp-server/internal/atlas"
	"github.com/mongodb-labs/atlas-mcp-server/internal/config"
	"github.com/mongodb-labs/atlas-mcp-server/internal/logging"
	mcpserver "github.com/mongodb-labs/atlas-mcp-server/internal/mcp"
	"github.com/mongodb-labs/atlas-mcp-server/internal/mongodb"
	"github.com/mongodb-labs/atlas-mcp-server/internal/session"
	"github.com/mongodb-labs/atlas-mcp-server/internal/telemetry"
	"github.com/mongodb-labs/atlas-mcp-server/internal/tools"
	atlastools "github.com/mongodb-labs/atlas-mcp-server/internal/tools/atlas"
	mongodbtools "github.com/mongodb-labs/atlas-mcp-server/internal/tools/mongodb"
)

var shutdownTimeout = 30 * time.Second

// deviceIDWait bounds how long a connection attempt waits for the device id.
const deviceIDWait = 5 * time.Second

func runServer(ctx context.Context, cfg *config.Config) error {
	// Re-initialize logging with configuration-driven settings
	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "mcp",
		Dir:       cfg.LogPath,
	})
	log.Info().
		Str("version", Version).
		Str("transport", cfg.Transport).
		Bool("read_only", cfg.ReadOnly).
		Bool("telemetry", cfg.TelemetryEnabled()).
		Msg("Starting MongoDB MCP server")

	apiClient, err := atlas.New(atlas.Options{
		BaseURL:      cfg.APIBaseURL,
		ClientID:     cfg.APIClientID,
		ClientSecret: cfg.APIClientSecret,
		UserAgent:    fmt.Sprintf("%s/%s (%s; %s)", ServerName, Version, runtime.GOOS, runtime.GOARCH),
	})
	if err != nil {
		return fmt.Errorf("create atlas client: %w", err)
	}

	cache := telemetry.NewEventCache()

	var tel *telemetry.Telemetry
	sess := session.New(session.Options{
		ConnectionString: cfg.ConnectionString,
		APIClient:        apiClient,
		ConnectTimeout:   cfg.ConnectTimeout,
		Connector: newConnector(cfg.ConnectTimeout, func(ctx context.Context) string {
			waitCtx, cancel := context.WithTimeout(ctx, deviceIDWait)
			defer cancel()
			return tel.DeviceID(waitCtx)
		}),
	})

	tel = telemetry.New(telemetry.Config{
		ServerName:                 ServerName,
		ServerVersion:              Version,
		Enabled:                    cfg.TelemetryEnabled,
		DeviceIDTimeout:            cfg.DeviceIDTimeout,
		AtlasAuthConfigured:        cfg.HasAPICredentials(),
		ConnectionStringConfigured: cfg.ConnectionString != "",
	}, sess, telemetry.SenderFunc(func(ctx context.Context, events []telemetry.Event) error {
		return sess.APIClient().SendEvents(ctx, events)
	}), cache)

	registry := tools.NewRegistry(tools.RegistryConfig{
		DisabledTools: cfg.DisabledTools,
		ReadOnly:      cfg.ReadOnly,
	})
	mongodbtools.Register(registry, sess, cfg.ConnectionString)
	atlastools.Register(registry, sess, atlastools.Options{TemporaryUserLifetime: cfg.TemporaryUserLifetime})
	log.Info().Strs("tools", registry.Names()).Msg("Registered tools")

	dispatcher := tools.NewDispatcher(registry, tel, tools.WithTelemetryTimeout(cfg.TelemetryTimeout))
	srv := mcpserver.NewServer(mcpserver.Config{Name: ServerName, Version: Version}, dispatcher, sess)

	if cfg.MetricsAddr != "" {
		startMetricsServer(ctx, cfg.MetricsAddr)
	}

	serveErr := serve(ctx, cfg, srv)

	log.Info().Msg("Shutting down server...")
	shutdown(srv, dispatcher, tel, sess)
	log.Info().Msg("Server stopped")
	logging.Shutdown()

	return serveErr
}

func serve(ctx context.Context, cfg *config.Config, srv *mcpserver.Server) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if cfg.Transport == config.TransportHTTP {
			return srv.ServeHTTP(gctx, cfg.HTTPAddr())
		}
		return srv.ServeStdio(gctx, os.Stdin, os.Stdout)
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// closer is a component torn down during shutdown.
type closer interface {
	Close(ctx context.Context)
}

// drainer stops accepting work and waits for what is in flight.
type drainer interface {
	Shutdown(ctx context.Context) error
}

type stopper interface {
	Stop(ctx context.Context) error
}

// shutdown stops the transport, drains running tool calls and their telemetry,
// then closes telemetry and the session concurrently.
func shutdown(srv stopper, dispatcher drainer, tel, sess closer) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Stop(ctx); err != nil {
		log.Error().Err(err).Msg("Transport shutdown error")
	}
	if err := dispatcher.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Timed out waiting for running tool calls")
	}

	var g errgroup.Group
	g.Go(func() error {
		tel.Close(ctx)
		return nil
	})
	g.Go(func() error {
		sess.Close(ctx)
		return nil
	})
	_ = g.Wait()
}

// newConnector returns a session connector that tags connections with the
// server's appName before dialing.
func newConnector(timeout time.Duration, deviceID func(ctx context.Context) string) session.Connector {
	return func(ctx context.Context, uri string) (mongodb.Conn, error) {
		tagged, err := withAppName(ctx, uri, deviceID)
		if err != nil {
			return nil, err
		}
		return mongodb.Connect(ctx, tagged, mongodb.ConnectOptions{Timeout: timeout})
	}
}

func withAppName(ctx context.Context, uri string, deviceID func(ctx context.Context) string) (string, error) {
	id := telemetry.UnknownDeviceID
	if deviceID != nil && mongodb.IsAtlasHost(uri) {
		id = deviceID(ctx)
	}
	return mongodb.SetAppNameIfMissing(uri, ServerName+" "+Version, id)
}
