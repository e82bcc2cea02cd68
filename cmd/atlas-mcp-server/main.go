package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mongodb-labs/atlas-mcp-server/internal/config"
	"github.com/mongodb-labs/atlas-mcp-server/internal/logging"
)

// ServerName identifies this server to clients, telemetry and Atlas.
const ServerName = "mongodb-mcp-server"

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

type runFunc func(ctx context.Context, cfg *config.Config) error

type flagBinding struct {
	name  string
	key   string
	usage string
}

var stringFlags = []flagBinding{
	{"config", config.KeyConfigFile, "Path to a YAML configuration file"},
	{"api-base-url", config.KeyAPIBaseURL, "Atlas management API base URL"},
	{"api-client-id", config.KeyAPIClientID, "Atlas API service account client ID"},
	{"api-client-secret", config.KeyAPIClientSecret, "Atlas API service account client secret"},
	{"connection-string", config.KeyConnectionString, "MongoDB connection string used when no connection is open"},
	{"telemetry", config.KeyTelemetry, `Telemetry setting: "enabled" or "disabled"`},
	{"transport", config.KeyTransport, `Transport: "stdio" or "http"`},
	{"http-host", config.KeyHTTPHost, "Host the HTTP transport binds to"},
	{"log-path", config.KeyLogPath, "Directory for per-process log files"},
	{"log-level", config.KeyLogLevel, "Log level (debug, info, warn, error)"},
	{"log-format", config.KeyLogFormat, `Log format: "json", "console" or "auto"`},
	{"metrics-addr", config.KeyMetricsAddr, "Address for the Prometheus /metrics endpoint (empty disables it)"},
}

func newRootCmd(v *viper.Viper, run runFunc, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "atlas-mcp-server",
		Short:         "MongoDB and Atlas MCP server",
		Long:          `An MCP server that lets agents query MongoDB deployments and manage MongoDB Atlas.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	root.SetOut(out)

	flags := root.Flags()
	for _, f := range stringFlags {
		flags.String(f.name, "", f.usage)
	}
	flags.StringSlice("disabled-tools", nil, "Tool names, categories or operation types to disable")
	flags.Bool("read-only", false, "Only expose tools that do not modify data")
	flags.Int("http-port", 0, "Port the HTTP transport listens on")

	for _, f := range stringFlags {
		_ = v.BindPFlag(f.key, flags.Lookup(f.name))
	}
	_ = v.BindPFlag(config.KeyDisabledTools, flags.Lookup("disabled-tools"))
	_ = v.BindPFlag(config.KeyReadOnly, flags.Lookup("read-only"))
	_ = v.BindPFlag(config.KeyHTTPPort, flags.Lookup("http-port"))

	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", ServerName, Version)
			if BuildTime != "unknown" {
				fmt.Fprintf(out, "Built: %s\n", BuildTime)
			}
			if GitCommit != "unknown" {
				fmt.Fprintf(out, "Commit: %s\n", GitCommit)
			}
		},
	}
}

func main() {
	// Baseline logging for early startup; stdout carries the stdio protocol.
	logging.Init(logging.Config{
		Format:    "auto",
		Level:     "info",
		Component: "mcp",
	})
	config.LoadEnvFile("")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(config.NewViper(), runServer, os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Server exited with error")
		logging.Shutdown()
		os.Exit(1)
	}
}
