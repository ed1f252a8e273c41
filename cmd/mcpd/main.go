// Mcpd is a reference MCP server with stdio and streamable HTTP transports.
//
// The binary serves the tools, completions, and logging capabilities over
// whichever transports the configuration selects, with graceful shutdown on
// SIGINT/SIGTERM.
//
// Usage:
//
//	# Serve on stdio (the default)
//	mcpd
//
//	# Serve HTTP with an explicit config file
//	MCP_TRANSPORT=http mcpd -config /etc/mcpd/config.yaml
//
//	# Show version information
//	mcpd version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/mcpd/internal/completion"
	"github.com/fyrsmithlabs/mcpd/internal/config"
	"github.com/fyrsmithlabs/mcpd/internal/exampletools"
	"github.com/fyrsmithlabs/mcpd/internal/extension"
	"github.com/fyrsmithlabs/mcpd/internal/lifecycle"
	"github.com/fyrsmithlabs/mcpd/internal/logging"
	"github.com/fyrsmithlabs/mcpd/internal/metrics"
	"github.com/fyrsmithlabs/mcpd/internal/oauth"
	"github.com/fyrsmithlabs/mcpd/internal/router"
	"github.com/fyrsmithlabs/mcpd/internal/session"
	"github.com/fyrsmithlabs/mcpd/internal/shutdown"
	"github.com/fyrsmithlabs/mcpd/internal/tool"
	"github.com/fyrsmithlabs/mcpd/internal/transport"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// Exit codes: 0 clean shutdown, 1 configuration or startup failure,
// 2 runtime failure after startup.
const (
	exitOK      = 0
	exitStartup = 1
	exitRuntime = 2
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(exitOK)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  mcpd           Start the MCP server\n")
			fmt.Fprintf(os.Stderr, "  mcpd version   Show version information\n")
			os.Exit(exitStartup)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcpd: invalid configuration: %v\n", err)
		os.Exit(exitStartup)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: "json"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcpd: failed to initialize logger: %v\n", err)
		os.Exit(exitStartup)
	}
	defer logging.Sync(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		logging.Sync(logger)
		os.Exit(exitRuntime)
	}

	logger.Info("shutdown complete")
}

func printVersion() {
	fmt.Printf("mcpd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the configured transports and blocks until ctx is cancelled,
// then drains them under the shutdown budget.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting mcpd",
		zap.String("version", version),
		zap.String("transport", cfg.Transport),
		zap.String("log_level", cfg.LogLevel))

	rt, err := buildRouter(cfg, logger)
	if err != nil {
		return fmt.Errorf("building router: %w", err)
	}

	// Background sweepers stop when run returns.
	sweepCtx, stopSweepers := context.WithCancel(context.Background())
	defer stopSweepers()

	sd := shutdown.NewManager(logger, shutdown.WithTimeout(cfg.ShutdownTimeout()))
	errCh := make(chan error, 2)

	if cfg.Transport == config.TransportHTTP || cfg.Transport == config.TransportBoth {
		startHTTP(sweepCtx, cfg, rt, sd, logger, errCh)
	}

	if cfg.Transport == config.TransportStdio || cfg.Transport == config.TransportBoth {
		stdio, err := transport.NewStdioServer(rt, os.Stdin, os.Stdout, logger)
		if err != nil {
			return fmt.Errorf("creating stdio transport: %w", err)
		}
		go func() {
			errCh <- stdio.Run(ctx)
		}()
	}

	// Block until a transport fails or a signal arrives.
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case runErr = <-errCh:
		if errors.Is(runErr, http.ErrServerClosed) {
			runErr = nil
		}
		if runErr != nil {
			logger.Error("transport failed", zap.Error(runErr))
		}
	}

	if err := sd.Run(context.Background()); err != nil {
		logger.Warn("shutdown finished with errors", zap.Error(err))
	}
	return runErr
}

// buildRouter assembles the protocol stack: registry, executor, completions,
// extensions, and the dispatch router.
func buildRouter(cfg *config.Config, logger *zap.Logger) (*router.Router, error) {
	registry := tool.NewRegistry()
	completions := completion.NewHandler()
	if err := exampletools.Register(registry, completions); err != nil {
		return nil, fmt.Errorf("registering example tools: %w", err)
	}

	executor := tool.NewExecutor(registry, logger,
		tool.WithTimeout(cfg.RequestTimeout()),
		tool.WithProgressThrottle(cfg.ProgressInterval()),
		tool.WithRecorder(metrics.New(logger)),
	)

	info := lifecycle.ServerInfo{Name: "mcpd", Version: version}
	return router.New(info, registry, executor, completions,
		extension.NewRegistry(logger), logger,
		router.WithPageSize(cfg.PageSize)), nil
}

// startHTTP launches the HTTP transport and registers its drain sequence:
// refuse new traffic, cancel in-flight requests, then close the listener.
func startHTTP(ctx context.Context, cfg *config.Config, rt *router.Router,
	sd *shutdown.Manager, logger *zap.Logger, errCh chan<- error) {

	sessions := session.NewManager(logger, session.WithIdleTTL(cfg.SessionTTL()))
	go sessions.RunSweeper(ctx)

	// The embedded authorization server only runs when no external one is
	// configured; with external servers, /authorize and /token live there.
	var store *oauth.Store
	if len(cfg.AuthServerList()) == 0 {
		store = oauth.NewStore(logger)
		go store.RunSweeper(ctx)
	}

	srv, err := transport.NewHTTPServer(transport.HTTPConfig{
		Host:        cfg.Host,
		Port:        cfg.Port,
		ResourceURL: cfg.ResourceURL,
		AuthServers: cfg.AuthServerList(),
		RequireAuth: cfg.RequireAuth,
	}, rt, sessions, store, logger)
	if err != nil {
		errCh <- fmt.Errorf("creating http transport: %w", err)
		return
	}

	// Registration order is reversed at shutdown: drain first, close last.
	sd.Register("http.listener", srv.Shutdown)
	sd.Register("http.sessions", func(ctx context.Context) error {
		sessions.Shutdown(ctx)
		return nil
	})
	sd.Register("http.drain", func(context.Context) error {
		srv.SetDraining()
		return nil
	})

	go func() {
		errCh <- srv.Start()
	}()
}
