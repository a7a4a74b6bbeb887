// Vecfsd serves a VecFS node over HTTP.
//
// Configuration is read from ~/.config/vecfs/config.yaml (or -config) and
// VECFS_* environment variables. Edits to the config file change the log
// level without a restart.
//
// Usage:
//
//	# Start the daemon with defaults
//	vecfsd
//
//	# Use an in-memory store on another port
//	VECFS_STORAGE_BACKEND=memory VECFS_SERVER_HTTP_PORT=9292 vecfsd
//
//	# Serve MCP tools on stdio as the configured requester
//	VECFS_MCP_REQUESTER=@@node1.shinkai/main vecfsd mcp
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vecfs/internal/config"
	httpserver "github.com/fyrsmithlabs/vecfs/internal/http"
	"github.com/fyrsmithlabs/vecfs/internal/logging"
	"github.com/fyrsmithlabs/vecfs/internal/services"
	"github.com/fyrsmithlabs/vecfs/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "config file (default ~/.config/vecfs/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		case "mcp":
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := runMCP(ctx, *configPath); err != nil {
				fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
				os.Exit(1)
			}
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  vecfsd [-config path]   Start the vecfs daemon\n")
			fmt.Fprintf(os.Stderr, "  vecfsd [-config path] mcp  Serve MCP tools on stdio\n")
			fmt.Fprintf(os.Stderr, "  vecfsd version          Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("vecfsd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the daemon and blocks until ctx is cancelled.
//
//  1. Loads and validates configuration
//  2. Initializes telemetry and the logger
//  3. Opens the store, the embedding generator and the vector fs
//  4. Starts the HTTP server and the config watcher
//  5. Shuts down gracefully on context cancellation
func run(ctx context.Context, configPath string) error {
	d, err := bootstrap(ctx, configPath, false)
	if err != nil {
		return err
	}
	defer d.close()
	cfg, tel, logger, zl := d.cfg, d.tel, d.logger, d.logger.Underlying()

	logger.Info(ctx, "Starting vecfsd",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Addr()),
		zap.String("node", cfg.VectorFS.NodeName),
		zap.Bool("telemetry", tel.IsEnabled()))

	reg, err := services.Build(ctx, cfg, zl)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer func() {
		if err := reg.Close(); err != nil {
			logger.Warn(ctx, "closing services", zap.Error(err))
		}
	}()

	srv, err := httpserver.NewServer(reg.VectorFS(), zl.Named("http"), &httpserver.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
		AccessLogLimit: cfg.Storage.AccessLogLimit,
		Redactor:       reg.Redactor(),
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	watchConfig(ctx, d.configPath, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info(ctx, "Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info(ctx, "Server shutdown complete")
	return nil
}

// daemon holds what both serving modes need before services are built.
type daemon struct {
	configPath string
	cfg        *config.Config
	tel        *telemetry.Telemetry
	logger     *logging.Logger
}

// bootstrap loads configuration and starts telemetry and the logger. With
// stderr set, console logs leave stdout free for a stdio transport.
func bootstrap(ctx context.Context, configPath string, stderr bool) (*daemon, error) {
	if configPath == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		configPath = p
	}
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg, version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logCfg, err := logging.FromAppConfig(cfg.Logging)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("invalid logging configuration: %w", err)
	}
	logCfg.Output.Stderr = stderr
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return &daemon{configPath: configPath, cfg: cfg, tel: tel, logger: logger}, nil
}

// close flushes the logger and shuts telemetry down.
func (d *daemon) close() {
	_ = d.logger.Sync() // Best-effort sync on shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), d.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	_ = d.tel.Shutdown(shutdownCtx)
}

// watchConfig applies log level changes from the config file until ctx ends.
// Other settings need a restart.
func watchConfig(ctx context.Context, path string, logger *logging.Logger) {
	w, err := config.NewWatcher(path, logger.Underlying())
	if err != nil {
		logger.Warn(ctx, "config hot reload disabled", zap.Error(err))
		return
	}
	w.Start(ctx)

	go func() {
		defer w.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case cfg := <-w.Updates():
				level, err := logging.LevelFromString(cfg.Logging.Level)
				if err != nil {
					logger.Warn(ctx, "ignoring log level", zap.String("level", cfg.Logging.Level), zap.Error(err))
					continue
				}
				if err := logger.SetLevel(level); err != nil {
					logger.Warn(ctx, "changing log level", zap.Error(err))
					continue
				}
				logger.Info(ctx, "log level changed", zap.String("level", cfg.Logging.Level))
			}
		}
	}()
}
