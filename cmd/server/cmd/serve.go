package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/community-events/internal/config"
	"github.com/sakif/community-events/internal/metrics"
	"github.com/sakif/community-events/internal/server"
)

var (
	// Server flags (override config/env)
	serverHost string
	serverPort int
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server and begin accepting requests.

The server will:
- Load configuration from .env, the --config file and environment variables
- Create or promote the admin account if ADMIN_* variables are set
- Serve the REST API under /api plus /healthz, /readyz and /metrics
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  # Start with default configuration (SQLite in data/events.db)
  community-events serve

  # Start on a specific host and port
  community-events serve --host 127.0.0.1 --port 9090

  # Start with debug logging in JSON
  community-events serve --log-level debug --log-format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&serverHost, "host", "", "server host address (default: 0.0.0.0)")
	cmd.Flags().IntVar(&serverPort, "port", 0, "server port (default: 8080)")
	return cmd
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	logger := config.NewLogger(cfg.Log, os.Stdout)
	logger.Info("starting community events server", slog.String("version", Version))

	metrics.Init(Version, GitCommit, BuildDate, cfg.Database.Driver)

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		return err
	}

	bootstrapCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := srv.BootstrapAdmin(bootstrapCtx); err != nil {
		logger.Error("admin bootstrap failed", slog.String("error", err.Error()))
	}
	cancel()

	return srv.Start(ctx)
}
