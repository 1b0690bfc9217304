// Package cmd holds the cobra command tree of the server binary.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/community-events/internal/config"
)

var (
	// Global flags
	configPath string
	logLevel   string
	logFormat  string
)

// newRootCommand builds a fresh command tree. Tests call it once per case so
// flag state does not leak between them.
func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "community-events",
		Short: "Community events server - users, events and registrations over REST",
		Long: `Community events server exposes a JSON API under /api for
users, capacity-limited events and event registrations.

The server supports:
- Username/password and GitHub sign-in with JWT bearer tokens
- Admin-managed events with search, price and date filters
- Atomic registration against event capacity
- SQLite (default) or PostgreSQL storage, optional Redis event cache`,
		SilenceUsage:  true,
		SilenceErrors: true,
		// Run the serve command by default if no subcommand is specified
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	// Global flags available to all subcommands
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (optional, env vars override it)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default: info)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json (default: text)")

	root.AddCommand(newServeCommand())
	root.AddCommand(newMigrateCommand())
	root.AddCommand(newSeedCommand())
	root.AddCommand(newVersionCommand())
	return root
}

// Execute runs the command tree. This is called by main.main().
func Execute() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the configuration and applies the global log flags.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}
