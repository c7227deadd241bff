// Command taskboard runs the task board API.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taskboard/internal/config"
	"taskboard/internal/logging"
)

var version = "dev"

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "taskboard",
		Short: "Collaborative task board API",
		Long: `taskboard serves the task board HTTP API.

Configuration is read from an optional YAML file and TASKBOARD_* environment
variables, for example TASKBOARD_STORE_DRIVER=postgres.

Examples:
  # Serve with the in-memory store
  taskboard

  # Serve with a config file
  taskboard serve --config /etc/taskboard/config.yaml

  # Create tables and indexes, then exit
  taskboard migrate --config /etc/taskboard/config.yaml

  # Inspect the configured store
  taskboard tasks list --associated a@x.com --format short
  taskboard notifications c@x.com`,
		Version:       version,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, configPath)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the store schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, configPath)
		},
	})
	root.AddCommand(newTasksCmd(&configPath), newNotificationsCmd(&configPath))
	return root
}

// setup loads configuration and builds the logger shared by every command.
func setup(configPath string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, logger, nil
}
