package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taskboard/internal/db"
	"taskboard/internal/logging"
)

func runMigrate(cmd *cobra.Command, configPath string) error {
	cfg, logger, err := setup(configPath)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	ctx := cmd.Context()
	stores, err := db.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	defer stores.Close(ctx)

	if err := stores.EnsureSchema(ctx); err != nil {
		return err
	}
	logger.Info("schema up to date", zap.String("store", cfg.Store.Driver))
	fmt.Fprintf(cmd.OutOrStdout(), "%s schema up to date\n", cfg.Store.Driver)
	return nil
}
