package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/infobox-crawler/internal/server"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Creates the pages, fields and facts tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			cfg := rt.cfg
			cfg.Database.AutoMigrate = true
			store, err := server.OpenStore(cmd.Context(), cfg, rt.logger)
			if err != nil {
				return err
			}
			if err := store.Close(); err != nil {
				return fmt.Errorf("close store: %w", err)
			}
			rt.logger.Info("schema migrated", zap.String("driver", cfg.Database.Driver))
			return nil
		},
	}
}
