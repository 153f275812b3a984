package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create tables (postgres) or indexes (mongo) and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := a.openStore(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			defer repo.Close(context.Background())

			a.logger.Info("storage schema is up to date", zap.String("store", a.cfg.Store.Driver))
			return nil
		},
	}
}
