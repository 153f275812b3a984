package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rongwang/assetverse-server/internal/config"
	"github.com/rongwang/assetverse-server/internal/repository"
	"github.com/rongwang/assetverse-server/internal/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app carries what every subcommand needs after PersistentPreRunE
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

func main() {
	a := &app{}

	root := &cobra.Command{
		Use:           "assetverse",
		Short:         "AssetVerse asset management server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.LoadConfig()
			if driver, _ := cmd.Flags().GetString("store"); driver != "" {
				cfg.Store.Driver = driver
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := utils.NewLogger(cfg.Log.Env)
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}

			a.cfg = cfg
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().String("store", "", "storage backend: postgres, mongo or memory (overrides STORE_DRIVER)")

	root.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newPackagesCmd(a),
		newTokenCmd(a),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openStore connects the configured backend
func (a *app) openStore(ctx context.Context) (repository.Repository, error) {
	switch a.cfg.Store.Driver {
	case config.StoreMongo:
		repo, err := config.SetupMongo(ctx, a.cfg, a.logger)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case config.StoreMemory:
		return repository.NewMemoryRepository(), nil
	default:
		db, err := config.SetupDatabase(a.cfg, a.logger)
		if err != nil {
			return nil, err
		}
		return repository.NewPostgresRepository(db), nil
	}
}
