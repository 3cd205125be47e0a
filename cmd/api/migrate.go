package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sectorboard/api/db"
	"sectorboard/api/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending migration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		sqlDB, err := store.Open(cmd.Context(), cfg.DatabaseURL, store.DefaultPoolConfig())
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer sqlDB.Close()

		applied, err := store.ApplyMigrations(cmd.Context(), sqlDB, db.Migrations())
		if err != nil {
			return err
		}
		logger.Info("migrations applied", zap.Strings("versions", applied))
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert the most recent migration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		sqlDB, err := store.Open(cmd.Context(), cfg.DatabaseURL, store.DefaultPoolConfig())
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer sqlDB.Close()

		version, err := store.RevertLastMigration(cmd.Context(), sqlDB, db.Migrations())
		if err != nil {
			return err
		}
		if version == "" {
			logger.Info("nothing to revert")
			return nil
		}
		logger.Info("migration reverted", zap.String("version", version))
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
}
