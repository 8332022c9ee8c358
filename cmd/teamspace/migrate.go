package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tendant/teamspace/internal/config"
	"github.com/tendant/teamspace/internal/logging"
	"github.com/tendant/teamspace/pkg/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		logger, err := logging.New(cfg.LogLevel, logging.Console)
		if err != nil {
			return err
		}

		db, err := repository.NewDB(repository.Config{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			DBName:   cfg.DBName,
			SSLMode:  cfg.DBSSLMode,
		})
		if err != nil {
			return err
		}
		defer db.Close()

		if err := repository.Migrate(context.Background(), db); err != nil {
			return err
		}
		logger.Info("migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
