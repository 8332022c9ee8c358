package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tendant/teamspace/internal/app"
	"github.com/tendant/teamspace/internal/config"
	"github.com/tendant/teamspace/internal/logging"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Operator commands run against the database",
}

var confirmEmailCmd = &cobra.Command{
	Use:   "confirm-email EMAIL",
	Short: "Mark an account's email as confirmed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		logger, err := logging.New(cfg.LogLevel, logging.Console)
		if err != nil {
			return err
		}

		ctx := context.Background()
		backend, err := app.Open(ctx, cfg, logger, app.Options{})
		if err != nil {
			return err
		}
		defer backend.Close()

		account, err := backend.Auth().ConfirmEmail(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "confirmed %s (%s)\n", account.Email, account.ID)
		return nil
	},
}

func init() {
	adminCmd.AddCommand(confirmEmailCmd)
	rootCmd.AddCommand(adminCmd)
}
