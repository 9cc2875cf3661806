// Package cmd wires the CLI. Every subcommand shares one environment setup
// and builds its collaborators from the same pipeline configuration.
package cmd

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"stock_monitor/internal/app"
	"stock_monitor/internal/config"
	"stock_monitor/internal/notify"
	"stock_monitor/internal/sheets"
	"stock_monitor/internal/state"
)

var rootCmd = &cobra.Command{
	Use:   "stock_monitor",
	Short: "Cold-room inventory monitor for the specification spreadsheet",
	Long: `stock_monitor watches the cold-room specification spreadsheet for stock
and parts changes, alerts the operations chat space, and keeps encrypted
snapshots so every change is reported exactly once.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		app.SetupEnvironment()
	},
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute runs the CLI. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newStore builds the encrypted snapshot store from configuration.
func newStore(cfg config.Pipeline) *state.Store {
	store, err := state.NewStore(cfg.StateDir, cfg.StateSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open state store")
	}
	return store
}

// newNotifier builds the webhook client with the shared resilience policy.
func newNotifier(cfg config.Pipeline, store *state.Store) *notify.Client {
	resilience := config.DefaultResilienceConfig
	return notify.NewClient(cfg.WebhookURL, resilience.Webhook, notify.DefaultBreakerConfig(), store)
}

// newSheetsClient builds the Google Sheets client.
func newSheetsClient(ctx context.Context, cfg config.Pipeline) *sheets.Client {
	client, err := sheets.NewClient(ctx, cfg.CredentialsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create sheets client")
	}
	return client
}
