package cmd

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"stock_monitor/internal/config"
	"stock_monitor/internal/dailylog"
	"stock_monitor/internal/grid"
	"stock_monitor/internal/retry"
	"stock_monitor/internal/sheets"
)

var dailyLogCmd = &cobra.Command{
	Use:   "daily-log",
	Short: "Record today's whole-chicken inventory level",
	Long: `Reads the balance region, converts whole-chicken quantities to tonnes via
the per-category weight model, and upserts today's row in the daily log
sheet. Safe to run more than once per day.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := config.Load()
		client := newSheetsClient(ctx, cfg)
		resilience := config.DefaultResilienceConfig

		location, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Warn().Err(err).Str("timezone", cfg.Timezone).Msg("Unknown timezone, falling back to UTC")
			location = time.UTC
		}

		logSheetID := cfg.DailyLogSheetID
		if logSheetID == "" {
			log.Fatal().Msg("DAILY_LOG_SHEET_ID is not set")
		}

		balance, err := fetchBalance(ctx, client, cfg, resilience.SheetRead)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to fetch balance sheet")
		}

		recorder := dailylog.Recorder{
			Client:        client,
			SpreadsheetID: logSheetID,
			SheetName:     cfg.DailyLogSheetName,
			State:         cfg.DailyLogState,
			Location:      location,
			SheetRead:     resilience.SheetRead,
		}
		entry, err := recorder.Record(ctx, balance)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to record daily log entry")
		}
		log.Info().
			Int("entry_id", entry.ID).
			Str("date", entry.Date).
			Float64("tonnes", entry.Tonnes).
			Str("below_10_tonnes", entry.BelowThreshold).
			Msg("Daily inventory log completed")
	},
}

func fetchBalance(ctx context.Context, client *sheets.Client, cfg config.Pipeline, policy retry.Config) (grid.RawGrid, error) {
	policy.Retryable = sheets.IsTransient
	return retry.WithRetry(ctx, policy, func(ctx context.Context) (grid.RawGrid, error) {
		return client.FetchRange(ctx, cfg.SpreadsheetID, cfg.StockSheetName, cfg.StockRange)
	})
}

func init() {
	rootCmd.AddCommand(dailyLogCmd)
}
