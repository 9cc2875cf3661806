package cmd

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"stock_monitor/internal/config"
	"stock_monitor/internal/monitor"
)

var monitorInterval time.Duration

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch the specification sheet and alert on changes",
	Long: `Fetches the balance and parts regions, diffs them against the encrypted
snapshots from the previous run, delivers a chat alert when anything moved,
and persists the new snapshots. With --interval it keeps running on a
ticker; without it, one pass and exit.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := config.Load()

		store := newStore(cfg)
		notifier := newNotifier(cfg, store)
		client := newSheetsClient(ctx, cfg)
		pipeline := monitor.New(cfg, config.DefaultResilienceConfig, client, store, notifier)

		runOnce(ctx, pipeline)
		if monitorInterval <= 0 {
			return
		}

		log.Info().Dur("interval", monitorInterval).Msg("Monitor loop started")
		ticker := time.NewTicker(monitorInterval)
		defer ticker.Stop()
		for range ticker.C {
			runOnce(ctx, pipeline)
		}
	},
}

func runOnce(ctx context.Context, pipeline *monitor.Pipeline) {
	if err := pipeline.Run(ctx); err != nil {
		// A failed run leaves snapshots untouched, so the next pass simply
		// re-detects. Only the looping mode keeps going.
		if monitorInterval > 0 {
			log.Error().Err(err).Msg("Monitor run failed")
			return
		}
		log.Fatal().Err(err).Msg("Monitor run failed")
	}
}

func init() {
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 0,
		"keep running, one pass per interval (e.g. 5m); 0 runs once")
	rootCmd.AddCommand(monitorCmd)
}
