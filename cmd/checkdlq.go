package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"stock_monitor/internal/config"
	"stock_monitor/internal/notify"
)

var dlqOutputPath string

var checkDLQCmd = &cobra.Command{
	Use:   "check-dlq",
	Short: "Summarize dead-lettered webhook deliveries",
	Long: `Decrypts the dead-letter queue and prints FOUND:<n> or NONE. When entries
exist, a plaintext summary is written for the operator to reconcile. Also
surfaces any pending snapshot read-failure alert.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		store := newStore(cfg)
		notifier := newNotifier(cfg, store)

		if alert, ok := store.ReadFailureAlertPending(); ok {
			log.Warn().
				Str("timestamp", alert.Timestamp).
				Strs("files", alert.FailedFiles).
				Msg("Snapshot read-failure alert pending")
		}

		report := notifier.CheckDeadLetterQueue()
		if report.Count == 0 {
			fmt.Println("NONE")
			return
		}

		if err := os.WriteFile(dlqOutputPath, []byte(formatQueue(report)), 0o600); err != nil {
			log.Fatal().Err(err).Str("path", dlqOutputPath).Msg("Failed to write queue summary")
		}
		fmt.Printf("FOUND:%d\n", report.Count)
	},
}

func formatQueue(report notify.QueueReport) string {
	var sb strings.Builder
	for _, entry := range report.Entries {
		fmt.Fprintf(&sb, "Timestamp: %s\n", entry.Timestamp)
		fmt.Fprintf(&sb, "Error: %s\n", entry.Error)
		fmt.Fprintf(&sb, "Attempts: %d\n", entry.Attempts)
		sb.WriteString("---\n")
	}
	return sb.String()
}

func init() {
	checkDLQCmd.Flags().StringVar(&dlqOutputPath, "output", "failed_webhooks_readable.txt",
		"where to write the readable queue summary")
	rootCmd.AddCommand(checkDLQCmd)
}
