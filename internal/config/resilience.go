package config

import (
	"time"

	"stock_monitor/internal/retry"
)

// ResilienceConfig groups the retry policies for each external surface.
type ResilienceConfig struct {
	SheetRead retry.Config
	Webhook   retry.Config
}

// DefaultResilienceConfig mirrors the upstream API budgets: sheet reads get
// five attempts against rate limits, webhook delivery gets five attempts
// with a 10s cap per attempt.
var DefaultResilienceConfig = ResilienceConfig{
	SheetRead: retry.Config{
		MaxRetries: 4,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Timeout:    15 * time.Second,
	},
	Webhook: retry.Config{
		MaxRetries: 4,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Timeout:    10 * time.Second,
	},
}
