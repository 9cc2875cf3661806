// Package config builds the explicit pipeline configuration object passed
// into every component at startup. There are no ambient globals: the values
// are read from the environment exactly once.
package config

import (
	"stock_monitor/internal/app"
)

// Pipeline holds everything one monitor run needs to know.
type Pipeline struct {
	// Spreadsheet coordinates.
	SpreadsheetID      string // specification sheet: balance + parts
	InventorySheetID   string // inflow/release tracking sheet (ETL output)
	StockSheetName     string
	StockRange         string
	PartsSheetName     string
	PartsRange         string
	SummarySheetName   string
	SummaryRange       string
	DailyLogSheetID    string
	DailyLogSheetName  string
	DailyLogState      string
	CredentialsFile    string

	// Delivery.
	WebhookURL string

	// State persistence.
	StateDir    string
	StateSecret string

	// Comparison policy. Both thresholds are business policy, kept
	// configurable rather than hardcoded.
	DriftThreshold  int
	ScalarTolerance float64

	// BaselineOffset is added to the ETL-reported balance to account for
	// stock that predates ETL tracking.
	BaselineOffset float64

	// Timezone for operator-facing timestamps.
	Timezone string
}

// Snapshot keys. One snapshot of each logical kind exists at rest per run.
const (
	StockStateKey      = "previous_stock_state"
	PartsStateKey      = "previous_parts_state"
	DifferenceStateKey = "balance_difference"
)

// Load reads the pipeline configuration from the environment. Required
// variables abort startup; everything else has a working default.
func Load() Pipeline {
	return Pipeline{
		SpreadsheetID:     app.GetRequiredEnv("SPREADSHEET_ID"),
		InventorySheetID:  app.GetEnvWithDefault("INVENTORY_SHEET_ID", ""),
		StockSheetName:    app.GetEnvWithDefault("STOCK_SHEET_NAME", "balance"),
		StockRange:        app.GetEnvWithDefault("STOCK_RANGE", "A1:EX5"),
		PartsSheetName:    app.GetEnvWithDefault("PARTS_SHEET_NAME", "parts"),
		PartsRange:        app.GetEnvWithDefault("PARTS_RANGE", "A1:H5"),
		SummarySheetName:  app.GetEnvWithDefault("SUMMARY_SHEET_NAME", "summary"),
		SummaryRange:      app.GetEnvWithDefault("SUMMARY_RANGE", "A1:Z1000"),
		DailyLogSheetID:   app.GetEnvWithDefault("DAILY_LOG_SHEET_ID", ""),
		DailyLogSheetName: app.GetEnvWithDefault("DAILY_LOG_SHEET_NAME", "Daily Inventory Log"),
		DailyLogState:     app.GetEnvWithDefault("DAILY_LOG_STATE", "Kaduna"),
		CredentialsFile:   app.GetEnvWithDefault("GOOGLE_CREDENTIALS_FILE", "service-account.json"),
		WebhookURL:        app.GetRequiredEnv("SPACE_WEBHOOK_URL"),
		StateDir:          app.GetEnvWithDefault("STATE_DIR", "encrypted_states"),
		StateSecret:       app.GetRequiredEnv("STATE_ENCRYPTION_KEY"),
		DriftThreshold:    app.GetEnvInt("DRIFT_THRESHOLD", 10),
		ScalarTolerance:   app.GetEnvFloat("SCALAR_TOLERANCE", 0.01),
		BaselineOffset:    app.GetEnvFloat("BASELINE_OFFSET", 0),
		Timezone:          app.GetEnvWithDefault("REPORT_TIMEZONE", "Africa/Lagos"),
	}
}
