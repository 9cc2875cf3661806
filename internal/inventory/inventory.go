// Package inventory holds the business arithmetic on top of parsed balance
// grids: physical piece counts, the whole-chicken weight model, and the
// ETL-reported balance lookup.
package inventory

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"stock_monitor/internal/grid"
	"stock_monitor/internal/sheets"
)

const (
	balanceColumn   = "chicken_quantity_stock_balance"
	yearMonthColumn = "year_month"
)

// ParseNumber reads a sheet cell as a float. Thousands separators are
// tolerated; anything else non-numeric yields false.
func ParseNumber(value string) (float64, bool) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(value), ",", "")
	if cleaned == "" {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// PhysicalPieceCount sums the Qty columns of a balance grid. Gizzard is
// weight-tracked and TOTAL columns are already aggregates, so both are
// excluded. Non-numeric cells are skipped.
func PhysicalPieceCount(g grid.RawGrid) float64 {
	total := 0.0
	for _, rec := range grid.Parse(g) {
		if rec.Metric != "Qty" {
			continue
		}
		product := strings.ToUpper(rec.Product)
		if strings.Contains(product, "GIZZARD") || product == "TOTAL" {
			continue
		}
		if qty, ok := ParseNumber(rec.Value); ok {
			total += qty
		}
	}
	return total
}

// IsDerivedWeight reports whether a record's value is computed by the sheet
// from another tracked column. Whole-chicken weight is qty times the weight
// model; diffing it alongside Qty would double every alert.
func IsDerivedWeight(rec grid.CellRecord) bool {
	return strings.Contains(strings.ToUpper(rec.Product), "WHOLE CHICKEN") &&
		strings.EqualFold(rec.Metric, "Weight(kg)")
}

// WeightPerPiece maps a whole-chicken weight category to kilograms per
// piece. Categories name a range ("BELOW 1KG", "ABOVE 2KG") or an exact
// weight ("1.2KG"); anything unrecognized defaults to 1kg.
func WeightPerPiece(category string) float64 {
	c := strings.ToLower(category)
	switch {
	case strings.Contains(c, "below") && strings.Contains(c, "1kg"):
		return 0.7
	case strings.Contains(c, "above") && strings.Contains(c, "2kg"):
		return 2.0
	case strings.Contains(c, "uncategorised"):
		return 1.4
	case strings.Contains(c, "kg"):
		if w, ok := ParseNumber(strings.TrimSpace(strings.ReplaceAll(c, "kg", ""))); ok {
			return w
		}
	}
	return 1.0
}

// WholeChickenWeightKg estimates total whole-chicken weight from a balance
// grid by applying the weight model to each category's quantity.
func WholeChickenWeightKg(g grid.RawGrid) float64 {
	total := 0.0
	for _, rec := range grid.Parse(g) {
		if rec.Metric != "Qty" || !strings.Contains(strings.ToUpper(rec.Product), "WHOLE CHICKEN") {
			continue
		}
		category := strings.TrimSpace(strings.TrimPrefix(rec.Product, "WHOLE CHICKEN -"))
		category = strings.TrimSpace(strings.TrimPrefix(category, "WHOLE CHICKEN"))
		if qty, ok := ParseNumber(rec.Value); ok {
			total += qty * WeightPerPiece(category)
		}
	}
	return total
}

// ETLBalanceSource reads the externally-owned stock balance from the
// transformation pipeline's summary sheet.
type ETLBalanceSource struct {
	Client        *sheets.Client
	SpreadsheetID string
	SheetName     string
	Range         string
	Location      *time.Location
}

// CurrentBalance returns the ETL-reported chicken balance for the current
// month, falling back to the most recent month on record. Every failure
// mode returns nil: the balance comparison is an enrichment, and a missing
// value must not block change detection.
func (s ETLBalanceSource) CurrentBalance(ctx context.Context) *float64 {
	if s.SpreadsheetID == "" {
		log.Debug().Msg("No inventory sheet configured, skipping ETL balance")
		return nil
	}

	g, err := s.Client.FetchRange(ctx, s.SpreadsheetID, s.SheetName, s.Range)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to fetch inventory summary")
		return nil
	}
	return BalanceFromSummary(g, time.Now().In(s.Location))
}

// BalanceFromSummary extracts the balance from a summary grid whose columns
// are located by header name, not position.
func BalanceFromSummary(g grid.RawGrid, now time.Time) *float64 {
	if len(g) < 2 {
		log.Warn().Int("rows", len(g)).Msg("Inventory summary too short")
		return nil
	}

	balanceCol, yearMonthCol := -1, -1
	for i := range g[0] {
		switch g.Cell(0, i) {
		case balanceColumn:
			balanceCol = i
		case yearMonthColumn:
			yearMonthCol = i
		}
	}
	if balanceCol < 0 || yearMonthCol < 0 {
		log.Warn().Msg("Inventory summary missing required columns")
		return nil
	}

	currentYearMonth := now.Format("2006-01")
	bestRow, bestYearMonth := -1, ""
	for row := 1; row < len(g); row++ {
		yearMonth := g.Cell(row, yearMonthCol)
		if yearMonth == currentYearMonth {
			bestRow = row
			break
		}
		// Track the most recent month as a fallback.
		if yearMonth > bestYearMonth {
			bestYearMonth = yearMonth
			bestRow = row
		}
	}
	if bestRow < 0 {
		log.Warn().Msg("No usable row in inventory summary")
		return nil
	}
	if g.Cell(bestRow, yearMonthCol) != currentYearMonth {
		log.Warn().
			Str("wanted", currentYearMonth).
			Str("using", g.Cell(bestRow, yearMonthCol)).
			Msg("No inventory row for current month, using most recent")
	}

	balance, ok := ParseNumber(g.Cell(bestRow, balanceCol))
	if !ok {
		log.Warn().Str("value", g.Cell(bestRow, balanceCol)).Msg("Invalid balance value in inventory summary")
		return nil
	}
	return &balance
}
