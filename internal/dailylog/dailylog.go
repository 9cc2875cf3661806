// Package dailylog records the end-of-day whole-chicken inventory level to
// the daily log spreadsheet, one upserted row per calendar day.
package dailylog

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"stock_monitor/internal/grid"
	"stock_monitor/internal/inventory"
	"stock_monitor/internal/retry"
	"stock_monitor/internal/sheets"
)

// The log sheet reserves rows 1-3 for title, description and headers.
// Entries start on row 4; Entry ID is column A, Date is column B.
const (
	headerRows = 3
	dateLayout = "02-Jan-2006"
)

// lowStockTonnes is the reorder alarm line for the scorecard column.
const lowStockTonnes = 10.0

var logHeaders = []interface{}{
	"Entry ID", "Date", "Year", "Month", "State",
	"Inventory Level (tonnes)", "Below 10 Tonnes",
}

// Entry is one daily log row.
type Entry struct {
	ID             int
	Date           string
	Year           string
	Month          string
	State          string
	Tonnes         float64
	BelowThreshold string
}

// Recorder writes daily entries to the log sheet.
type Recorder struct {
	Client        *sheets.Client
	SpreadsheetID string
	SheetName     string
	State         string
	Location      *time.Location
	SheetRead     retry.Config
}

// Record computes today's inventory tonnage from the balance grid and
// upserts it into the log sheet. Running twice on the same day updates the
// existing row rather than appending a duplicate.
func (r Recorder) Record(ctx context.Context, balance grid.RawGrid) (Entry, error) {
	now := time.Now().In(r.Location)
	tonnes := math.Round(inventory.WholeChickenWeightKg(balance)/1000*100) / 100

	entry := Entry{
		Date:           now.Format(dateLayout),
		Year:           now.Format("2006"),
		Month:          now.Format("January"),
		State:          r.State,
		Tonnes:         tonnes,
		BelowThreshold: belowThreshold(tonnes),
	}

	logGrid, err := r.fetchLog(ctx)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read daily log sheet: %w", err)
	}

	if err := r.ensureHeaders(ctx, logGrid); err != nil {
		// Headers are cosmetic scaffolding; a data row still lands below.
		log.Warn().Err(err).Msg("Could not write daily log headers")
	}

	if rowNumber, existingID, ok := findEntryRow(logGrid, entry.Date); ok {
		entry.ID = existingID
		if err := r.Client.UpdateRange(ctx, r.SpreadsheetID,
			fmt.Sprintf("'%s'!A%d:G%d", r.SheetName, rowNumber, rowNumber),
			[][]interface{}{entry.row()}); err != nil {
			return Entry{}, fmt.Errorf("failed to update daily log entry: %w", err)
		}
		log.Info().Int("entry_id", entry.ID).Str("date", entry.Date).Msg("Daily log entry updated")
		return entry, nil
	}

	entry.ID = nextEntryID(logGrid)
	if err := r.Client.AppendRows(ctx, r.SpreadsheetID,
		fmt.Sprintf("'%s'!A:G", r.SheetName),
		[][]interface{}{entry.row()}); err != nil {
		return Entry{}, fmt.Errorf("failed to append daily log entry: %w", err)
	}
	log.Info().Int("entry_id", entry.ID).Str("date", entry.Date).Msg("Daily log entry added")
	return entry, nil
}

func (r Recorder) fetchLog(ctx context.Context) (grid.RawGrid, error) {
	policy := r.SheetRead
	policy.Retryable = sheets.IsTransient
	return retry.WithRetry(ctx, policy, func(ctx context.Context) (grid.RawGrid, error) {
		return r.Client.FetchRange(ctx, r.SpreadsheetID, r.SheetName, "A1:G10000")
	})
}

// ensureHeaders writes the title block when row 3 does not carry the
// expected header. It never clears existing rows.
func (r Recorder) ensureHeaders(ctx context.Context, logGrid grid.RawGrid) error {
	if logGrid.Cell(2, 0) == "Entry ID" {
		return nil
	}
	return r.Client.UpdateRange(ctx, r.SpreadsheetID,
		fmt.Sprintf("'%s'!A1:G3", r.SheetName),
		[][]interface{}{
			{"PULLUS PURCHASE - Daily Inventory Log"},
			{"Record daily inventory levels. \"Below 10 Tonnes\" auto-calculates. Data aggregates to Monthly Scorecards."},
			logHeaders,
		})
}

func (e Entry) row() []interface{} {
	return []interface{}{e.ID, e.Date, e.Year, e.Month, e.State, e.Tonnes, e.BelowThreshold}
}

func belowThreshold(tonnes float64) string {
	if tonnes < lowStockTonnes {
		return "Yes"
	}
	return "No"
}

// findEntryRow locates an existing entry for the date. The returned row
// number is 1-based, as the sheets API addresses rows.
func findEntryRow(logGrid grid.RawGrid, date string) (rowNumber, entryID int, ok bool) {
	for i := headerRows; i < len(logGrid); i++ {
		if logGrid.Cell(i, 1) != date {
			continue
		}
		id, err := strconv.Atoi(logGrid.Cell(i, 0))
		if err != nil {
			continue
		}
		return i + 1, id, true
	}
	return 0, 0, false
}

// nextEntryID returns one past the highest numeric entry ID on the sheet.
func nextEntryID(logGrid grid.RawGrid) int {
	maxID := 0
	for i := headerRows; i < len(logGrid); i++ {
		if id, err := strconv.Atoi(logGrid.Cell(i, 0)); err == nil && id > maxID {
			maxID = id
		}
	}
	return maxID + 1
}
