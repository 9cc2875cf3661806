// Package diff compares the current observation of a tracked data shape
// against the previously persisted snapshot and produces discrete change
// records.
package diff

import (
	"math"

	"github.com/rs/zerolog/log"

	"stock_monitor/internal/grid"
)

// ChangeRecord is one detected structural change: a single (product, grade,
// metric) column whose value moved between snapshots. Values are kept
// verbatim as strings; the sheet is the authority on formatting.
type ChangeRecord struct {
	Product  string
	Grade    string
	Metric   string
	OldValue string
	NewValue string
}

// ScalarChange is one detected change in a derived numeric metric.
type ScalarChange struct {
	Label    string
	OldValue float64
	NewValue float64
}

// Detector holds the comparison policy. Both knobs are business policy, not
// derived invariants, so they are configuration rather than constants.
type Detector struct {
	// DriftThreshold is the number of added/removed columns beyond which a
	// difference is treated as a sheet restructuring instead of data change.
	DriftThreshold int
	// ScalarTolerance absorbs floating-point noise in derived metrics.
	ScalarTolerance float64
	// ExcludeRecord, when set, drops records from structural comparison.
	// Used for columns whose value is computed from another tracked column,
	// where a diff would only duplicate the alert.
	ExcludeRecord func(rec grid.CellRecord) bool
}

// DetectStructural diffs two grid snapshots of the same logical sheet
// region.
//
// A nil previous means first run: no changes, but the caller must still
// persist current as the new baseline. When the column count drifted beyond
// DriftThreshold the sheet was restructured; reporting every cell as changed
// would be noise, so no changes are returned and resetBaseline tells the
// caller to re-seed the stored snapshot from current immediately.
//
// Otherwise both grids are parsed and indexed by (product, grade, metric).
// Every record in current is compared against previous in current's column
// order; a key missing from previous counts as an empty old value.
func (d Detector) DetectStructural(previous, current grid.RawGrid) (changes []ChangeRecord, resetBaseline bool) {
	if previous == nil {
		log.Debug().Msg("No previous snapshot, establishing baseline")
		return nil, false
	}

	colDrift := current.Width() - previous.Width()
	if colDrift < 0 {
		colDrift = -colDrift
	}
	if colDrift > d.DriftThreshold {
		log.Warn().
			Int("previous_columns", previous.Width()).
			Int("current_columns", current.Width()).
			Int("threshold", d.DriftThreshold).
			Msg("Column count drifted beyond threshold, resetting baseline")
		return nil, true
	}

	prevIndex := make(map[string]grid.CellRecord)
	for _, rec := range grid.Parse(previous) {
		prevIndex[rec.Key()] = rec
	}

	for _, rec := range grid.Parse(current) {
		if d.ExcludeRecord != nil && d.ExcludeRecord(rec) {
			continue
		}

		oldValue := ""
		if prev, ok := prevIndex[rec.Key()]; ok {
			oldValue = prev.Value
		}

		if oldValue != rec.Value {
			changes = append(changes, ChangeRecord{
				Product:  rec.Product,
				Grade:    rec.Grade,
				Metric:   rec.Metric,
				OldValue: oldValue,
				NewValue: rec.Value,
			})
			log.Debug().
				Str("product", rec.Product).
				Str("grade", rec.Grade).
				Str("metric", rec.Metric).
				Str("old", oldValue).
				Str("new", rec.Value).
				Msg("Change detected")
		}
	}

	return changes, false
}

// DetectScalar diffs a derived numeric metric against its previous value.
// Either side being nil means the metric was uncomputable at that point, so
// there is nothing meaningful to report. Differences inside the tolerance
// are floating-point noise, not changes.
func (d Detector) DetectScalar(previous, current *float64, label string) *ScalarChange {
	if previous == nil || current == nil {
		return nil
	}
	if math.Abs(*current-*previous) < d.ScalarTolerance {
		return nil
	}
	log.Debug().
		Str("label", label).
		Float64("old", *previous).
		Float64("new", *current).
		Msg("Scalar change detected")
	return &ScalarChange{Label: label, OldValue: *previous, NewValue: *current}
}

// DifferenceTracker computes the physical-count vs ETL-balance discrepancy.
// The two sides come from different upstream owners, so the difference is
// itself a tracked metric: it is persisted and diffed like any snapshot.
type DifferenceTracker struct {
	// BaselineOffset accounts for historical stock that predates ETL
	// tracking. It is added to the ETL-reported balance.
	BaselineOffset float64
}

// Compute returns physicalCount - (etlBalance + offset), or nil when the
// difference cannot be computed. A zero physical count means the sheet data
// was unavailable, not that the cold room is empty; computing a difference
// from it would report a misleading large negative discrepancy.
func (t DifferenceTracker) Compute(physicalCount float64, etlBalance *float64) *float64 {
	if etlBalance == nil {
		log.Debug().Msg("ETL balance unavailable, difference not computed")
		return nil
	}
	if physicalCount == 0 {
		log.Debug().Msg("Physical count is zero, treating as data outage")
		return nil
	}
	difference := physicalCount - (*etlBalance + t.BaselineOffset)
	return &difference
}
