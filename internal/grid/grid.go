package grid

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// RawGrid is a sheet range exactly as returned by a values read: rows of
// cells, rows may have unequal length, columns are positional.
type RawGrid [][]string

// Cell returns the trimmed cell at (row, col), or "" when the position is
// out of range. Sheets drop trailing empty cells, so out-of-range access is
// normal and must not panic.
func (g RawGrid) Cell(row, col int) string {
	if row < 0 || row >= len(g) {
		return ""
	}
	if col < 0 || col >= len(g[row]) {
		return ""
	}
	return strings.TrimSpace(g[row][col])
}

// Columns returns the widest row length among the given row indices.
func (g RawGrid) Columns(rows ...int) int {
	maxCols := 0
	for _, r := range rows {
		if r >= 0 && r < len(g) && len(g[r]) > maxCols {
			maxCols = len(g[r])
		}
	}
	return maxCols
}

// Width returns the length of row 0, the row that carries product headers.
func (g RawGrid) Width() int {
	if len(g) == 0 {
		return 0
	}
	return len(g[0])
}

// CellRecord is one fully-resolved column of a balance sheet.
type CellRecord struct {
	ColIndex int
	Product  string
	Grade    string
	Metric   string
	Value    string
}

// Key returns the composite identity used to match a column across snapshots.
func (r CellRecord) Key() string {
	return r.Product + "|" + r.Grade + "|" + r.Metric
}

// ColumnRange is a contiguous run of columns belonging to one product.
type ColumnRange struct {
	Start int
	End   int // inclusive
}

// Balance sheet header layout. Row 1 historically holds a TOTAL label and is
// ignored.
const (
	rowProduct = 0
	rowGrade   = 2
	rowValue   = 3
	rowMetric  = 4

	headerRows = 5
)

// reservedProducts are row-0 labels that mark bookkeeping columns, never
// inventory. Columns under them are skipped entirely.
var reservedProducts = map[string]bool{
	"DATE":  true,
	"NOTES": true,
}

// Parse resolves the five-row header convention into one CellRecord per data
// column. Product (row 0) and grade (row 2) cells are sparse: a non-empty
// cell starts a run that carries forward until the next non-empty cell.
// A record is emitted only when product, grade and metric all resolved to
// non-empty values. Grids with fewer than five rows yield no records; the
// caller must treat that as insufficient data, not as an empty sheet.
func Parse(g RawGrid) []CellRecord {
	if len(g) < headerRows {
		log.Debug().Int("rows", len(g)).Msg("Grid too short for header convention, nothing to parse")
		return nil
	}

	maxCols := g.Columns(rowProduct, rowGrade, rowValue, rowMetric)

	var records []CellRecord
	currentProduct := ""
	currentGrade := ""

	for i := 0; i < maxCols; i++ {
		if p := g.Cell(rowProduct, i); p != "" {
			currentProduct = p
		}

		if reservedProducts[currentProduct] {
			continue
		}

		if gr := g.Cell(rowGrade, i); gr != "" {
			currentGrade = gr
		}

		metric := g.Cell(rowMetric, i)
		value := g.Cell(rowValue, i)
		if value == "" {
			value = "0"
		}

		if currentProduct != "" && currentGrade != "" && metric != "" {
			records = append(records, CellRecord{
				ColIndex: i,
				Product:  currentProduct,
				Grade:    currentGrade,
				Metric:   metric,
				Value:    value,
			})
		}
	}

	return records
}

// Categorize scans row 0 and returns the contiguous column range occupied by
// each product. Reserved labels are included so callers can see the full
// layout; Parse is the one that filters them.
func Categorize(g RawGrid) map[string]ColumnRange {
	ranges := make(map[string]ColumnRange)
	if len(g) == 0 {
		return ranges
	}

	current := ""
	for i := 0; i < len(g[0]); i++ {
		cell := g.Cell(rowProduct, i)
		if cell != "" && cell != current {
			current = cell
			ranges[current] = ColumnRange{Start: i, End: i}
		} else if current != "" {
			r := ranges[current]
			r.End = i
			ranges[current] = r
		}
	}

	return ranges
}
