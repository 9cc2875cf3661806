package grid

import (
	"testing"
)

func balanceGrid() RawGrid {
	return RawGrid{
		{"DATE", "WHOLE CHICKEN - BELOW 1KG", "", "WHOLE CHICKEN - ABOVE 2KG", "", "GIZZARD", "NOTES"},
		{"", "TOTAL", "TOTAL", "TOTAL", "TOTAL", "TOTAL", ""},
		{"", "Grade A", "", "Grade A", "Grade B", "Grade A", ""},
		{"01-Jan", "120", "85.5", "40", "", "312.25", "restock"},
		{"", "Qty", "Weight(kg)", "Qty", "Qty", "Weight(kg)", ""},
	}
}

func TestParseCarryForward(t *testing.T) {
	records := Parse(balanceGrid())

	want := []CellRecord{
		{ColIndex: 1, Product: "WHOLE CHICKEN - BELOW 1KG", Grade: "Grade A", Metric: "Qty", Value: "120"},
		{ColIndex: 2, Product: "WHOLE CHICKEN - BELOW 1KG", Grade: "Grade A", Metric: "Weight(kg)", Value: "85.5"},
		{ColIndex: 3, Product: "WHOLE CHICKEN - ABOVE 2KG", Grade: "Grade A", Metric: "Qty", Value: "40"},
		{ColIndex: 4, Product: "WHOLE CHICKEN - ABOVE 2KG", Grade: "Grade B", Metric: "Qty", Value: "0"},
		{ColIndex: 5, Product: "GIZZARD", Grade: "Grade A", Metric: "Weight(kg)", Value: "312.25"},
	}

	if len(records) != len(want) {
		t.Fatalf("Expected %d records, got %d: %+v", len(want), len(records), records)
	}
	for i, rec := range records {
		if rec != want[i] {
			t.Errorf("Record %d: expected %+v, got %+v", i, want[i], rec)
		}
	}
}

func TestParseReservedColumnsSkipped(t *testing.T) {
	for _, rec := range Parse(balanceGrid()) {
		if rec.Product == "DATE" || rec.Product == "NOTES" {
			t.Errorf("Reserved product leaked into records: %+v", rec)
		}
		if rec.Product == "" || rec.Grade == "" || rec.Metric == "" {
			t.Errorf("Incomplete record emitted: %+v", rec)
		}
	}
}

func TestParseShortGrid(t *testing.T) {
	g := RawGrid{
		{"A", "B"},
		{"1", "2"},
	}
	if records := Parse(g); records != nil {
		t.Errorf("Expected nil for grid with fewer than 5 rows, got %+v", records)
	}
}

func TestParseRaggedRows(t *testing.T) {
	// Metric row is longer than the value row; missing values default to "0".
	g := RawGrid{
		{"GIZZARD"},
		{"TOTAL"},
		{"Grade A"},
		{},
		{"Weight(kg)", "Packs"},
	}
	records := Parse(g)
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d: %+v", len(records), records)
	}
	for _, rec := range records {
		if rec.Value != "0" {
			t.Errorf("Expected default value 0, got %q", rec.Value)
		}
		if rec.Product != "GIZZARD" || rec.Grade != "Grade A" {
			t.Errorf("Carry-forward failed on ragged row: %+v", rec)
		}
	}
}

func TestCategorize(t *testing.T) {
	ranges := Categorize(balanceGrid())

	tests := []struct {
		product string
		start   int
		end     int
	}{
		{"DATE", 0, 0},
		{"WHOLE CHICKEN - BELOW 1KG", 1, 2},
		{"WHOLE CHICKEN - ABOVE 2KG", 3, 4},
		{"GIZZARD", 5, 5},
		{"NOTES", 6, 6},
	}

	for _, test := range tests {
		r, ok := ranges[test.product]
		if !ok {
			t.Errorf("Missing range for %s", test.product)
			continue
		}
		if r.Start != test.start || r.End != test.end {
			t.Errorf("%s: expected [%d,%d], got [%d,%d]", test.product, test.start, test.end, r.Start, r.End)
		}
	}
}

func TestCellOutOfRange(t *testing.T) {
	g := RawGrid{{"a"}}
	if v := g.Cell(0, 5); v != "" {
		t.Errorf("Expected empty string for out-of-range column, got %q", v)
	}
	if v := g.Cell(3, 0); v != "" {
		t.Errorf("Expected empty string for out-of-range row, got %q", v)
	}
}
