package diff

import (
	"strings"
	"testing"

	"stock_monitor/internal/grid"
)

func newDetector() Detector {
	return Detector{DriftThreshold: 10, ScalarTolerance: 0.01}
}

func qtyGrid(values ...string) grid.RawGrid {
	products := make([]string, len(values))
	grades := make([]string, len(values))
	metrics := make([]string, len(values))
	for i := range values {
		products[i] = string(rune('A' + i))
		grades[i] = "G1"
		metrics[i] = "Qty"
	}
	return grid.RawGrid{products, make([]string, len(values)), grades, values, metrics}
}

func TestDetectStructuralIdempotent(t *testing.T) {
	g := qtyGrid("5", "7", "12")
	changes, reset := newDetector().DetectStructural(g, g)
	if len(changes) != 0 {
		t.Errorf("Same grid compared to itself should yield no changes, got %+v", changes)
	}
	if reset {
		t.Error("Unexpected baseline reset")
	}
}

func TestDetectStructuralNilPrevious(t *testing.T) {
	changes, reset := newDetector().DetectStructural(nil, qtyGrid("5"))
	if changes != nil || reset {
		t.Errorf("First run should be baseline only, got changes=%+v reset=%v", changes, reset)
	}
}

func TestDetectStructuralValueChanges(t *testing.T) {
	previous := grid.RawGrid{
		{"A", "B"},
		{"T", "T"},
		{"G1", "G1"},
		{"5", "7"},
		{"Qty", "Qty"},
	}
	current := grid.RawGrid{
		{"A", "B"},
		{"T", "T"},
		{"G1", "G1"},
		{"5", "9"},
		{"Qty", "Qty"},
	}

	changes, reset := newDetector().DetectStructural(previous, current)
	if reset {
		t.Fatal("Unexpected baseline reset")
	}
	if len(changes) != 1 {
		t.Fatalf("Expected 1 change, got %d: %+v", len(changes), changes)
	}
	c := changes[0]
	if c.Product != "B" || c.OldValue != "7" || c.NewValue != "9" {
		t.Errorf("Unexpected change record %+v", c)
	}
}

func TestDetectStructuralOrderFollowsCurrentColumns(t *testing.T) {
	previous := qtyGrid("1", "2", "3")
	current := qtyGrid("9", "8", "7")

	changes, _ := newDetector().DetectStructural(previous, current)
	if len(changes) != 3 {
		t.Fatalf("Expected 3 changes, got %d", len(changes))
	}
	for i, want := range []string{"A", "B", "C"} {
		if changes[i].Product != want {
			t.Errorf("Change %d: expected product %s, got %s", i, want, changes[i].Product)
		}
	}
}

func TestDetectStructuralSchemaDrift(t *testing.T) {
	previous := qtyGrid("1", "2")
	wide := make([]string, 15)
	for i := range wide {
		wide[i] = "1"
	}
	current := qtyGrid(wide...)

	changes, reset := newDetector().DetectStructural(previous, current)
	if len(changes) != 0 {
		t.Errorf("Schema drift must not report per-cell changes, got %d", len(changes))
	}
	if !reset {
		t.Error("Expected baseline reset signal on schema drift")
	}
}

func TestDetectStructuralDriftThresholdIsConfigurable(t *testing.T) {
	detector := Detector{DriftThreshold: 1, ScalarTolerance: 0.01}
	changes, reset := detector.DetectStructural(qtyGrid("1"), qtyGrid("1", "2", "3"))
	if !reset {
		t.Error("Expected reset with threshold 1 and 2 added columns")
	}
	if len(changes) != 0 {
		t.Errorf("Expected no changes on reset, got %+v", changes)
	}
}

func TestDetectStructuralMissingInPrevious(t *testing.T) {
	previous := grid.RawGrid{
		{"A"},
		{"T"},
		{"G1"},
		{"5"},
		{"Qty"},
	}
	current := grid.RawGrid{
		{"A", ""},
		{"T", "T"},
		{"G1", "G2"},
		{"5", "3"},
		{"Qty", "Qty"},
	}

	changes, _ := newDetector().DetectStructural(previous, current)
	if len(changes) != 1 {
		t.Fatalf("Expected 1 change, got %d: %+v", len(changes), changes)
	}
	if changes[0].OldValue != "" || changes[0].NewValue != "3" {
		t.Errorf("Missing-in-previous should compare against empty string, got %+v", changes[0])
	}
}

func TestDetectStructuralExclusion(t *testing.T) {
	detector := newDetector()
	detector.ExcludeRecord = func(rec grid.CellRecord) bool {
		return strings.HasPrefix(rec.Product, "WHOLE CHICKEN") && rec.Metric == "Weight(kg)"
	}

	previous := grid.RawGrid{
		{"WHOLE CHICKEN - BELOW 1KG", ""},
		{"T", "T"},
		{"Grade A", ""},
		{"10", "7.0"},
		{"Qty", "Weight(kg)"},
	}
	current := grid.RawGrid{
		{"WHOLE CHICKEN - BELOW 1KG", ""},
		{"T", "T"},
		{"Grade A", ""},
		{"12", "8.4"},
		{"Qty", "Weight(kg)"},
	}

	changes, _ := detector.DetectStructural(previous, current)
	if len(changes) != 1 {
		t.Fatalf("Expected 1 change after exclusion, got %d: %+v", len(changes), changes)
	}
	if changes[0].Metric != "Qty" {
		t.Errorf("Derived weight column should be excluded, got %+v", changes[0])
	}
}

func TestDetectScalarTolerance(t *testing.T) {
	detector := newDetector()

	tests := []struct {
		name       string
		previous   float64
		current    float64
		wantChange bool
	}{
		{"within tolerance", 10.0, 10.004, false},
		{"beyond tolerance", 10.0, 10.02, true},
		{"exact match", 10.0, 10.0, false},
		{"negative swing", -4.0, 3.0, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			change := detector.DetectScalar(&test.previous, &test.current, "balance discrepancy")
			if test.wantChange && change == nil {
				t.Fatal("Expected a scalar change, got nil")
			}
			if !test.wantChange && change != nil {
				t.Fatalf("Expected no change, got %+v", change)
			}
			if change != nil {
				if change.OldValue != test.previous || change.NewValue != test.current {
					t.Errorf("Unexpected values in %+v", change)
				}
			}
		})
	}
}

func TestDetectScalarNilSides(t *testing.T) {
	detector := newDetector()
	value := 5.0

	if change := detector.DetectScalar(nil, &value, "x"); change != nil {
		t.Errorf("Nil previous should yield no change, got %+v", change)
	}
	if change := detector.DetectScalar(&value, nil, "x"); change != nil {
		t.Errorf("Nil current should yield no change, got %+v", change)
	}
}

func TestDifferenceTrackerCompute(t *testing.T) {
	tracker := DifferenceTracker{BaselineOffset: 100}
	balance := 400.0

	difference := tracker.Compute(550, &balance)
	if difference == nil {
		t.Fatal("Expected a difference, got nil")
	}
	if *difference != 50 {
		t.Errorf("Expected 50, got %v", *difference)
	}
}

func TestDifferenceTrackerZeroPhysicalCount(t *testing.T) {
	tracker := DifferenceTracker{}
	balance := 400.0

	if difference := tracker.Compute(0, &balance); difference != nil {
		t.Errorf("Zero physical count is a data outage, expected nil, got %v", *difference)
	}
}

func TestDifferenceTrackerNilBalance(t *testing.T) {
	tracker := DifferenceTracker{}
	if difference := tracker.Compute(550, nil); difference != nil {
		t.Errorf("Nil ETL balance should yield nil, got %v", *difference)
	}
}
