package state

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"stock_monitor/internal/grid"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), "test-secret")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func validGrid() grid.RawGrid {
	return grid.RawGrid{
		{"GIZZARD"},
		{"TOTAL"},
		{"Grade A"},
		{"312.25"},
		{"Weight(kg)"},
	}
}

func TestGridRoundTrip(t *testing.T) {
	store := newTestStore(t)

	g := validGrid()
	if err := store.SaveGrid("stock_state", g); err != nil {
		t.Fatalf("Failed to save grid: %v", err)
	}

	loaded := store.LoadGrid("stock_state")
	if loaded == nil {
		t.Fatal("Expected grid, got nil")
	}
	if len(loaded) != len(g) {
		t.Fatalf("Expected %d rows, got %d", len(g), len(loaded))
	}
	for i := range g {
		for j := range g[i] {
			if loaded[i][j] != g[i][j] {
				t.Errorf("Cell (%d,%d): expected %q, got %q", i, j, g[i][j], loaded[i][j])
			}
		}
	}
}

func TestScalarRoundTrip(t *testing.T) {
	store := newTestStore(t)

	value := 42.5
	if err := store.SaveScalar("balance_difference", &value); err != nil {
		t.Fatalf("Failed to save scalar: %v", err)
	}

	loaded := store.LoadScalar("balance_difference")
	if loaded == nil {
		t.Fatal("Expected scalar, got nil")
	}
	if *loaded != value {
		t.Errorf("Expected %v, got %v", value, *loaded)
	}
}

func TestScalarNilRoundTrip(t *testing.T) {
	store := newTestStore(t)

	if err := store.SaveScalar("balance_difference", nil); err != nil {
		t.Fatalf("Failed to save nil scalar: %v", err)
	}
	if loaded := store.LoadScalar("balance_difference"); loaded != nil {
		t.Errorf("Expected nil, got %v", *loaded)
	}
}

func TestLoadMissingSnapshot(t *testing.T) {
	store := newTestStore(t)

	if g := store.LoadGrid("never_saved"); g != nil {
		t.Errorf("Expected nil for missing snapshot, got %+v", g)
	}
	// Missing files are normal first-run behavior, not a read failure.
	if _, pending := store.ReadFailureAlertPending(); pending {
		t.Error("Missing snapshot should not raise a read-failure alert")
	}
}

func TestSaveGridRejectsShortGrid(t *testing.T) {
	store := newTestStore(t)

	short := grid.RawGrid{{"A"}, {"1"}}
	if err := store.SaveGrid("stock_state", short); err != nil {
		t.Fatalf("Short grid save should be a silent skip, got %v", err)
	}
	if g := store.LoadGrid("stock_state"); g != nil {
		t.Errorf("Short grid should not have been written, got %+v", g)
	}
}

func TestWrongKeyRaisesAlertAndReturnsNil(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "secret-one")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := store.SaveGrid("stock_state", validGrid()); err != nil {
		t.Fatalf("Failed to save grid: %v", err)
	}

	other, err := NewStore(dir, "secret-two")
	if err != nil {
		t.Fatalf("Failed to create second store: %v", err)
	}

	if g := other.LoadGrid("stock_state"); g != nil {
		t.Errorf("Expected nil for undecryptable snapshot, got %+v", g)
	}

	alert, pending := other.ReadFailureAlertPending()
	if !pending {
		t.Fatal("Expected a read-failure alert")
	}
	if alert.Event != "state_read_failure" {
		t.Errorf("Unexpected alert event %q", alert.Event)
	}
	if len(alert.FailedFiles) != 1 || alert.FailedFiles[0] != "stock_state.enc" {
		t.Errorf("Unexpected failed files %v", alert.FailedFiles)
	}
}

func TestCorruptBlobRaisesAlert(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "secret")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := store.SaveGrid("stock_state", validGrid()); err != nil {
		t.Fatalf("Failed to save grid: %v", err)
	}

	path := filepath.Join(dir, "stock_state.enc")
	if err := os.WriteFile(path, []byte("not ciphertext"), 0o600); err != nil {
		t.Fatalf("Failed to corrupt blob: %v", err)
	}

	if g := store.LoadGrid("stock_state"); g != nil {
		t.Errorf("Expected nil for corrupt snapshot, got %+v", g)
	}
	if _, pending := store.ReadFailureAlertPending(); !pending {
		t.Error("Expected a read-failure alert for corrupt blob")
	}
}

func TestClearReadFailureAlert(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "secret-one")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := store.SaveGrid("stock_state", validGrid()); err != nil {
		t.Fatalf("Failed to save grid: %v", err)
	}

	other, _ := NewStore(dir, "secret-two")
	other.LoadGrid("stock_state")
	if _, pending := other.ReadFailureAlertPending(); !pending {
		t.Fatal("Expected pending alert before clear")
	}

	other.ClearReadFailureAlert()
	if _, pending := other.ReadFailureAlertPending(); pending {
		t.Error("Expected no pending alert after clear")
	}
}

func TestSnapshotFileIsNotPlaintext(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "secret")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := store.SaveGrid("stock_state", validGrid()); err != nil {
		t.Fatalf("Failed to save grid: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "stock_state.enc"))
	if err != nil {
		t.Fatalf("Failed to read blob: %v", err)
	}
	for _, marker := range []string{"GIZZARD", "Weight(kg)", "312.25"} {
		if bytes.Contains(raw, []byte(marker)) {
			t.Errorf("Snapshot blob contains plaintext %q", marker)
		}
	}
}
