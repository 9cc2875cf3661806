// Package state persists snapshots between runs as authenticated-encrypted
// blobs, one file per logical key. Loads are maximally tolerant: a corrupt or
// unreadable blob is reported through a plaintext alert file and treated as
// "no previous state", so a transient decrypt failure cannot cascade into a
// flood of false-positive change alerts. Saves are the opposite: losing the
// ability to persist state silently would corrupt every future diff, so save
// failures propagate as DurabilityError.
package state

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"stock_monitor/internal/grid"
)

// minGridRows is the smallest grid worth persisting: anything shorter cannot
// carry the five-row header convention and would poison the next diff.
const minGridRows = 5

// alertFileName is the plaintext side-channel record written when a snapshot
// cannot be read back. It is for human follow-up, not application data.
const alertFileName = "state_read_failure.json"

// DurabilityError marks a failure to encrypt or write a snapshot. Callers
// must treat it as fatal for the run.
type DurabilityError struct {
	Key        string
	Underlying error
}

func (e *DurabilityError) Error() string {
	return fmt.Sprintf("failed to persist snapshot %q: %v", e.Key, e.Underlying)
}

func (e *DurabilityError) Unwrap() error {
	return e.Underlying
}

// ReadFailureAlert is the structured record written to the alert file.
type ReadFailureAlert struct {
	Timestamp      string   `json:"timestamp"`
	Event          string   `json:"event"`
	FailedFiles    []string `json:"failed_files"`
	ErrorMessage   string   `json:"error_message"`
	ActionRequired string   `json:"action_required"`
}

// Store reads and writes encrypted snapshot files under a single directory.
type Store struct {
	dir string
	key []byte
}

// NewStore derives a 256-bit AES key from the given secret and prepares the
// state directory. The secret comes from the environment; it never touches
// disk.
func NewStore(dir, secret string) (*Store, error) {
	if secret == "" {
		return nil, errors.New("state encryption secret is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	sum := sha256.Sum256([]byte(secret))
	return &Store{dir: dir, key: sum[:]}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".enc")
}

func (s *Store) encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *Store) decrypt(blob []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(blob) < gcm.NonceSize() {
		return nil, errors.New("blob shorter than nonce")
	}
	nonce, ciphertext := blob[:gcm.NonceSize()], blob[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// SaveJSON serializes, encrypts and writes a snapshot. Any failure is a
// DurabilityError.
func (s *Store) SaveJSON(key string, value any) error {
	plaintext, err := json.Marshal(value)
	if err != nil {
		return &DurabilityError{Key: key, Underlying: err}
	}
	blob, err := s.encrypt(plaintext)
	if err != nil {
		return &DurabilityError{Key: key, Underlying: err}
	}
	if err := os.WriteFile(s.path(key), blob, 0o600); err != nil {
		return &DurabilityError{Key: key, Underlying: err}
	}
	log.Debug().Str("key", key).Int("bytes", len(blob)).Msg("Snapshot saved")
	return nil
}

// LoadJSON decrypts and deserializes a snapshot into out. Returns false when
// there is no prior snapshot, including every failure mode: missing file,
// wrong key, corruption, bad JSON. Non-missing failures also raise the
// read-failure alert. Never returns an error to the caller.
func (s *Store) LoadJSON(key string, out any) bool {
	blob, err := os.ReadFile(s.path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			s.raiseReadFailureAlert(key, err)
		} else {
			log.Debug().Str("key", key).Msg("No previous snapshot")
		}
		return false
	}

	plaintext, err := s.decrypt(blob)
	if err != nil {
		s.raiseReadFailureAlert(key, err)
		return false
	}
	if err := json.Unmarshal(plaintext, out); err != nil {
		s.raiseReadFailureAlert(key, err)
		return false
	}
	log.Debug().Str("key", key).Msg("Snapshot loaded")
	return true
}

// SaveGrid persists a structural snapshot. Grids too short to parse are
// skipped with a log line rather than written, so a truncated fetch can
// never replace a valid baseline.
func (s *Store) SaveGrid(key string, g grid.RawGrid) error {
	if len(g) < minGridRows {
		log.Warn().
			Str("key", key).
			Int("rows", len(g)).
			Msg("Grid snapshot below minimum rows, skipping save")
		return nil
	}
	return s.SaveJSON(key, g)
}

// LoadGrid returns the previous structural snapshot, or nil when none exists
// or it cannot be read.
func (s *Store) LoadGrid(key string) grid.RawGrid {
	var g grid.RawGrid
	if !s.LoadJSON(key, &g) {
		return nil
	}
	if len(g) < minGridRows {
		log.Warn().
			Str("key", key).
			Int("rows", len(g)).
			Msg("Stored grid snapshot below minimum rows, treating as no previous state")
		return nil
	}
	return g
}

// SaveScalar persists a derived-metric snapshot. A nil value is legitimate:
// it records that the metric was uncomputable on the last run.
func (s *Store) SaveScalar(key string, value *float64) error {
	return s.SaveJSON(key, value)
}

// LoadScalar returns the previous scalar snapshot, or nil when none exists,
// it cannot be read, or the stored value itself was null.
func (s *Store) LoadScalar(key string) *float64 {
	var value *float64
	if !s.LoadJSON(key, &value) {
		return nil
	}
	return value
}

// raiseReadFailureAlert writes (or extends) the plaintext alert file. The
// file survives the run for an operator to find; it is cleared at the start
// of the next run that reads state cleanly.
func (s *Store) raiseReadFailureAlert(key string, cause error) {
	log.Error().
		Err(cause).
		Str("key", key).
		Msg("Failed to read snapshot, treating as no previous state")

	alertPath := filepath.Join(s.dir, alertFileName)
	alert := ReadFailureAlert{
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		Event:          "state_read_failure",
		ErrorMessage:   cause.Error(),
		ActionRequired: "Verify STATE_ENCRYPTION_KEY and inspect the listed snapshot files",
	}

	// Merge with an existing alert so one run with several bad files
	// produces a single record.
	var existing ReadFailureAlert
	if raw, err := os.ReadFile(alertPath); err == nil {
		if err := json.Unmarshal(raw, &existing); err == nil {
			alert.FailedFiles = existing.FailedFiles
		}
	}
	if !slices.Contains(alert.FailedFiles, key+".enc") {
		alert.FailedFiles = append(alert.FailedFiles, key+".enc")
	}

	raw, err := json.MarshalIndent(alert, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to serialize read-failure alert")
		return
	}
	if err := os.WriteFile(alertPath, raw, 0o600); err != nil {
		log.Error().Err(err).Msg("Failed to write read-failure alert file")
	}
}

// ReadFailureAlertPending reports whether an unresolved read-failure alert
// exists and returns it.
func (s *Store) ReadFailureAlertPending() (*ReadFailureAlert, bool) {
	raw, err := os.ReadFile(filepath.Join(s.dir, alertFileName))
	if err != nil {
		return nil, false
	}
	var alert ReadFailureAlert
	if err := json.Unmarshal(raw, &alert); err != nil {
		return nil, false
	}
	return &alert, true
}

// ClearReadFailureAlert removes the alert file. Called at the start of each
// run so a stale alert does not outlive the condition that caused it.
func (s *Store) ClearReadFailureAlert() {
	path := filepath.Join(s.dir, alertFileName)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to clear read-failure alert file")
	}
}

// Delete removes a snapshot file. Missing files are not an error.
func (s *Store) Delete(key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return &DurabilityError{Key: key, Underlying: err}
	}
	return nil
}
