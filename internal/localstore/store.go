// Package localstore persists the per-device job list. It is the device's
// source of truth for "what has this device submitted" and survives restarts,
// but for cross-device state it is a cache: listing endpoints reconcile it
// against the remote job ledger.
package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"clipforge/internal/domain"
)

// Records per device are capped; the oldest fall off the end.
const maxRecordsPerDevice = 200

// Store keeps one JSON snapshot file per device id under basePath. Writes are
// last-writer-wins; there is no cross-process contention by design.
type Store struct {
	basePath string
	mu       sync.Mutex
}

// New initializes a Store rooted at basePath.
func New(basePath string) (*Store, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("localstore: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("localstore: ensure base path: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

// Save prepends the record to the device list, replacing any existing record
// with the same id.
func (s *Store) Save(deviceID string, record domain.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(deviceID)
	if err != nil {
		return err
	}
	next := make([]domain.JobRecord, 0, len(records)+1)
	next = append(next, record)
	for _, r := range records {
		if r.ID != record.ID {
			next = append(next, r)
		}
	}
	if len(next) > maxRecordsPerDevice {
		next = next[:maxRecordsPerDevice]
	}
	return s.save(deviceID, next)
}

// Update applies patch to the record with the given id. Missing records return
// domain.ErrNotFound.
func (s *Store) Update(deviceID, id string, patch func(*domain.JobRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(deviceID)
	if err != nil {
		return err
	}
	for i := range records {
		if records[i].ID == id {
			patch(&records[i])
			return s.save(deviceID, records)
		}
	}
	return domain.ErrNotFound
}

// Remove deletes the record from the device list. Removing an absent record is
// a no-op.
func (s *Store) Remove(deviceID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(deviceID)
	if err != nil {
		return err
	}
	next := records[:0]
	for _, r := range records {
		if r.ID != id {
			next = append(next, r)
		}
	}
	return s.save(deviceID, next)
}

// List returns the device's records, newest first.
func (s *Store) List(deviceID string) ([]domain.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(deviceID)
}

// ListPendingAll walks every device snapshot and returns pending records that
// already have a provider job id. Used by the recovery sweep after a restart.
func (s *Store) ListPendingAll() ([]domain.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("localstore: read base path: %w", err)
	}
	var pending []domain.JobRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		records, err := s.loadFile(filepath.Join(s.basePath, entry.Name()))
		if err != nil {
			continue
		}
		for _, r := range records {
			if r.State == domain.JobStatePending && r.ProviderJobID != "" {
				pending = append(pending, r)
			}
		}
	}
	return pending, nil
}

func (s *Store) load(deviceID string) ([]domain.JobRecord, error) {
	path, err := s.devicePath(deviceID)
	if err != nil {
		return nil, err
	}
	return s.loadFile(path)
}

func (s *Store) loadFile(path string) ([]domain.JobRecord, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("localstore: read snapshot: %w", err)
	}
	var records []domain.JobRecord
	if err := json.Unmarshal(data, &records); err != nil {
		// A corrupt snapshot is a cache miss, not a fatal condition.
		return nil, nil
	}
	return records, nil
}

func (s *Store) save(deviceID string, records []domain.JobRecord) error {
	path, err := s.devicePath(deviceID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("localstore: encode snapshot: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("localstore: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("localstore: replace snapshot: %w", err)
	}
	return nil
}

// devicePath sanitizes the device id into a flat filename so ids cannot
// escape the storage root.
func (s *Store) devicePath(deviceID string) (string, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return "", errors.New("localstore: device id is required")
	}
	var b strings.Builder
	for _, r := range deviceID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return filepath.Join(s.basePath, b.String()+".json"), nil
}
