package storage

import (
	"context"
	"sync"
	"time"

	"github.com/pressograph/prefsync"
)

// MemoryStorage implements prefsync.Store using an in-memory map.
// This is useful for testing or single-process deployments where
// persistence is not required.
type MemoryStorage struct {
	mu      sync.RWMutex
	records map[string]map[string]*prefsync.Record // userID -> kind -> Record
}

// NewMemoryStorage creates a new instance of MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records: make(map[string]map[string]*prefsync.Record),
	}
}

// Get returns a copy of the record for userID and kind.
func (s *MemoryStorage) Get(_ context.Context, userID, kind string) (*prefsync.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userID][kind]
	if !ok {
		return nil, prefsync.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// Upsert stores a copy of rec. A zero UpdatedAt is set to the current time.
func (s *MemoryStorage) Upsert(_ context.Context, rec *prefsync.Record) error {
	if err := validRecord(rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.UserID]; !ok {
		s.records[rec.UserID] = make(map[string]*prefsync.Record)
	}
	cp := *rec
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	s.records[rec.UserID][rec.Kind] = &cp
	return nil
}

// Delete removes the record for userID and kind.
func (s *MemoryStorage) Delete(_ context.Context, userID, kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	userRecords, ok := s.records[userID]
	if !ok {
		return prefsync.ErrNotFound
	}
	if _, ok := userRecords[kind]; !ok {
		return prefsync.ErrNotFound
	}
	delete(userRecords, kind)
	if len(userRecords) == 0 {
		delete(s.records, userID)
	}
	return nil
}

// GetAll returns copies of every record for userID, keyed by kind.
func (s *MemoryStorage) GetAll(_ context.Context, userID string) (map[string]*prefsync.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*prefsync.Record, len(s.records[userID]))
	for kind, rec := range s.records[userID] {
		cp := *rec
		out[kind] = &cp
	}
	return out, nil
}

// Close is a no-op for MemoryStorage.
func (s *MemoryStorage) Close() error {
	return nil
}

// Len returns the number of stored records across all users.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, kinds := range s.records {
		n += len(kinds)
	}
	return n
}
