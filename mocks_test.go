package prefsync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MockStore implements the Store interface for testing. Errors can be
// injected per operation and every call is counted.
type MockStore struct {
	mu   sync.Mutex
	data map[string]*Record

	getErr    error
	upsertErr error
	deleteErr error

	getCalls    int
	getAllCalls int
	upsertCalls int
	deleteCalls int
	closed      bool
}

func NewMockStore() *MockStore {
	return &MockStore{data: make(map[string]*Record)}
}

func storeKey(userID, kind string) string {
	return userID + "|" + kind
}

func (m *MockStore) Get(_ context.Context, userID, kind string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++

	if m.closed {
		return nil, ErrStorageUnavailable
	}
	if m.getErr != nil {
		return nil, m.getErr
	}
	rec, ok := m.data[storeKey(userID, kind)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MockStore) Upsert(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertCalls++

	if m.closed {
		return ErrStorageUnavailable
	}
	if m.upsertErr != nil {
		return m.upsertErr
	}
	cp := *rec
	m.data[storeKey(rec.UserID, rec.Kind)] = &cp
	return nil
}

func (m *MockStore) Delete(_ context.Context, userID, kind string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++

	if m.closed {
		return ErrStorageUnavailable
	}
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.data, storeKey(userID, kind))
	return nil
}

func (m *MockStore) GetAll(_ context.Context, userID string) (map[string]*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getAllCalls++

	if m.closed {
		return nil, ErrStorageUnavailable
	}
	if m.getErr != nil {
		return nil, m.getErr
	}
	out := make(map[string]*Record)
	for _, rec := range m.data {
		if rec.UserID == userID {
			cp := *rec
			out[rec.Kind] = &cp
		}
	}
	return out, nil
}

func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Put seeds a record without counting it as an Upsert.
func (m *MockStore) Put(userID, kind, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[storeKey(userID, kind)] = &Record{UserID: userID, Kind: kind, Value: value, UpdatedAt: time.Now()}
}

// Value returns the stored value and whether a record exists.
func (m *MockStore) Value(userID, kind string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.data[storeKey(userID, kind)]
	if !ok {
		return "", false
	}
	return rec.Value, true
}

func (m *MockStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

func (m *MockStore) Calls() (get, upsert, del int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getCalls, m.upsertCalls, m.deleteCalls
}

func (m *MockStore) GetAllCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getAllCalls
}

func (m *MockStore) FailGet(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
}

func (m *MockStore) FailUpsert(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertErr = err
}

func (m *MockStore) FailDelete(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErr = err
}

// mockCacheEntry holds a value and the TTL it was stored with.
type mockCacheEntry struct {
	value string
	ttl   time.Duration
}

// MockCache implements the Cache interface for testing.
type MockCache struct {
	mu   sync.Mutex
	data map[string]mockCacheEntry

	getErr error
	setErr error

	getCalls int
	setCalls int
	closed   bool
}

func NewMockCache() *MockCache {
	return &MockCache{data: make(map[string]mockCacheEntry)}
}

func (m *MockCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++

	if m.closed {
		return "", ErrCacheUnavailable
	}
	if m.getErr != nil {
		return "", m.getErr
	}
	entry, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return entry.value, nil
}

func (m *MockCache) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++

	if m.closed {
		return ErrCacheUnavailable
	}
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = mockCacheEntry{value: value, ttl: ttl}
	return nil
}

func (m *MockCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrCacheUnavailable
	}
	if _, ok := m.data[key]; !ok {
		return ErrNotFound
	}
	delete(m.data, key)
	return nil
}

func (m *MockCache) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockCache) Put(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = mockCacheEntry{value: value}
}

func (m *MockCache) Entry(key string) (mockCacheEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[key]
	return e, ok
}

func (m *MockCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

func (m *MockCache) Calls() (get, set int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getCalls, m.setCalls
}

func (m *MockCache) FailGet(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
}

func (m *MockCache) FailSet(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setErr = err
}

// MockNotifier records every Change. If OnNotify is set it runs first.
type MockNotifier struct {
	mu       sync.Mutex
	Changes  []Change
	OnNotify func(Change)
	Err      error
}

func (n *MockNotifier) Notify(_ context.Context, change Change) error {
	if n.OnNotify != nil {
		n.OnNotify(change)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Changes = append(n.Changes, change)
	return n.Err
}

func (n *MockNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Changes)
}

// MockLogger implements the Logger interface for testing.
type MockLogger struct {
	mu       sync.Mutex
	Messages []string
}

func (m *MockLogger) Debug(msg string, args ...any) { m.record("DEBUG", msg, args...) }
func (m *MockLogger) Info(msg string, args ...any)  { m.record("INFO", msg, args...) }
func (m *MockLogger) Warn(msg string, args ...any)  { m.record("WARN", msg, args...) }
func (m *MockLogger) Error(msg string, args ...any) { m.record("ERROR", msg, args...) }

// SetLevel records the attempt to set the log level for test verification.
func (m *MockLogger) SetLevel(level LogLevel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, fmt.Sprintf("SET_LEVEL: %v", level))
}

func (m *MockLogger) record(level, msg string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, formatMessage(level, msg, args...))
}

// Contains reports whether any recorded message contains substr.
func (m *MockLogger) Contains(substr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.Messages {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

func formatMessage(level, msg string, args ...any) string {
	if len(args) > 0 {
		return fmt.Sprintf("%s: %s %v", level, msg, args)
	}
	return fmt.Sprintf("%s: %s", level, msg)
}
