package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/example/missing-persons/internal/domain/person"
	"github.com/example/missing-persons/internal/infrastructure/store"
	"github.com/google/uuid"
)

// MockRemoteStore is a mock implementation of store.RemoteStore for testing.
// Events are only delivered when a test calls Emit.
type MockRemoteStore struct {
	mu       sync.RWMutex
	records  map[string]person.Record
	handlers map[store.SubscriptionID]store.Handler

	// For tracking calls in tests
	QueryCalls        int
	InsertCalls       []person.Record
	UpdateStatusCalls []string
	SubscribeCalls    int
	UnsubscribeCalls  []store.SubscriptionID

	QueryErr        error
	InsertErr       error
	UpdateStatusErr error
	SubscribeErr    error

	// UpdateStatusCallback runs instead of the default behavior when set
	UpdateStatusCallback func(ctx context.Context, id string) error

	Now func() time.Time
}

// NewMockRemoteStore creates a new MockRemoteStore
func NewMockRemoteStore() *MockRemoteStore {
	return &MockRemoteStore{
		records:  make(map[string]person.Record),
		handlers: make(map[store.SubscriptionID]store.Handler),
		Now:      time.Now,
	}
}

// Query returns the seeded records newest first
func (m *MockRemoteStore) Query(ctx context.Context) ([]person.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.QueryCalls++
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}

	out := make([]person.Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.Clone())
	}
	person.SortNewestFirst(out)
	return out, nil
}

// Insert records the call and stores the record
func (m *MockRemoteStore) Insert(ctx context.Context, rec person.Record) (*person.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.InsertCalls = append(m.InsertCalls, rec.Clone())
	if m.InsertErr != nil {
		return nil, m.InsertErr
	}

	created := rec.Clone()
	created.ID = uuid.New().String()
	created.Status = person.StatusActive
	created.DateReported = m.Now()
	m.records[created.ID] = created
	return &created, nil
}

// UpdateStatus records the call and applies the found transition
func (m *MockRemoteStore) UpdateStatus(ctx context.Context, id string) error {
	m.mu.Lock()
	m.UpdateStatusCalls = append(m.UpdateStatusCalls, id)
	callback := m.UpdateStatusCallback
	m.mu.Unlock()

	if callback != nil {
		return callback(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.UpdateStatusErr != nil {
		return m.UpdateStatusErr
	}
	rec, ok := m.records[id]
	if !ok {
		return store.ErrNotFound
	}
	if updated, changed := rec.MarkFound(m.Now()); changed {
		m.records[id] = updated
	}
	return nil
}

// Subscribe registers a handler that Emit will call
func (m *MockRemoteStore) Subscribe(ctx context.Context, handler store.Handler) (store.SubscriptionID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SubscribeCalls++
	if m.SubscribeErr != nil {
		return "", m.SubscribeErr
	}
	id := store.SubscriptionID(uuid.New().String())
	m.handlers[id] = handler
	return id, nil
}

// Unsubscribe removes the handler
func (m *MockRemoteStore) Unsubscribe(id store.SubscriptionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UnsubscribeCalls = append(m.UnsubscribeCalls, id)
	delete(m.handlers, id)
	return nil
}

// Emit delivers ev to every live subscription, synchronously
func (m *MockRemoteStore) Emit(ev store.ChangeEvent) {
	m.mu.RLock()
	handlers := make([]store.Handler, 0, len(m.handlers))
	for _, h := range m.handlers {
		handlers = append(handlers, h)
	}
	m.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// Subscribers returns the number of live subscriptions
func (m *MockRemoteStore) Subscribers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers)
}

// SetRecord seeds a record directly for testing
func (m *MockRemoteStore) SetRecord(rec person.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec.Clone()
}

// GetRecord reads a record directly for testing
func (m *MockRemoteStore) GetRecord(id string) (person.Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	return rec.Clone(), ok
}

// Records returns every stored record, newest first
func (m *MockRemoteStore) Records() []person.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]person.Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.Clone())
	}
	person.SortNewestFirst(out)
	return out
}

// Reset clears all data and recorded calls
func (m *MockRemoteStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]person.Record)
	m.handlers = make(map[store.SubscriptionID]store.Handler)
	m.QueryCalls = 0
	m.InsertCalls = nil
	m.UpdateStatusCalls = nil
	m.SubscribeCalls = 0
	m.UnsubscribeCalls = nil
	m.QueryErr = nil
	m.InsertErr = nil
	m.UpdateStatusErr = nil
	m.SubscribeErr = nil
	m.UpdateStatusCallback = nil
}
