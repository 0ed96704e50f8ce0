package store

import (
	"context"
	"sync"
	"time"

	"github.com/example/missing-persons/internal/domain/person"
	"github.com/google/uuid"
)

// MemoryStore is an in-process RemoteStore. Each subscriber gets its own
// delivery goroutine so callbacks run asynchronously to the writer.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]person.Record
	subs    map[SubscriptionID]*memorySubscriber

	// Now stamps DateReported and DateFound; defaults to time.Now
	Now func() time.Time
}

type memorySubscriber struct {
	handler Handler

	mu      sync.Mutex
	pending []ChangeEvent
	wake    chan struct{}
	quit    chan struct{}
	done    chan struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]person.Record),
		subs:    make(map[SubscriptionID]*memorySubscriber),
		Now:     time.Now,
	}
}

// Query returns every record, newest report first
func (ms *MemoryStore) Query(ctx context.Context) ([]person.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]person.Record, 0, len(ms.records))
	for _, rec := range ms.records {
		out = append(out, rec.Clone())
	}
	person.SortNewestFirst(out)
	return out, nil
}

// Insert stores a new active record and notifies subscribers
func (ms *MemoryStore) Insert(ctx context.Context, rec person.Record) (*person.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	created := rec.Clone()
	created.ID = uuid.New().String()
	created.Status = person.StatusActive
	created.DateReported = ms.Now()
	created.DateFound = nil

	ms.mu.Lock()
	ms.records[created.ID] = created
	ms.broadcast(Inserted(created))
	ms.mu.Unlock()

	return &created, nil
}

// UpdateStatus marks a record found; repeated calls are no-ops
func (ms *MemoryStore) UpdateStatus(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	current, ok := ms.records[id]
	if !ok {
		return ErrNotFound
	}
	updated, changed := current.MarkFound(ms.Now())
	if !changed {
		return nil
	}
	ms.records[id] = updated
	ms.broadcast(Updated(updated))
	return nil
}

// Delete removes a record. Not part of the client flow; used to exercise
// deleted events.
func (ms *MemoryStore) Delete(id string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.records[id]; !ok {
		return
	}
	delete(ms.records, id)
	ms.broadcast(Deleted(id))
}

// Subscribe registers a handler and starts its delivery goroutine
func (ms *MemoryStore) Subscribe(ctx context.Context, handler Handler) (SubscriptionID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sub := &memorySubscriber{
		handler: handler,
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	id := SubscriptionID(uuid.New().String())

	ms.mu.Lock()
	ms.subs[id] = sub
	ms.mu.Unlock()

	go sub.run()
	return id, nil
}

// Unsubscribe stops delivery and waits for any in-flight callback to return
func (ms *MemoryStore) Unsubscribe(id SubscriptionID) error {
	ms.mu.Lock()
	sub, ok := ms.subs[id]
	delete(ms.subs, id)
	ms.mu.Unlock()

	if !ok {
		return nil
	}
	close(sub.quit)
	<-sub.done
	return nil
}

// broadcast must be called with ms.mu held so per-record order is preserved
func (ms *MemoryStore) broadcast(ev ChangeEvent) {
	for _, sub := range ms.subs {
		sub.enqueue(ev)
	}
}

func (s *memorySubscriber) enqueue(ev ChangeEvent) {
	s.mu.Lock()
	s.pending = append(s.pending, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *memorySubscriber) run() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case <-s.wake:
		}

		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, ev := range batch {
			select {
			case <-s.quit:
				return
			default:
			}
			s.handler(ev)
		}
	}
}
