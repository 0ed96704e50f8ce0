package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/example/missing-persons/internal/domain/person"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (r *eventRecorder) handle(ev ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) snapshot() []ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ChangeEvent(nil), r.events...)
}

func newClockedMemoryStore(start time.Time) *MemoryStore {
	ms := NewMemoryStore()
	now := start
	ms.Now = func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
	return ms
}

func testRecord(name string) person.Record {
	return person.Record{
		Name:        name,
		Age:         30,
		LastSeen:    "park",
		Description: "blue jacket",
		Contact:     "555-0100",
		ImageURL:    "https://media.example/" + name + ".jpg",
	}
}

// ============================================
// Records Tests
// ============================================

func TestMemoryStore_Insert_AssignsIDAndDate(t *testing.T) {
	ms := newClockedMemoryStore(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	created, err := ms.Insert(ctx, testRecord("anna"))

	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, person.StatusActive, created.Status)
	assert.False(t, created.DateReported.IsZero())
	assert.Nil(t, created.DateFound)
}

func TestMemoryStore_Query_NewestFirst(t *testing.T) {
	ms := newClockedMemoryStore(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	older, _ := ms.Insert(ctx, testRecord("older"))
	newer, _ := ms.Insert(ctx, testRecord("newer"))

	records, err := ms.Query(ctx)

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, newer.ID, records[0].ID)
	assert.Equal(t, older.ID, records[1].ID)
}

func TestMemoryStore_UpdateStatus(t *testing.T) {
	ms := newClockedMemoryStore(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()
	created, _ := ms.Insert(ctx, testRecord("anna"))

	require.NoError(t, ms.UpdateStatus(ctx, created.ID))
	records, _ := ms.Query(ctx)
	first := records[0]
	require.NotNil(t, first.DateFound)
	assert.Equal(t, person.StatusFound, first.Status)

	// idempotent: second call keeps the first found date
	require.NoError(t, ms.UpdateStatus(ctx, created.ID))
	records, _ = ms.Query(ctx)
	assert.True(t, records[0].DateFound.Equal(*first.DateFound))
}

func TestMemoryStore_UpdateStatus_NotFound(t *testing.T) {
	ms := NewMemoryStore()

	err := ms.UpdateStatus(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrNotFound)
}

// ============================================
// ChangeFeed Tests
// ============================================

func TestMemoryStore_Subscribe_DeliversInOrder(t *testing.T) {
	ms := newClockedMemoryStore(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()
	rec := &eventRecorder{}

	subID, err := ms.Subscribe(ctx, rec.handle)
	require.NoError(t, err)
	defer ms.Unsubscribe(subID)

	created, _ := ms.Insert(ctx, testRecord("anna"))
	require.NoError(t, ms.UpdateStatus(ctx, created.ID))
	ms.Delete(created.ID)

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 3 }, time.Second, 5*time.Millisecond)
	events := rec.snapshot()
	assert.Equal(t, ChangeInserted, events[0].Kind)
	assert.Equal(t, ChangeUpdated, events[1].Kind)
	assert.Equal(t, person.StatusFound, events[1].Record.Status)
	assert.Equal(t, ChangeDeleted, events[2].Kind)
	assert.Equal(t, created.ID, events[2].ID)
}

func TestMemoryStore_Unsubscribe_StopsDelivery(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	rec := &eventRecorder{}

	subID, err := ms.Subscribe(ctx, rec.handle)
	require.NoError(t, err)
	require.NoError(t, ms.Unsubscribe(subID))

	_, _ = ms.Insert(ctx, testRecord("anna"))
	time.Sleep(20 * time.Millisecond)

	assert.Empty(t, rec.snapshot())
}

func TestMemoryStore_Unsubscribe_Unknown(t *testing.T) {
	ms := NewMemoryStore()

	assert.NoError(t, ms.Unsubscribe("nope"))
}

func TestCompose(t *testing.T) {
	records := NewMemoryStore()
	feed := NewMemoryStore()

	rs := Compose(records, feed)
	_, err := rs.Insert(context.Background(), testRecord("anna"))
	require.NoError(t, err)

	all, _ := records.Query(context.Background())
	assert.Len(t, all, 1)
}
