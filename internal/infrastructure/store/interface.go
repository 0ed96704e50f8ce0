package store

import (
	"context"

	"github.com/example/missing-persons/internal/domain/person"
)

// Records defines the CRUD side of the remote store
type Records interface {
	// Query returns every record, newest report first
	Query(ctx context.Context) ([]person.Record, error)

	// Insert creates a record, assigning its ID and DateReported
	Insert(ctx context.Context, rec person.Record) (*person.Record, error)

	// UpdateStatus applies the active -> found transition. It succeeds without
	// change if the record is already found and returns ErrNotFound if absent.
	UpdateStatus(ctx context.Context, id string) error
}

// ChangeFeed defines the realtime side of the remote store
type ChangeFeed interface {
	// Subscribe registers handler for change events on the record collection
	Subscribe(ctx context.Context, handler Handler) (SubscriptionID, error)

	// Unsubscribe releases the subscription. No callback fires after it returns.
	Unsubscribe(id SubscriptionID) error
}

// RemoteStore is everything the roster synchronizer and creation flow consume
type RemoteStore interface {
	Records
	ChangeFeed
}

// Publisher forwards change events produced by a write to the change feed
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type composed struct {
	Records
	ChangeFeed
}

// Compose joins a record store with a separately delivered change feed
func Compose(records Records, feed ChangeFeed) RemoteStore {
	return composed{Records: records, ChangeFeed: feed}
}
