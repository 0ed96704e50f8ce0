package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/missing-persons/internal/domain/person"
)

const (
	ChangeInserted ChangeKind = "inserted"
	ChangeUpdated  ChangeKind = "updated"
	ChangeDeleted  ChangeKind = "deleted"
)

var ErrNotFound = errors.New("record not found")

// ChangeKind tags a ChangeEvent
type ChangeKind string

// ChangeEvent is a single notification from the change feed. Record is set for
// inserted and updated, ID is always set.
type ChangeEvent struct {
	Kind   ChangeKind     `json:"kind"`
	ID     string         `json:"id"`
	Record *person.Record `json:"record,omitempty"`
}

// Handler receives change events from a subscription
type Handler func(ChangeEvent)

// SubscriptionID identifies a live subscription
type SubscriptionID string

func Inserted(rec person.Record) ChangeEvent {
	r := rec.Clone()
	return ChangeEvent{Kind: ChangeInserted, ID: rec.ID, Record: &r}
}

func Updated(rec person.Record) ChangeEvent {
	r := rec.Clone()
	return ChangeEvent{Kind: ChangeUpdated, ID: rec.ID, Record: &r}
}

func Deleted(id string) ChangeEvent {
	return ChangeEvent{Kind: ChangeDeleted, ID: id}
}

// DecodeChangeEvent parses and checks an event received off the wire
func DecodeChangeEvent(data []byte) (ChangeEvent, error) {
	var ev ChangeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ChangeEvent{}, err
	}
	switch ev.Kind {
	case ChangeInserted, ChangeUpdated:
		if ev.Record == nil {
			return ChangeEvent{}, fmt.Errorf("%s event without record", ev.Kind)
		}
		if ev.ID == "" {
			ev.ID = ev.Record.ID
		}
	case ChangeDeleted:
	default:
		return ChangeEvent{}, fmt.Errorf("unknown change kind %q", ev.Kind)
	}
	if ev.ID == "" {
		return ChangeEvent{}, errors.New("change event without id")
	}
	return ev, nil
}

// Error is a rejected remote write
type Error struct {
	Op  string
	ID  string
	Err error
}

func (e *Error) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("store %s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
