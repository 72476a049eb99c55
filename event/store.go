package event

import (
	"context"

	"github.com/hookline/hookline/id"
)

// Store defines the persistence contract for events.
type Store interface {
	// CreateEvent persists an event. The unique constraint on the
	// idempotency key is the serialization point: a duplicate key returns
	// ErrDuplicateIdempotencyKey and leaves the existing row untouched.
	CreateEvent(ctx context.Context, evt *Event) error

	// GetEvent returns an event by ID.
	GetEvent(ctx context.Context, evtID id.ID) (*Event, error)

	// GetEventByIdempotencyKey returns the event holding the given key.
	GetEventByIdempotencyKey(ctx context.Context, key string) (*Event, error)

	// ListEvents returns events, optionally filtered by type or time range,
	// newest first.
	ListEvents(ctx context.Context, opts ListOpts) ([]*Event, error)
}
