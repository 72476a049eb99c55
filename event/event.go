// Package event defines the immutable Event entity and its persistence contract.
package event

import (
	"encoding/json"
	"errors"
	"regexp"
	"time"

	"github.com/hookline/hookline/id"
)

// Store sentinels.
var (
	ErrNotFound                = errors.New("event: not found")
	ErrDuplicateIdempotencyKey = errors.New("event: duplicate idempotency key")
)

// MaxPayloadBytes is the maximum serialized payload size accepted at ingestion.
const MaxPayloadBytes = 1 << 20 // 1 MiB

// typeRe is the event type name grammar.
var typeRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidType reports whether s is a well-formed event type name.
func ValidType(s string) bool {
	return s != "" && typeRe.MatchString(s)
}

// Event represents an immutable record of something a producer reported.
// An Event is never mutated after creation.
type Event struct {
	// ID is the unique TypeID for this event.
	ID id.ID `json:"id"`

	// IdempotencyKey is the producer-supplied key. Globally unique.
	IdempotencyKey string `json:"idempotency_key"`

	// Type is the dot-separated event type name (e.g. "user.created").
	Type string `json:"event_type"`

	// Payload is the producer-supplied JSON document.
	Payload json.RawMessage `json:"payload"`

	// ReceivedAt is the server clock at acceptance.
	ReceivedAt time.Time `json:"received_at"`
}

// ListOpts configures filtering and pagination for event listing.
type ListOpts struct {
	Offset int
	Limit  int
	Type   string
	From   *time.Time
	To     *time.Time
}
