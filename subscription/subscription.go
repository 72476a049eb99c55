// Package subscription defines the subscriber registry: long-lived
// registrations binding an event type to a delivery target URL.
package subscription

import (
	"errors"

	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/internal/entity"
)

// Sentinel errors for subscription persistence.
var (
	// ErrNotFound is returned when a subscription cannot be found.
	ErrNotFound = errors.New("subscription: not found")

	// ErrDuplicate is returned when an active subscription already exists
	// for the same (event_type, target_url) pair.
	ErrDuplicate = errors.New("subscription: duplicate active subscription")
)

// Subscription binds an event type to a target URL. At most one active
// Subscription exists per (EventType, TargetURL) pair.
type Subscription struct {
	entity.Entity

	// ID is the unique TypeID for this subscription.
	ID id.ID `json:"id"`

	// EventType is the event type name this subscription listens for.
	EventType string `json:"event_type"`

	// TargetURL is the absolute HTTP(S) delivery URL.
	TargetURL string `json:"target_url"`

	// Secret is the HMAC signing secret. Generated server-side, returned
	// exactly once on create, immutable afterwards. Never serialized.
	Secret string `json:"-"`

	// Active indicates whether the subscription receives deliveries.
	Active bool `json:"is_active"`
}

// ListOpts configures filtering and pagination for subscription listing.
type ListOpts struct {
	Offset    int
	Limit     int
	EventType string
	Active    *bool
}
