package subscription

import (
	"context"

	"github.com/hookline/hookline/id"
)

// Store defines the persistence contract for subscriptions.
type Store interface {
	// CreateSubscription persists a subscription. Inserting an active row
	// that collides with an existing active (event_type, target_url) pair
	// returns ErrDuplicate; the uniqueness rule is enforced at insert time.
	CreateSubscription(ctx context.Context, sub *Subscription) error

	// GetSubscription returns a subscription by ID.
	GetSubscription(ctx context.Context, subID id.ID) (*Subscription, error)

	// UpdateSubscription persists the given subscription state, enforcing
	// the active-pair uniqueness rule.
	UpdateSubscription(ctx context.Context, sub *Subscription) error

	// DeleteSubscription removes a subscription. Hard delete.
	DeleteSubscription(ctx context.Context, subID id.ID) error

	// ListSubscriptions returns subscriptions matching the given options.
	ListSubscriptions(ctx context.Context, opts ListOpts) ([]*Subscription, error)

	// ListActiveSubscriptions returns every active subscription for the
	// given event type.
	ListActiveSubscriptions(ctx context.Context, eventType string) ([]*Subscription, error)
}
