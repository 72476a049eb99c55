// Package store defines the composite Store interface for all relay
// persistence.
//
// Each subsystem defines its own store interface; the aggregate Store
// composes them all, so one backend satisfies every subsystem at once.
package store

import (
	"context"

	"github.com/hookline/hookline/catalog"
	"github.com/hookline/hookline/dlog"
	"github.com/hookline/hookline/event"
	"github.com/hookline/hookline/subscription"
)

// Store is the aggregate persistence interface.
type Store interface {
	event.Store
	subscription.Store
	dlog.Store
	catalog.Store

	// Stats returns aggregate counts for the admin stats endpoint.
	Stats(ctx context.Context) (*Stats, error)

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}

// Stats holds aggregate counts across the relay's tables.
type Stats struct {
	EventsTotal           int64 `json:"events_total"`
	SubscriptionsTotal    int64 `json:"subscriptions_total"`
	SubscriptionsActive   int64 `json:"subscriptions_active"`
	SubscriptionsInactive int64 `json:"subscriptions_inactive"`
	DeliveriesTotal       int64 `json:"deliveries_total"`
	DeliveriesSuccess     int64 `json:"deliveries_success"`
	DeliveriesFailed      int64 `json:"deliveries_failed"`
	DeliveriesPending     int64 `json:"deliveries_pending"`
}
