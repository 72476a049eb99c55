package hookline

import (
	"errors"

	"github.com/hookline/hookline/catalog"
	"github.com/hookline/hookline/dlog"
	"github.com/hookline/hookline/event"
	"github.com/hookline/hookline/subscription"
)

// Sentinel errors returned by relay operations. Not-found and duplicate
// sentinels alias the owning subsystem's sentinel so errors.Is matches
// whichever layer produced them.
var (
	// ErrNoStore is returned when a Service is created without a store.
	ErrNoStore = errors.New("hookline: store is required")

	// ErrNoQueue is returned when a Service is created without a queue.
	ErrNoQueue = errors.New("hookline: queue is required")

	// ErrMissingIdempotencyKey is returned when ingestion lacks the key.
	ErrMissingIdempotencyKey = errors.New("hookline: idempotency key is required")

	// ErrInvalidEventType is returned for a malformed event type name.
	ErrInvalidEventType = errors.New("hookline: invalid event type")

	// ErrInvalidPayload is returned when the payload is not a JSON object.
	ErrInvalidPayload = errors.New("hookline: payload must be a JSON object")

	// ErrPayloadTooLarge is returned when the payload exceeds the size cap.
	ErrPayloadTooLarge = errors.New("hookline: payload too large")

	// ErrPayloadValidationFailed is returned when the payload fails the
	// registered JSON Schema for its event type.
	ErrPayloadValidationFailed = errors.New("hookline: payload validation failed")

	// ErrRetryNotAllowed is returned when retrying a delivery log that is
	// not in the failed state.
	ErrRetryNotAllowed = errors.New("hookline: only failed deliveries can be retried")

	// ErrSubscriptionInactive is returned when retrying a delivery whose
	// subscription has been deactivated.
	ErrSubscriptionInactive = errors.New("hookline: subscription is inactive")

	ErrEventNotFound           = event.ErrNotFound
	ErrDuplicateIdempotencyKey = event.ErrDuplicateIdempotencyKey
	ErrSubscriptionNotFound    = subscription.ErrNotFound
	ErrDuplicateSubscription   = subscription.ErrDuplicate
	ErrInvalidTargetURL        = subscription.ErrInvalidTargetURL
	ErrDeliveryLogNotFound     = dlog.ErrNotFound
	ErrSchemaNotFound          = catalog.ErrSchemaNotFound
)
