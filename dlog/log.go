// Package dlog defines DeliveryLog rows: one row per delivery attempt
// against one (event, subscription) pair.
//
// A row is created in pending immediately before the outbound HTTP call and
// transitioned to success or failed when the call returns or errors. Terminal
// rows are never mutated; a later attempt appends a new row with a higher
// attempt count.
package dlog

import (
	"errors"
	"time"

	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/internal/entity"
)

// Sentinel errors for delivery log persistence.
var (
	// ErrNotFound is returned when a delivery log cannot be found.
	ErrNotFound = errors.New("dlog: delivery log not found")

	// ErrIllegalTransition is returned when finishing a log that is not pending.
	ErrIllegalTransition = errors.New("dlog: log is not pending")
)

// Status is the state of a single delivery attempt.
type Status string

const (
	// StatusPending indicates the attempt's HTTP call has not completed.
	StatusPending Status = "pending"

	// StatusSuccess indicates a 2xx response. Terminal.
	StatusSuccess Status = "success"

	// StatusFailed indicates a non-2xx response or transport error. Terminal.
	StatusFailed Status = "failed"
)

// MaxResponseBody caps the stored response body.
const MaxResponseBody = 1000

// Log is one delivery attempt's audit row.
type Log struct {
	entity.Entity

	// ID is the unique TypeID for this log row.
	ID id.ID `json:"id"`

	// EventID references the delivered event.
	EventID id.ID `json:"event_id"`

	// SubscriptionID references the target subscription. The row survives
	// subscription deletion.
	SubscriptionID id.ID `json:"subscription_id"`

	// Status is pending, success, or failed.
	Status Status `json:"status"`

	// AttemptCount is the 1-based attempt number supplied by the queue.
	AttemptCount int `json:"attempt_count"`

	// AttemptedAt is when the attempt started.
	AttemptedAt time.Time `json:"attempted_at"`

	// ResponseStatusCode is the HTTP status, when a response was received.
	ResponseStatusCode *int `json:"response_status_code,omitempty"`

	// ResponseBody is the response body, truncated to MaxResponseBody bytes.
	ResponseBody string `json:"response_body,omitempty"`

	// ErrorMessage describes the failure ("HTTP 500", transport error text).
	ErrorMessage string `json:"error_message,omitempty"`
}

// Terminal reports whether the row is in a terminal state.
func (l *Log) Terminal() bool {
	return l.Status == StatusSuccess || l.Status == StatusFailed
}

// TruncateBody caps a response body for storage.
func TruncateBody(body string) string {
	if len(body) > MaxResponseBody {
		return body[:MaxResponseBody]
	}
	return body
}

// ListOpts configures filtering and pagination for log listing. All filters
// are conjunctive; results are ordered by attempted_at descending.
type ListOpts struct {
	Offset         int
	Limit          int
	EventID        *id.ID
	SubscriptionID *id.ID
	Status         *Status
	EventType      string
	From           *time.Time
	To             *time.Time
}
