package dlog

import (
	"context"

	"github.com/hookline/hookline/id"
)

// Store defines the persistence contract for delivery logs. Row creation is
// non-upserting: every attempt produces its own row.
type Store interface {
	// CreateLog inserts a new pending row for the given attempt.
	CreateLog(ctx context.Context, eventID, subscriptionID id.ID, attempt int) (*Log, error)

	// FinishLog transitions a pending row to success or failed, recording
	// the outcome. Returns ErrIllegalTransition when the row is already
	// terminal.
	FinishLog(ctx context.Context, logID id.ID, status Status, responseCode *int, responseBody, errorMessage string) error

	// GetLog returns a log row by ID.
	GetLog(ctx context.Context, logID id.ID) (*Log, error)

	// ListLogs returns log rows matching the given options, attempted_at
	// descending.
	ListLogs(ctx context.Context, opts ListOpts) ([]*Log, error)

	// ListLogsByEvent returns every log row for an event, attempted_at
	// descending.
	ListLogsByEvent(ctx context.Context, eventID id.ID) ([]*Log, error)
}
