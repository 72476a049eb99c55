// Package queue defines the durable job queue contract the relay pipeline
// runs on: two named topics (fanout and delivery), at-least-once dispatch,
// a per-job retry budget with exponential backoff, and stall reclamation.
//
// The queue owns retry state. A handler that returns an error signals a
// retryable failure; the queue reschedules the job per the backoff policy
// until the attempt budget is exhausted, then parks it in the topic's failed
// set. A handler that returns a Permanent error parks the job immediately.
package queue

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hookline/hookline/id"
)

// ErrClosed is returned by enqueue operations after Close.
var ErrClosed = errors.New("queue: closed")

// Topic names.
const (
	TopicFanout   = "fanout"
	TopicDelivery = "delivery"
)

// FanoutJob expands one accepted event into per-subscriber delivery jobs.
type FanoutJob struct {
	EventID   id.ID  `json:"event_id"`
	EventType string `json:"event_type"`
}

// DeliveryJob is one delivery of one event to one subscription.
type DeliveryJob struct {
	EventID        id.ID `json:"event_id"`
	SubscriptionID id.ID `json:"subscription_id"`
}

// Job is a dequeued unit of work handed to a Handler.
type Job struct {
	// ID is the queue-owned job identity.
	ID id.ID

	// Topic names the topic the job was drawn from.
	Topic string

	// Payload is the opaque job payload (FanoutJob or DeliveryJob JSON).
	Payload json.RawMessage

	// Attempt is the 1-based attempt number for this dispatch.
	Attempt int

	// MaxAttempts is the job's total attempt budget, including the first.
	MaxAttempts int
}

// Handler processes one job dispatch. A nil return completes the job; an
// error return schedules a retry (or parks the job when the budget is
// exhausted or the error is Permanent).
type Handler func(ctx context.Context, job *Job) error

// Queue is the durable job queue contract.
type Queue interface {
	// EnqueueFanout adds a fan-out job. Fan-out jobs run with a budget of
	// one attempt; redelivery only happens through stall reclamation.
	EnqueueFanout(ctx context.Context, job FanoutJob) error

	// EnqueueDelivery adds a delivery job with the configured retry budget
	// and backoff policy.
	EnqueueDelivery(ctx context.Context, job DeliveryJob) error

	// Subscribe registers the handler for a topic. Must be called before
	// Start; one handler per topic.
	Subscribe(topic string, h Handler)

	// Configure replaces the queue's tuning parameters (retry budget,
	// backoff, concurrency, poll cadence). The relay applies its derived
	// queue configuration through this at wire-up. Must be called before
	// Start.
	Configure(cfg Config)

	// Start begins dispatching jobs to subscribed handlers.
	Start(ctx context.Context)

	// Stop quiesces workers: in-flight handlers finish, no new dispatches.
	Stop(ctx context.Context)

	// Depth returns the number of jobs waiting or scheduled on a topic.
	Depth(ctx context.Context, topic string) (int64, error)

	// FailedCount returns the number of permanently failed jobs on a topic.
	FailedCount(ctx context.Context, topic string) (int64, error)

	// Ping checks broker connectivity.
	Ping(ctx context.Context) error

	// Close releases the broker connection.
	Close() error
}

// permanentError marks a job failure that has no retry value.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the queue parks the job without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err carries the no-retry marker.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
