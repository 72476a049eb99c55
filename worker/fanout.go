package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/hookline/hookline/event"
	"github.com/hookline/hookline/queue"
	"github.com/hookline/hookline/subscription"
)

// fanoutParallelism bounds concurrent delivery enqueues per fan-out job.
const fanoutParallelism = 8

// Fanout handles fanout-topic jobs: it expands one accepted event into one
// delivery job per active subscription of the event's type.
type Fanout struct {
	events event.Store
	subs   subscription.Store
	q      queue.Queue
	logger *slog.Logger
}

// NewFanout creates a fan-out handler.
func NewFanout(events event.Store, subs subscription.Store, q queue.Queue, logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{
		events: events,
		subs:   subs,
		q:      q,
		logger: logger,
	}
}

// Handle processes one fan-out job dispatch. An event with no active
// subscriptions completes with nothing enqueued.
func (f *Fanout) Handle(ctx context.Context, job *queue.Job) error {
	var fj queue.FanoutJob
	if err := json.Unmarshal(job.Payload, &fj); err != nil {
		return queue.Permanent(fmt.Errorf("decode fanout job: %w", err))
	}

	if _, err := f.events.GetEvent(ctx, fj.EventID); err != nil {
		if errors.Is(err, event.ErrNotFound) {
			return queue.Permanent(fmt.Errorf("event %s: %w", fj.EventID, err))
		}
		return fmt.Errorf("load event: %w", err)
	}

	subs, err := f.subs.ListActiveSubscriptions(ctx, fj.EventType)
	if err != nil {
		return fmt.Errorf("list active subscriptions: %w", err)
	}

	if len(subs) == 0 {
		f.logger.InfoContext(ctx, "no active subscriptions",
			"event_id", fj.EventID, "event_type", fj.EventType)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanoutParallelism)
	for _, sub := range subs {
		g.Go(func() error {
			return f.q.EnqueueDelivery(gctx, queue.DeliveryJob{
				EventID:        fj.EventID,
				SubscriptionID: sub.ID,
			})
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("enqueue deliveries: %w", err)
	}

	f.logger.InfoContext(ctx, "event fanned out",
		"event_id", fj.EventID, "event_type", fj.EventType, "deliveries", len(subs))
	return nil
}
