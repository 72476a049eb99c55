package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hookline/hookline/dlog"
	"github.com/hookline/hookline/event"
	"github.com/hookline/hookline/observability"
	"github.com/hookline/hookline/queue"
	"github.com/hookline/hookline/subscription"
)

// Deliverer handles delivery-topic jobs: one job is one attempt to post one
// event to one subscription, with the outcome recorded as a delivery log row.
type Deliverer struct {
	events  event.Store
	subs    subscription.Store
	logs    dlog.Store
	sender  *Sender
	metrics *observability.Metrics
	tracer  *observability.Tracer
	logger  *slog.Logger
}

// NewDeliverer creates a delivery handler.
func NewDeliverer(events event.Store, subs subscription.Store, logs dlog.Store, sender *Sender, metrics *observability.Metrics, tracer *observability.Tracer, logger *slog.Logger) *Deliverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deliverer{
		events:  events,
		subs:    subs,
		logs:    logs,
		sender:  sender,
		metrics: metrics,
		tracer:  tracer,
		logger:  logger,
	}
}

// Handle processes one delivery job dispatch.
//
// A missing event is unrecoverable and parks the job. A missing or inactive
// subscription drops the delivery silently: no log row, no retry. Everything
// else records a pending log row, attempts the POST, and finishes the row as
// success or failed.
func (d *Deliverer) Handle(ctx context.Context, job *queue.Job) error {
	var dj queue.DeliveryJob
	if err := json.Unmarshal(job.Payload, &dj); err != nil {
		return queue.Permanent(fmt.Errorf("decode delivery job: %w", err))
	}

	evt, err := d.events.GetEvent(ctx, dj.EventID)
	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			return queue.Permanent(fmt.Errorf("event %s: %w", dj.EventID, err))
		}
		return fmt.Errorf("load event: %w", err)
	}

	sub, err := d.subs.GetSubscription(ctx, dj.SubscriptionID)
	if err != nil {
		if errors.Is(err, subscription.ErrNotFound) {
			d.drop(ctx, "subscription_missing", dj)
			return nil
		}
		return fmt.Errorf("load subscription: %w", err)
	}
	if !sub.Active {
		d.drop(ctx, "subscription_inactive", dj)
		return nil
	}

	row, err := d.logs.CreateLog(ctx, evt.ID, sub.ID, job.Attempt)
	if err != nil {
		return fmt.Errorf("create delivery log: %w", err)
	}

	res := d.send(ctx, row.ID.String(), sub, evt, job.Attempt)

	if res.OK() {
		code := res.StatusCode
		if err := d.logs.FinishLog(ctx, row.ID, dlog.StatusSuccess, &code, res.Response, ""); err != nil {
			return fmt.Errorf("finish delivery log: %w", err)
		}
		if d.metrics != nil {
			d.metrics.RecordDelivery("success", float64(res.LatencyMs)/1000)
		}
		d.logger.InfoContext(ctx, "delivery succeeded",
			"event_id", evt.ID, "subscription_id", sub.ID,
			"attempt", job.Attempt, "status", res.StatusCode, "latency_ms", res.LatencyMs)
		return nil
	}

	errMsg := res.Error
	if errMsg == "" {
		errMsg = fmt.Sprintf("HTTP %d", res.StatusCode)
	}

	var code *int
	if res.StatusCode != 0 {
		c := res.StatusCode
		code = &c
	}
	if err := d.logs.FinishLog(ctx, row.ID, dlog.StatusFailed, code, res.Response, errMsg); err != nil {
		return fmt.Errorf("finish delivery log: %w", err)
	}
	if d.metrics != nil {
		d.metrics.RecordDelivery("failed", float64(res.LatencyMs)/1000)
	}
	d.logger.WarnContext(ctx, "delivery failed",
		"event_id", evt.ID, "subscription_id", sub.ID,
		"attempt", job.Attempt, "max_attempts", job.MaxAttempts, "error", errMsg)

	return errors.New(errMsg)
}

func (d *Deliverer) send(ctx context.Context, logID string, sub *subscription.Subscription, evt *event.Event, attempt int) Result {
	if d.tracer == nil {
		return d.sender.Send(ctx, sub, evt)
	}

	spanCtx, span := d.tracer.StartDeliverySpan(ctx, logID, evt.ID.String(), sub.ID.String(), attempt)
	res := d.sender.Send(spanCtx, sub, evt)
	d.tracer.EndDeliverySpan(span, res.StatusCode, res.LatencyMs, res.Error)
	return res
}

func (d *Deliverer) drop(ctx context.Context, reason string, dj queue.DeliveryJob) {
	if d.metrics != nil {
		d.metrics.RecordDrop(reason)
	}
	d.logger.InfoContext(ctx, "delivery dropped",
		"reason", reason, "event_id", dj.EventID, "subscription_id", dj.SubscriptionID)
}
