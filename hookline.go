package hookline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hookline/hookline/catalog"
	"github.com/hookline/hookline/dlog"
	"github.com/hookline/hookline/event"
	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/queue"
	"github.com/hookline/hookline/store"
	"github.com/hookline/hookline/subscription"
	"github.com/hookline/hookline/worker"
)

// wireServices initializes the internal services after options have been applied.
func (s *Service) wireServices() {
	s.queue.Configure(s.config.QueueConfig())

	s.catalog = catalog.NewCatalog(s.store, catalog.Config{
		CacheTTL: s.config.SchemaCacheTTL,
	}, s.logger)

	s.subSvc = subscription.NewService(s.store, event.ValidType, s.logger)

	sender := worker.NewSender(s.config.RequestTimeout)
	s.deliverer = worker.NewDeliverer(s.store, s.store, s.store, sender, s.metrics, s.tracer, s.logger)
	s.fanout = worker.NewFanout(s.store, s.store, s.queue, s.logger)

	s.queue.Subscribe(queue.TopicFanout, s.fanout.Handle)
	s.queue.Subscribe(queue.TopicDelivery, s.deliverer.Handle)
}

// Start begins queue dispatch and, when metrics are configured, queue gauge
// sampling.
func (s *Service) Start(ctx context.Context) {
	s.queue.Start(ctx)

	if s.metrics != nil {
		ctx, s.samplerCancel = context.WithCancel(ctx)
		s.samplerDone = make(chan struct{})
		go s.sampleQueueGauges(ctx)
	}
}

// Stop quiesces the queue workers, waiting for in-flight deliveries.
func (s *Service) Stop(ctx context.Context) {
	if s.samplerCancel != nil {
		s.samplerCancel()
		<-s.samplerDone
	}
	s.queue.Stop(ctx)
}

// sampleQueueGauges records per-topic depth and failed-job gauges at the
// queue's poll cadence.
func (s *Service) sampleQueueGauges(ctx context.Context) {
	defer close(s.samplerDone)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, topic := range []string{queue.TopicFanout, queue.TopicDelivery} {
				depth, err := s.queue.Depth(ctx, topic)
				if err != nil {
					continue
				}
				s.metrics.RecordQueueDepth(topic, depth)

				failed, err := s.queue.FailedCount(ctx, topic)
				if err != nil {
					continue
				}
				s.metrics.RecordFailedJobs(topic, failed)
			}
		}
	}
}

// IngestInput is one producer event submission.
type IngestInput struct {
	IdempotencyKey string
	EventType      string
	Payload        json.RawMessage
}

// Ingest validates and persists a producer event, then enqueues its fan-out.
// The returned bool reports whether the idempotency key had been seen before;
// a duplicate returns the original event untouched.
//
// Acceptance and fan-out are decoupled: once the event row is committed the
// ingest succeeds even if the enqueue fails, and the stranded event stays
// visible through its empty delivery trail.
func (s *Service) Ingest(ctx context.Context, in IngestInput) (*event.Event, bool, error) {
	if in.IdempotencyKey == "" {
		return nil, false, ErrMissingIdempotencyKey
	}
	if !event.ValidType(in.EventType) {
		return nil, false, ErrInvalidEventType
	}
	if len(in.Payload) > event.MaxPayloadBytes {
		return nil, false, ErrPayloadTooLarge
	}
	if !isJSONObject(in.Payload) {
		return nil, false, ErrInvalidPayload
	}

	if err := s.catalog.Validate(ctx, in.EventType, in.Payload); err != nil {
		if s.metrics != nil {
			s.metrics.EventsRejectedTotal.Inc()
		}
		return nil, false, fmt.Errorf("%w: %s", ErrPayloadValidationFailed, err.Error())
	}

	evt := &event.Event{
		ID:             id.NewEventID(),
		IdempotencyKey: in.IdempotencyKey,
		Type:           in.EventType,
		Payload:        in.Payload,
		ReceivedAt:     time.Now().UTC(),
	}

	if err := s.store.CreateEvent(ctx, evt); err != nil {
		if errors.Is(err, event.ErrDuplicateIdempotencyKey) {
			existing, getErr := s.store.GetEventByIdempotencyKey(ctx, in.IdempotencyKey)
			if getErr != nil {
				return nil, false, fmt.Errorf("hookline: load duplicate event: %w", getErr)
			}
			if s.metrics != nil {
				s.metrics.EventsDuplicateTotal.Inc()
			}
			return existing, true, nil
		}
		return nil, false, fmt.Errorf("hookline: persist event: %w", err)
	}

	if s.metrics != nil {
		s.metrics.EventsReceivedTotal.Inc()
	}

	if err := s.queue.EnqueueFanout(ctx, queue.FanoutJob{EventID: evt.ID, EventType: evt.Type}); err != nil {
		s.logger.WarnContext(ctx, "fanout enqueue failed, event accepted without deliveries",
			"event_id", evt.ID, "error", err)
	}

	s.logger.DebugContext(ctx, "event ingested",
		"event_id", evt.ID, "event_type", evt.Type)

	return evt, false, nil
}

// RetryDelivery re-enqueues a delivery whose last attempt failed. The retry
// starts a fresh attempt trail for the same (event, subscription) pair.
func (s *Service) RetryDelivery(ctx context.Context, logID id.ID) error {
	row, err := s.store.GetLog(ctx, logID)
	if err != nil {
		return err
	}
	if row.Status != dlog.StatusFailed {
		return ErrRetryNotAllowed
	}

	if _, err := s.store.GetEvent(ctx, row.EventID); err != nil {
		return err
	}
	sub, err := s.store.GetSubscription(ctx, row.SubscriptionID)
	if err != nil {
		return err
	}
	if !sub.Active {
		return ErrSubscriptionInactive
	}

	if err := s.queue.EnqueueDelivery(ctx, queue.DeliveryJob{
		EventID:        row.EventID,
		SubscriptionID: row.SubscriptionID,
	}); err != nil {
		return fmt.Errorf("hookline: enqueue retry: %w", err)
	}

	s.logger.InfoContext(ctx, "delivery retry enqueued",
		"delivery_log_id", logID, "event_id", row.EventID, "subscription_id", row.SubscriptionID)
	return nil
}

// Health checks store and queue connectivity.
func (s *Service) Health(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("hookline: store: %w", err)
	}
	if err := s.queue.Ping(ctx); err != nil {
		return fmt.Errorf("hookline: queue: %w", err)
	}
	return nil
}

// Subscriptions returns the subscription management service.
func (s *Service) Subscriptions() *subscription.Service {
	return s.subSvc
}

// Catalog returns the payload schema registry.
func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

// Store returns the underlying store.
func (s *Service) Store() store.Store {
	return s.store
}

// Queue returns the underlying job queue.
func (s *Service) Queue() queue.Queue {
	return s.queue
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.config
}

// isJSONObject reports whether raw is a syntactically valid JSON object.
func isJSONObject(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	return json.Valid(trimmed)
}
