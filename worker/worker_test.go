package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hookline/hookline/dlog"
	"github.com/hookline/hookline/event"
	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/internal/entity"
	"github.com/hookline/hookline/queue"
	"github.com/hookline/hookline/subscription"
)

// Shared in-memory fakes for the handler tests.

type fakeEvents struct {
	mu   sync.Mutex
	evts map[string]*event.Event
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{evts: make(map[string]*event.Event)}
}

func (f *fakeEvents) add(evt *event.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evts[evt.ID.String()] = evt
}

func (f *fakeEvents) CreateEvent(_ context.Context, evt *event.Event) error {
	f.add(evt)
	return nil
}

func (f *fakeEvents) GetEvent(_ context.Context, evtID id.ID) (*event.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	evt, ok := f.evts[evtID.String()]
	if !ok {
		return nil, event.ErrNotFound
	}
	return evt, nil
}

func (f *fakeEvents) GetEventByIdempotencyKey(_ context.Context, key string) (*event.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, evt := range f.evts {
		if evt.IdempotencyKey == key {
			return evt, nil
		}
	}
	return nil, event.ErrNotFound
}

func (f *fakeEvents) ListEvents(context.Context, event.ListOpts) ([]*event.Event, error) {
	return nil, nil
}

type fakeSubs struct {
	mu   sync.Mutex
	subs map[string]*subscription.Subscription
}

func newFakeSubs() *fakeSubs {
	return &fakeSubs{subs: make(map[string]*subscription.Subscription)}
}

func (f *fakeSubs) add(sub *subscription.Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[sub.ID.String()] = sub
}

func (f *fakeSubs) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	f.add(sub)
	return nil
}

func (f *fakeSubs) GetSubscription(_ context.Context, subID id.ID) (*subscription.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[subID.String()]
	if !ok {
		return nil, subscription.ErrNotFound
	}
	return sub, nil
}

func (f *fakeSubs) UpdateSubscription(_ context.Context, sub *subscription.Subscription) error {
	f.add(sub)
	return nil
}

func (f *fakeSubs) DeleteSubscription(_ context.Context, subID id.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, subID.String())
	return nil
}

func (f *fakeSubs) ListSubscriptions(context.Context, subscription.ListOpts) ([]*subscription.Subscription, error) {
	return nil, nil
}

func (f *fakeSubs) ListActiveSubscriptions(_ context.Context, eventType string) ([]*subscription.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*subscription.Subscription
	for _, sub := range f.subs {
		if sub.Active && sub.EventType == eventType {
			out = append(out, sub)
		}
	}
	return out, nil
}

type fakeLogs struct {
	mu   sync.Mutex
	rows []*dlog.Log
}

func newFakeLogs() *fakeLogs { return &fakeLogs{} }

func (f *fakeLogs) CreateLog(_ context.Context, eventID, subscriptionID id.ID, attempt int) (*dlog.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := &dlog.Log{
		Entity:         entity.New(),
		ID:             id.NewDeliveryLogID(),
		EventID:        eventID,
		SubscriptionID: subscriptionID,
		Status:         dlog.StatusPending,
		AttemptCount:   attempt,
		AttemptedAt:    time.Now(),
	}
	f.rows = append(f.rows, row)
	return row, nil
}

func (f *fakeLogs) FinishLog(_ context.Context, logID id.ID, status dlog.Status, responseCode *int, responseBody, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ID == logID {
			if row.Terminal() {
				return dlog.ErrIllegalTransition
			}
			row.Status = status
			row.ResponseStatusCode = responseCode
			row.ResponseBody = dlog.TruncateBody(responseBody)
			row.ErrorMessage = errorMessage
			return nil
		}
	}
	return dlog.ErrNotFound
}

func (f *fakeLogs) GetLog(_ context.Context, logID id.ID) (*dlog.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ID == logID {
			return row, nil
		}
	}
	return nil, dlog.ErrNotFound
}

func (f *fakeLogs) ListLogs(context.Context, dlog.ListOpts) ([]*dlog.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*dlog.Log(nil), f.rows...), nil
}

func (f *fakeLogs) ListLogsByEvent(_ context.Context, eventID id.ID) ([]*dlog.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*dlog.Log
	for _, row := range f.rows {
		if row.EventID == eventID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeLogs) all() []*dlog.Log {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*dlog.Log(nil), f.rows...)
}

// fakeQueue records delivery enqueues. Other queue methods are unused here.
type fakeQueue struct {
	queue.Queue
	mu   sync.Mutex
	jobs []queue.DeliveryJob
}

func (f *fakeQueue) EnqueueDelivery(_ context.Context, job queue.DeliveryJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeQueue) enqueued() []queue.DeliveryJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]queue.DeliveryJob(nil), f.jobs...)
}

func testEvent(eventType string) *event.Event {
	return &event.Event{
		ID:             id.NewEventID(),
		IdempotencyKey: "key-" + id.NewEventID().String(),
		Type:           eventType,
		Payload:        json.RawMessage(`{"order":123}`),
		ReceivedAt:     time.Now().UTC(),
	}
}

func testSubscription(eventType, target string, active bool) *subscription.Subscription {
	return &subscription.Subscription{
		Entity:    entity.New(),
		ID:        id.NewSubscriptionID(),
		EventType: eventType,
		TargetURL: target,
		Secret:    "whsec_0123456789abcdef",
		Active:    active,
	}
}

func deliveryJob(evt *event.Event, sub *subscription.Subscription, attempt, maxAttempts int) *queue.Job {
	payload, _ := json.Marshal(queue.DeliveryJob{EventID: evt.ID, SubscriptionID: sub.ID})
	return &queue.Job{
		ID:          id.NewJobID(),
		Topic:       queue.TopicDelivery,
		Payload:     payload,
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
	}
}
