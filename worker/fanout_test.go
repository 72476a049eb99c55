package worker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/queue"
)

func fanoutJob(evt *queue.FanoutJob) *queue.Job {
	payload, _ := json.Marshal(evt)
	return &queue.Job{
		ID:          id.NewJobID(),
		Topic:       queue.TopicFanout,
		Payload:     payload,
		Attempt:     1,
		MaxAttempts: 1,
	}
}

func TestFanoutEnqueuesPerActiveSubscription(t *testing.T) {
	events, subs := newFakeEvents(), newFakeSubs()
	q := &fakeQueue{}

	evt := testEvent("order.created")
	events.add(evt)

	active1 := testSubscription("order.created", "http://a.example.com", true)
	active2 := testSubscription("order.created", "http://b.example.com", true)
	inactive := testSubscription("order.created", "http://c.example.com", false)
	otherType := testSubscription("user.created", "http://d.example.com", true)
	subs.add(active1)
	subs.add(active2)
	subs.add(inactive)
	subs.add(otherType)

	f := NewFanout(events, subs, q, nil)
	err := f.Handle(context.Background(), fanoutJob(&queue.FanoutJob{EventID: evt.ID, EventType: "order.created"}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	jobs := q.enqueued()
	if len(jobs) != 2 {
		t.Fatalf("enqueued = %d, want 2", len(jobs))
	}
	seen := map[string]bool{}
	for _, job := range jobs {
		if job.EventID != evt.ID {
			t.Errorf("job event = %s, want %s", job.EventID, evt.ID)
		}
		seen[job.SubscriptionID.String()] = true
	}
	if !seen[active1.ID.String()] || !seen[active2.ID.String()] {
		t.Errorf("enqueued subscriptions = %v", seen)
	}
}

func TestFanoutNoActiveSubscriptions(t *testing.T) {
	events, subs := newFakeEvents(), newFakeSubs()
	q := &fakeQueue{}

	evt := testEvent("order.created")
	events.add(evt)

	f := NewFanout(events, subs, q, nil)
	err := f.Handle(context.Background(), fanoutJob(&queue.FanoutJob{EventID: evt.ID, EventType: "order.created"}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if jobs := q.enqueued(); len(jobs) != 0 {
		t.Errorf("enqueued = %d, want 0", len(jobs))
	}
}

func TestFanoutMissingEventIsPermanent(t *testing.T) {
	events, subs := newFakeEvents(), newFakeSubs()
	q := &fakeQueue{}

	f := NewFanout(events, subs, q, nil)
	err := f.Handle(context.Background(), fanoutJob(&queue.FanoutJob{EventID: id.NewEventID(), EventType: "order.created"}))
	if err == nil {
		t.Fatal("expected error for missing event")
	}
	if !queue.IsPermanent(err) {
		t.Error("missing event must be a permanent failure")
	}
}
