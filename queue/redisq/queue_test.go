package redisq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/queue"
)

func testQueue(t *testing.T) *Queue {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return New(client, queue.Config{
		DeliveryAttempts: 3,
		BackoffBase:      time.Millisecond,
		PollInterval:     5 * time.Millisecond,
		StallAfter:       time.Minute,
	}, nil)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

type recorder struct {
	mu       sync.Mutex
	attempts []int
	fail     func(attempt int) error
}

func (r *recorder) handle(_ context.Context, job *queue.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, job.Attempt)
	if r.fail == nil {
		return nil
	}
	return r.fail(job.Attempt)
}

func (r *recorder) seen() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.attempts...)
}

func TestEnqueueIsVisibleInDepth(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	for range 2 {
		if err := q.EnqueueDelivery(ctx, queue.DeliveryJob{EventID: id.NewEventID(), SubscriptionID: id.NewSubscriptionID()}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	n, err := q.Depth(ctx, queue.TopicDelivery)
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if n != 2 {
		t.Errorf("depth = %d, want 2", n)
	}
}

func TestDeliverySucceeds(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	rec := &recorder{}
	q.Subscribe(queue.TopicDelivery, rec.handle)

	if err := q.EnqueueDelivery(ctx, queue.DeliveryJob{EventID: id.NewEventID(), SubscriptionID: id.NewSubscriptionID()}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	q.Start(ctx)
	defer q.Stop(ctx)

	waitFor(t, func() bool { return len(rec.seen()) == 1 })
	waitFor(t, func() bool {
		n, _ := q.Depth(ctx, queue.TopicDelivery)
		return n == 0
	})
	if n, _ := q.FailedCount(ctx, queue.TopicDelivery); n != 0 {
		t.Errorf("failed count = %d, want 0", n)
	}
}

func TestDeliveryRetriesWithBackoff(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	rec := &recorder{fail: func(attempt int) error {
		if attempt < 2 {
			return errors.New("endpoint down")
		}
		return nil
	}}
	q.Subscribe(queue.TopicDelivery, rec.handle)

	if err := q.EnqueueDelivery(ctx, queue.DeliveryJob{EventID: id.NewEventID(), SubscriptionID: id.NewSubscriptionID()}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	q.Start(ctx)
	defer q.Stop(ctx)

	waitFor(t, func() bool { return len(rec.seen()) == 2 })

	got := rec.seen()
	if got[0] != 1 || got[1] != 2 {
		t.Errorf("attempts = %v, want [1 2]", got)
	}
}

func TestDeliveryExhaustsBudget(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	rec := &recorder{fail: func(int) error { return errors.New("endpoint down") }}
	q.Subscribe(queue.TopicDelivery, rec.handle)

	if err := q.EnqueueDelivery(ctx, queue.DeliveryJob{EventID: id.NewEventID(), SubscriptionID: id.NewSubscriptionID()}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	q.Start(ctx)
	defer q.Stop(ctx)

	waitFor(t, func() bool {
		n, _ := q.FailedCount(ctx, queue.TopicDelivery)
		return n == 1
	})

	if got := len(rec.seen()); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	if n, _ := q.Depth(ctx, queue.TopicDelivery); n != 0 {
		t.Errorf("depth = %d, want 0", n)
	}
}

func TestPermanentErrorParksImmediately(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	rec := &recorder{fail: func(int) error { return queue.Permanent(errors.New("event gone")) }}
	q.Subscribe(queue.TopicDelivery, rec.handle)

	if err := q.EnqueueDelivery(ctx, queue.DeliveryJob{EventID: id.NewEventID(), SubscriptionID: id.NewSubscriptionID()}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	q.Start(ctx)
	defer q.Stop(ctx)

	waitFor(t, func() bool {
		n, _ := q.FailedCount(ctx, queue.TopicDelivery)
		return n == 1
	})

	if got := len(rec.seen()); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestFanoutSingleAttempt(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	rec := &recorder{fail: func(int) error { return errors.New("store unavailable") }}
	q.Subscribe(queue.TopicFanout, rec.handle)

	if err := q.EnqueueFanout(ctx, queue.FanoutJob{EventID: id.NewEventID(), EventType: "order.created"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	q.Start(ctx)
	defer q.Stop(ctx)

	waitFor(t, func() bool {
		n, _ := q.FailedCount(ctx, queue.TopicFanout)
		return n == 1
	})

	if got := len(rec.seen()); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestCompletedHistoryIsTrimmed(t *testing.T) {
	q := testQueue(t)
	q.cfg.KeepCompleted = 2
	ctx := context.Background()

	rec := &recorder{}
	q.Subscribe(queue.TopicDelivery, rec.handle)

	for range 5 {
		if err := q.EnqueueDelivery(ctx, queue.DeliveryJob{EventID: id.NewEventID(), SubscriptionID: id.NewSubscriptionID()}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	q.Start(ctx)
	defer q.Stop(ctx)

	waitFor(t, func() bool { return len(rec.seen()) == 5 })
	waitFor(t, func() bool {
		n, _ := q.client.ZCard(ctx, completedKey(queue.TopicDelivery)).Result()
		return n == 2
	})
}
