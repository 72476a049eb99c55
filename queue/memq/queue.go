// Package memq provides an in-process Queue implementation for unit testing.
// It mirrors the redisq semantics: per-topic FIFO dispatch, delayed retries
// with exponential backoff, stall reclamation, and bounded history.
package memq

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/queue"
)

// compile-time interface check.
var _ queue.Queue = (*Queue)(nil)

type jobState int

const (
	stateWaiting jobState = iota
	stateDelayed
	stateActive
	stateCompleted
	stateFailed
)

type memJob struct {
	job       queue.Job
	state     jobState
	made      int // attempts made so far
	readyAt   time.Time
	startedAt time.Time
}

// Queue is an in-memory queue.
type Queue struct {
	cfg    queue.Config
	logger *slog.Logger

	mu        sync.Mutex
	jobs      map[string]*memJob
	waiting   map[string][]string // per-topic FIFO of job IDs
	completed map[string][]string // per-topic, oldest first
	failed    map[string][]string
	handlers  map[string]queue.Handler
	closed    bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an in-memory queue.
func New(cfg queue.Config, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		cfg:       cfg.WithDefaults(),
		logger:    logger,
		jobs:      make(map[string]*memJob),
		waiting:   make(map[string][]string),
		completed: make(map[string][]string),
		failed:    make(map[string][]string),
		handlers:  make(map[string]queue.Handler),
	}
}

// EnqueueFanout implements queue.Queue. Fan-out jobs carry a one-attempt budget.
func (q *Queue) EnqueueFanout(ctx context.Context, job queue.FanoutJob) error {
	return q.enqueue(ctx, queue.TopicFanout, mustMarshal(job), 1)
}

// EnqueueDelivery implements queue.Queue.
func (q *Queue) EnqueueDelivery(ctx context.Context, job queue.DeliveryJob) error {
	return q.enqueue(ctx, queue.TopicDelivery, mustMarshal(job), q.cfg.DeliveryAttempts)
}

func (q *Queue) enqueue(_ context.Context, topic string, payload []byte, maxAttempts int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return queue.ErrClosed
	}

	jobID := id.NewJobID()
	q.jobs[jobID.String()] = &memJob{
		job: queue.Job{
			ID:          jobID,
			Topic:       topic,
			Payload:     payload,
			MaxAttempts: maxAttempts,
		},
		state: stateWaiting,
	}
	q.waiting[topic] = append(q.waiting[topic], jobID.String())
	return nil
}

// Subscribe implements queue.Queue.
func (q *Queue) Subscribe(topic string, h queue.Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[topic] = h
}

// Configure implements queue.Queue. Must be called before Start.
func (q *Queue) Configure(cfg queue.Config) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cfg = cfg.WithDefaults()
}

// Start implements queue.Queue. One poll loop per subscribed topic.
func (q *Queue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)

	q.mu.Lock()
	topics := make([]string, 0, len(q.handlers))
	for topic := range q.handlers {
		topics = append(topics, topic)
	}
	q.mu.Unlock()

	for _, topic := range topics {
		concurrency := q.cfg.FanoutConcurrency
		if topic == queue.TopicDelivery {
			concurrency = q.cfg.DeliveryConcurrency
		}

		q.wg.Add(1)
		go func(topic string, concurrency int) {
			defer q.wg.Done()
			q.pollLoop(ctx, topic, concurrency)
		}(topic, concurrency)
	}
}

// Stop implements queue.Queue: cancels the poll loops and waits for
// in-flight handlers.
func (q *Queue) Stop(_ context.Context) {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

func (q *Queue) pollLoop(ctx context.Context, topic string, concurrency int) {
	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, concurrency)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.promote(topic)

			for {
				mj, ok := q.claim(topic)
				if !ok {
					break
				}

				select {
				case <-ctx.Done():
					q.requeue(mj)
					return
				case sem <- struct{}{}:
				}

				q.wg.Add(1)
				go func(mj *memJob) {
					defer q.wg.Done()
					defer func() { <-sem }()
					q.process(ctx, topic, mj)
				}(mj)
			}
		}
	}
}

// promote moves due delayed jobs and stalled active jobs back to waiting.
func (q *Queue) promote(topic string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-q.cfg.StallAfter)
	for jid, mj := range q.jobs {
		if mj.job.Topic != topic {
			continue
		}
		switch mj.state {
		case stateDelayed:
			if !mj.readyAt.After(now) {
				mj.state = stateWaiting
				q.waiting[topic] = append(q.waiting[topic], jid)
			}
		case stateActive:
			if mj.startedAt.Before(cutoff) {
				mj.state = stateWaiting
				q.waiting[topic] = append(q.waiting[topic], jid)
			}
		}
	}
}

// claim pops the head of the topic's waiting FIFO and marks it active.
func (q *Queue) claim(topic string) (*memJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	fifo := q.waiting[topic]
	if len(fifo) == 0 {
		return nil, false
	}
	jid := fifo[0]
	q.waiting[topic] = fifo[1:]

	mj, ok := q.jobs[jid]
	if !ok || mj.state != stateWaiting {
		return nil, false
	}
	mj.state = stateActive
	mj.startedAt = time.Now()
	return mj, true
}

// requeue puts a claimed-but-undispatched job back at the head of the FIFO.
func (q *Queue) requeue(mj *memJob) {
	q.mu.Lock()
	defer q.mu.Unlock()
	mj.state = stateWaiting
	q.waiting[mj.job.Topic] = append([]string{mj.job.ID.String()}, q.waiting[mj.job.Topic]...)
}

func (q *Queue) process(ctx context.Context, topic string, mj *memJob) {
	q.mu.Lock()
	h := q.handlers[topic]
	job := mj.job
	job.Attempt = mj.made + 1
	q.mu.Unlock()

	err := h(ctx, &job)

	q.mu.Lock()
	defer q.mu.Unlock()

	mj.made++

	if err == nil {
		mj.state = stateCompleted
		q.completed[topic] = trimHistory(q.jobs, append(q.completed[topic], job.ID.String()), q.cfg.KeepCompleted)
		return
	}

	if queue.IsPermanent(err) || mj.made >= mj.job.MaxAttempts {
		mj.state = stateFailed
		q.failed[topic] = trimHistory(q.jobs, append(q.failed[topic], job.ID.String()), q.cfg.KeepFailed)
		q.logger.WarnContext(ctx, "job permanently failed",
			"topic", topic, "job_id", job.ID, "attempts", mj.made, "error", err)
		return
	}

	mj.state = stateDelayed
	mj.readyAt = time.Now().Add(queue.Backoff(q.cfg.BackoffBase, mj.made))
}

// trimHistory drops the oldest entries beyond keep, removing their job records.
func trimHistory(jobs map[string]*memJob, order []string, keep int) []string {
	for len(order) > keep {
		delete(jobs, order[0])
		order = order[1:]
	}
	return order
}

// Depth implements queue.Queue: waiting + delayed + active jobs on a topic.
func (q *Queue) Depth(_ context.Context, topic string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var n int64
	for _, mj := range q.jobs {
		if mj.job.Topic != topic {
			continue
		}
		switch mj.state {
		case stateWaiting, stateDelayed, stateActive:
			n++
		}
	}
	return n, nil
}

// FailedCount implements queue.Queue.
func (q *Queue) FailedCount(_ context.Context, topic string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.failed[topic])), nil
}

// Ping implements queue.Queue.
func (q *Queue) Ping(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return queue.ErrClosed
	}
	return nil
}

// Close implements queue.Queue.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic("memq: marshal job payload: " + err.Error())
	}
	return b
}
