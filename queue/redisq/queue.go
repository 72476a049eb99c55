// Package redisq implements the job queue on Redis. Each topic keeps a wait
// list, a delayed zset scored by ready time, an active zset scored by claim
// time, and bounded completed/failed history zsets. Job bodies live in per-job
// hashes. Claim, promote, and reclaim run as Lua scripts so concurrent
// relay instances never double-dispatch a job.
package redisq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/queue"
)

var _ queue.Queue = (*Queue)(nil)

const (
	keyPrefix = "hlq:"

	// promoteBatch bounds how many delayed or stalled jobs one tick moves.
	promoteBatch = 100
)

// Queue is a Redis-backed queue.
type Queue struct {
	client *redis.Client
	cfg    queue.Config
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[string]queue.Handler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Redis-backed queue on an existing client.
func New(client *redis.Client, cfg queue.Config, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		client:   client,
		cfg:      cfg.WithDefaults(),
		logger:   logger,
		handlers: make(map[string]queue.Handler),
	}
}

// Open connects to Redis at the given URL (redis:// or rediss://) and returns
// a queue on the connection.
func Open(url string, cfg queue.Config, logger *slog.Logger) (*Queue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return New(redis.NewClient(opts), cfg, logger), nil
}

func waitKey(topic string) string      { return keyPrefix + topic + ":wait" }
func delayedKey(topic string) string   { return keyPrefix + topic + ":delayed" }
func activeKey(topic string) string    { return keyPrefix + topic + ":active" }
func completedKey(topic string) string { return keyPrefix + topic + ":completed" }
func failedKey(topic string) string    { return keyPrefix + topic + ":failed" }
func dataKey(topic, jobID string) string {
	return keyPrefix + topic + ":data:" + jobID
}

// EnqueueFanout implements queue.Queue. Fan-out jobs carry a one-attempt budget.
func (q *Queue) EnqueueFanout(ctx context.Context, job queue.FanoutJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal fanout job: %w", err)
	}
	return q.enqueue(ctx, queue.TopicFanout, payload, 1)
}

// EnqueueDelivery implements queue.Queue.
func (q *Queue) EnqueueDelivery(ctx context.Context, job queue.DeliveryJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal delivery job: %w", err)
	}
	return q.enqueue(ctx, queue.TopicDelivery, payload, q.cfg.DeliveryAttempts)
}

func (q *Queue) enqueue(ctx context.Context, topic string, payload []byte, maxAttempts int) error {
	jobID := id.NewJobID().String()

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, dataKey(topic, jobID), map[string]any{
		"payload": string(payload),
		"made":    0,
		"max":     maxAttempts,
		"enq":     time.Now().UnixMilli(),
	})
	pipe.RPush(ctx, waitKey(topic), jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue %s job: %w", topic, err)
	}
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
			if err := q.promote(ctx, topic); err != nil && ctx.Err() == nil {
				q.logger.ErrorContext(ctx, "promote delayed jobs", "topic", topic, "error", err)
				continue
			}
			if err := q.reclaim(ctx, topic); err != nil && ctx.Err() == nil {
				q.logger.ErrorContext(ctx, "reclaim stalled jobs", "topic", topic, "error", err)
			}

			for {
				job, ok, err := q.claim(ctx, topic)
				if err != nil {
					if ctx.Err() == nil {
						q.logger.ErrorContext(ctx, "claim job", "topic", topic, "error", err)
					}
					break
				}
				if !ok {
					break
				}

				select {
				case <-ctx.Done():
					return
				case sem <- struct{}{}:
				}

				q.wg.Add(1)
				go func(job *queue.Job) {
					defer q.wg.Done()
					defer func() { <-sem }()
					q.process(ctx, job)
				}(job)
			}
		}
	}
}

func (q *Queue) promote(ctx context.Context, topic string) error {
	now := time.Now().UnixMilli()
	return ignoreNil(promoteScript.Run(ctx, q.client,
		[]string{delayedKey(topic), waitKey(topic)}, now, promoteBatch).Err())
}

func (q *Queue) reclaim(ctx context.Context, topic string) error {
	cutoff := time.Now().Add(-q.cfg.StallAfter).UnixMilli()
	return ignoreNil(reclaimScript.Run(ctx, q.client,
		[]string{activeKey(topic), waitKey(topic)}, cutoff, promoteBatch).Err())
}

// claim pops the next waiting job and loads its body. A claimed id whose data
// hash is gone is dropped from the active set and skipped.
func (q *Queue) claim(ctx context.Context, topic string) (*queue.Job, bool, error) {
	now := time.Now().UnixMilli()
	res, err := claimScript.Run(ctx, q.client,
		[]string{waitKey(topic), activeKey(topic)}, now).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	jobID, ok := res.(string)
	if !ok {
		return nil, false, fmt.Errorf("claim returned %T", res)
	}

	data, err := q.client.HGetAll(ctx, dataKey(topic, jobID)).Result()
	if err != nil {
		return nil, false, err
	}
	if len(data) == 0 {
		q.client.ZRem(ctx, activeKey(topic), jobID)
		return nil, false, nil
	}

	made, _ := strconv.Atoi(data["made"])
	maxAttempts, _ := strconv.Atoi(data["max"])

	parsed, err := id.ParseWithPrefix(jobID, id.PrefixJob)
	if err != nil {
		return nil, false, fmt.Errorf("parse job id %q: %w", jobID, err)
	}

	return &queue.Job{
		ID:          parsed,
		Topic:       topic,
		Payload:     json.RawMessage(data["payload"]),
		Attempt:     made + 1,
		MaxAttempts: maxAttempts,
	}, true, nil
}

func (q *Queue) process(ctx context.Context, job *queue.Job) {
	q.mu.Lock()
	h := q.handlers[job.Topic]
	q.mu.Unlock()

	err := h(ctx, job)

	jobID := job.ID.String()
	made := job.Attempt

	switch {
	case err == nil:
		q.complete(ctx, job.Topic, jobID)
	case queue.IsPermanent(err) || made >= job.MaxAttempts:
		q.fail(ctx, job.Topic, jobID, made, err)
	default:
		q.retry(ctx, job.Topic, jobID, made)
	}
}

func (q *Queue) complete(ctx context.Context, topic, jobID string) {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, activeKey(topic), jobID)
	pipe.ZAdd(ctx, completedKey(topic), redis.Z{Score: float64(time.Now().UnixMilli()), Member: jobID})
	if _, err := pipe.Exec(ctx); err != nil && ctx.Err() == nil {
		q.logger.ErrorContext(ctx, "complete job", "topic", topic, "job_id", jobID, "error", err)
		return
	}
	q.trim(ctx, topic, completedKey(topic), q.cfg.KeepCompleted)
}

func (q *Queue) fail(ctx context.Context, topic, jobID string, made int, cause error) {
	q.logger.WarnContext(ctx, "job permanently failed",
		"topic", topic, "job_id", jobID, "attempts", made, "error", cause)

	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, activeKey(topic), jobID)
	pipe.HSet(ctx, dataKey(topic, jobID), "made", made)
	pipe.ZAdd(ctx, failedKey(topic), redis.Z{Score: float64(time.Now().UnixMilli()), Member: jobID})
	if _, err := pipe.Exec(ctx); err != nil && ctx.Err() == nil {
		q.logger.ErrorContext(ctx, "park failed job", "topic", topic, "job_id", jobID, "error", err)
		return
	}
	q.trim(ctx, topic, failedKey(topic), q.cfg.KeepFailed)
}

func (q *Queue) retry(ctx context.Context, topic, jobID string, made int) {
	readyAt := time.Now().Add(queue.Backoff(q.cfg.BackoffBase, made))

	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, activeKey(topic), jobID)
	pipe.HSet(ctx, dataKey(topic, jobID), "made", made)
	pipe.ZAdd(ctx, delayedKey(topic), redis.Z{Score: float64(readyAt.UnixMilli()), Member: jobID})
	if _, err := pipe.Exec(ctx); err != nil && ctx.Err() == nil {
		q.logger.ErrorContext(ctx, "schedule retry", "topic", topic, "job_id", jobID, "error", err)
	}
}

// trim drops the oldest history entries beyond keep, together with their
// job bodies.
func (q *Queue) trim(ctx context.Context, topic, setKey string, keep int) {
	n, err := q.client.ZCard(ctx, setKey).Result()
	if err != nil || n <= int64(keep) {
		return
	}

	overflow, err := q.client.ZRange(ctx, setKey, 0, n-int64(keep)-1).Result()
	if err != nil || len(overflow) == 0 {
		return
	}

	pipe := q.client.TxPipeline()
	for _, jid := range overflow {
		pipe.ZRem(ctx, setKey, jid)
		pipe.Del(ctx, dataKey(topic, jid))
	}
	if _, err := pipe.Exec(ctx); err != nil && ctx.Err() == nil {
		q.logger.WarnContext(ctx, "trim job history", "key", setKey, "error", err)
	}
}

// Depth implements queue.Queue: waiting + delayed + active jobs on a topic.
func (q *Queue) Depth(ctx context.Context, topic string) (int64, error) {
	pipe := q.client.TxPipeline()
	wait := pipe.LLen(ctx, waitKey(topic))
	delayed := pipe.ZCard(ctx, delayedKey(topic))
	active := pipe.ZCard(ctx, activeKey(topic))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return wait.Val() + delayed.Val() + active.Val(), nil
}

// FailedCount implements queue.Queue.
func (q *Queue) FailedCount(ctx context.Context, topic string) (int64, error) {
	return q.client.ZCard(ctx, failedKey(topic)).Result()
}

// Ping implements queue.Queue.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close implements queue.Queue.
func (q *Queue) Close() error {
	return q.client.Close()
}

func ignoreNil(err error) error {
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
