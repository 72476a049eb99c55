package queue

import (
	"math/rand/v2"
	"time"
)

// Config holds queue behavior shared by implementations.
type Config struct {
	// DeliveryAttempts is the delivery-job attempt budget, including the
	// first attempt.
	DeliveryAttempts int

	// BackoffBase is the delay before the first retry; subsequent retries
	// double it.
	BackoffBase time.Duration

	// DeliveryConcurrency is the delivery worker parallelism.
	DeliveryConcurrency int

	// FanoutConcurrency is the fan-out worker parallelism.
	FanoutConcurrency int

	// PollInterval is how often workers check for due jobs.
	PollInterval time.Duration

	// StallAfter is how long a job may stay in flight before it is
	// reclaimed and redispatched.
	StallAfter time.Duration

	// KeepCompleted and KeepFailed bound the retained history per topic.
	KeepCompleted int
	KeepFailed    int
}

// DefaultConfig returns a Config with the relay defaults.
func DefaultConfig() Config {
	return Config{
		DeliveryAttempts:    3,
		BackoffBase:         2 * time.Second,
		DeliveryConcurrency: 5,
		FanoutConcurrency:   2,
		PollInterval:        500 * time.Millisecond,
		StallAfter:          60 * time.Second,
		KeepCompleted:       10,
		KeepFailed:          5,
	}
}

// WithDefaults fills zero-valued fields with the relay defaults.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.DeliveryAttempts <= 0 {
		c.DeliveryAttempts = def.DeliveryAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = def.BackoffBase
	}
	if c.DeliveryConcurrency <= 0 {
		c.DeliveryConcurrency = def.DeliveryConcurrency
	}
	if c.FanoutConcurrency <= 0 {
		c.FanoutConcurrency = def.FanoutConcurrency
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.StallAfter <= 0 {
		c.StallAfter = def.StallAfter
	}
	if c.KeepCompleted <= 0 {
		c.KeepCompleted = def.KeepCompleted
	}
	if c.KeepFailed <= 0 {
		c.KeepFailed = def.KeepFailed
	}
	return c
}

// Backoff returns the jittered delay before the next attempt after the given
// number of failures: base doubles per failure, with up to 25% random jitter.
func Backoff(base time.Duration, failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	// Cap the shift so pathological budgets cannot overflow.
	shift := failures - 1
	if shift > 16 {
		shift = 16
	}
	d := base << shift
	jitter := time.Duration(rand.Int64N(int64(d)/4 + 1))
	return d + jitter
}
