package hookline

import (
	"time"

	"github.com/hookline/hookline/queue"
)

// Config holds the configuration for a relay Service.
type Config struct {
	// MaxRetryAttempts is the delivery attempt budget per (event,
	// subscription) pair, including the first attempt.
	MaxRetryAttempts int

	// Concurrency is the number of parallel delivery workers.
	Concurrency int

	// FanoutConcurrency is the number of parallel fan-out workers.
	FanoutConcurrency int

	// RequestTimeout is the HTTP timeout per delivery attempt.
	RequestTimeout time.Duration

	// BackoffBase is the delay before the first retry; later retries double it.
	BackoffBase time.Duration

	// PollInterval is how often queue workers check for due jobs.
	PollInterval time.Duration

	// StallAfter is how long a claimed job may stay in flight before it is
	// reclaimed after a worker crash.
	StallAfter time.Duration

	// SchemaCacheTTL is the TTL for the schema registry's in-memory cache.
	// Set to 0 to cache forever.
	SchemaCacheTTL time.Duration

	// ShutdownTimeout is the maximum time to wait for in-flight deliveries
	// on shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetryAttempts:  3,
		Concurrency:       5,
		FanoutConcurrency: 2,
		RequestTimeout:    30 * time.Second,
		BackoffBase:       2 * time.Second,
		PollInterval:      500 * time.Millisecond,
		StallAfter:        60 * time.Second,
		SchemaCacheTTL:    30 * time.Second,
		ShutdownTimeout:   30 * time.Second,
	}
}

// QueueConfig derives the queue-level configuration.
func (c Config) QueueConfig() queue.Config {
	return queue.Config{
		DeliveryAttempts:    c.MaxRetryAttempts,
		BackoffBase:         c.BackoffBase,
		DeliveryConcurrency: c.Concurrency,
		FanoutConcurrency:   c.FanoutConcurrency,
		PollInterval:        c.PollInterval,
		StallAfter:          c.StallAfter,
	}.WithDefaults()
}
