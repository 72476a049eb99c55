package hookline

import (
	"context"
	"log/slog"
	"time"

	"github.com/hookline/hookline/catalog"
	"github.com/hookline/hookline/observability"
	"github.com/hookline/hookline/queue"
	"github.com/hookline/hookline/store"
	"github.com/hookline/hookline/subscription"
	"github.com/hookline/hookline/worker"
)

// Service is the root event relay: ingestion, fan-out, delivery, and the
// delivery audit trail.
type Service struct {
	config  Config
	store   store.Store
	queue   queue.Queue
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	catalog   *catalog.Catalog
	subSvc    *subscription.Service
	deliverer *worker.Deliverer
	fanout    *worker.Fanout

	samplerCancel context.CancelFunc
	samplerDone   chan struct{}
}

// Option configures a Service instance.
type Option func(*Service) error

// New creates a new Service with the given options.
func New(opts ...Option) (*Service, error) {
	s := &Service{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.store == nil {
		return nil, ErrNoStore
	}
	if s.queue == nil {
		return nil, ErrNoQueue
	}
	s.wireServices()
	return s, nil
}

// WithStore sets the persistence backend for the Service.
func WithStore(st store.Store) Option {
	return func(s *Service) error {
		s.store = st
		return nil
	}
}

// WithQueue sets the job queue backend for the Service.
func WithQueue(q queue.Queue) Option {
	return func(s *Service) error {
		s.queue = q
		return nil
	}
}

// WithLogger sets the structured logger for the Service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		s.logger = logger
		return nil
	}
}

// WithMetrics sets the metric instruments for the Service.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) error {
		s.metrics = m
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer for the Service.
func WithTracer(t *observability.Tracer) Option {
	return func(s *Service) error {
		s.tracer = t
		return nil
	}
}

// WithMaxRetryAttempts sets the delivery attempt budget.
func WithMaxRetryAttempts(n int) Option {
	return func(s *Service) error {
		s.config.MaxRetryAttempts = n
		return nil
	}
}

// WithConcurrency sets the number of parallel delivery workers.
func WithConcurrency(n int) Option {
	return func(s *Service) error {
		s.config.Concurrency = n
		return nil
	}
}

// WithBackoffBase sets the delay before a delivery's first retry; later
// retries double it.
func WithBackoffBase(d time.Duration) Option {
	return func(s *Service) error {
		s.config.BackoffBase = d
		return nil
	}
}

// WithPollInterval sets how often queue workers check for due jobs.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) error {
		s.config.PollInterval = d
		return nil
	}
}

// WithRequestTimeout sets the HTTP timeout per delivery attempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Service) error {
		s.config.RequestTimeout = d
		return nil
	}
}

// WithSchemaCacheTTL sets the TTL for the schema registry cache.
func WithSchemaCacheTTL(d time.Duration) Option {
	return func(s *Service) error {
		s.config.SchemaCacheTTL = d
		return nil
	}
}

// WithShutdownTimeout sets the maximum wait for in-flight deliveries on
// shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Service) error {
		s.config.ShutdownTimeout = d
		return nil
	}
}
