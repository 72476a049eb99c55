package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	gu "github.com/xraph/go-utils/metrics"

	"github.com/hookline/hookline"
	"github.com/hookline/hookline/api"
	"github.com/hookline/hookline/observability"
	"github.com/hookline/hookline/queue"
	"github.com/hookline/hookline/queue/memq"
	"github.com/hookline/hookline/queue/redisq"
	"github.com/hookline/hookline/store"
	"github.com/hookline/hookline/store/memory"
	"github.com/hookline/hookline/store/postgres"
	"github.com/hookline/hookline/store/sqlite"
)

func main() {
	initLogging()
	cfg := loadConfig()

	ctx := context.Background()

	st, err := openStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("unable to open store: ", err)
	}
	if err := st.Migrate(ctx); err != nil {
		log.Fatal("unable to migrate store: ", err)
	}

	q, err := openQueue(cfg.RedisURL)
	if err != nil {
		log.Fatal("unable to open queue: ", err)
	}

	svc, err := hookline.New(
		hookline.WithStore(st),
		hookline.WithQueue(q),
		hookline.WithLogger(slog.Default()),
		hookline.WithMetrics(observability.NewMetrics(gu.NewMetricsCollector("hookline"))),
		hookline.WithTracer(observability.NewTracer()),
		hookline.WithMaxRetryAttempts(cfg.MaxRetryAttempts),
		hookline.WithConcurrency(cfg.Concurrency),
		hookline.WithRequestTimeout(time.Duration(cfg.WebhookTimeout)*time.Millisecond),
	)
	if err != nil {
		log.Fatal("unable to initialize relay: ", err)
	}

	svc.Start(ctx)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: api.NewHandler(svc, api.Config{DevMode: cfg.DevMode}, slog.Default()),
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("Starting hookline", "port", cfg.Port, "dev_mode", cfg.DevMode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	<-sigChan
	slog.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
	defer cancel()

	// Drain order: stop accepting HTTP, let in-flight delivery attempts
	// finish, then release the broker and store connections. Anything still
	// unconfirmed is redelivered by the queue after its stall window.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	svc.Stop(shutdownCtx)
	if err := q.Close(); err != nil {
		slog.Error("queue close error", "error", err)
	}
	if err := st.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("Shutdown complete")
}

// openStore picks the store backend from the connection string: a postgres
// DSN, a SQLite file path, or the in-memory store when empty.
func openStore(ctx context.Context, databaseURL string) (store.Store, error) {
	switch {
	case databaseURL == "":
		slog.Warn("DATABASE_URL not set, using in-memory store; data will not survive restarts")
		return memory.New(), nil
	case strings.HasPrefix(databaseURL, "postgres://"),
		strings.HasPrefix(databaseURL, "postgresql://"):
		st, err := postgres.Open(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		st, err := sqlite.Open(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
}

// openQueue connects to Redis when a broker URL is configured, otherwise
// falls back to the in-process queue. The relay service applies the derived
// queue configuration on wire-up.
func openQueue(redisURL string) (queue.Queue, error) {
	if redisURL == "" {
		slog.Warn("REDIS_URL not set, using in-process queue; jobs will not survive restarts")
		return memq.New(queue.Config{}, slog.Default()), nil
	}
	q, err := redisq.Open(redisURL, queue.Config{}, slog.Default())
	if err != nil {
		return nil, err
	}
	return q, nil
}
