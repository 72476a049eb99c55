package queue_test

import (
	"testing"
	"time"

	"github.com/hookline/hookline/queue"
)

func TestWithDefaultsFillsZeroFields(t *testing.T) {
	cfg := queue.Config{DeliveryAttempts: 7}.WithDefaults()

	if cfg.DeliveryAttempts != 7 {
		t.Fatalf("expected explicit attempts preserved, got %d", cfg.DeliveryAttempts)
	}
	def := queue.DefaultConfig()
	if cfg.BackoffBase != def.BackoffBase {
		t.Fatalf("expected default backoff, got %v", cfg.BackoffBase)
	}
	if cfg.DeliveryConcurrency != def.DeliveryConcurrency {
		t.Fatalf("expected default concurrency, got %d", cfg.DeliveryConcurrency)
	}
	if cfg.KeepCompleted != def.KeepCompleted || cfg.KeepFailed != def.KeepFailed {
		t.Fatalf("expected default history bounds, got %d/%d", cfg.KeepCompleted, cfg.KeepFailed)
	}
}

func TestBackoffDoublesPerFailure(t *testing.T) {
	base := 2 * time.Second

	for failures, want := range map[int]time.Duration{
		1: 2 * time.Second,
		2: 4 * time.Second,
		3: 8 * time.Second,
	} {
		got := queue.Backoff(base, failures)
		if got < want || got > want+want/4 {
			t.Fatalf("failures=%d: expected delay in [%v, %v], got %v", failures, want, want+want/4, got)
		}
	}
}

func TestBackoffClampsFailureCount(t *testing.T) {
	base := time.Second

	// Below 1 is treated as the first failure.
	if got := queue.Backoff(base, 0); got < base || got > base+base/4 {
		t.Fatalf("expected first-failure delay, got %v", got)
	}

	// Huge failure counts must not overflow.
	got := queue.Backoff(base, 1000)
	maxDelay := base<<16 + (base << 16 / 4)
	if got <= 0 || got > maxDelay {
		t.Fatalf("expected capped delay, got %v", got)
	}
}
