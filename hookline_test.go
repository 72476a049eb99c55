package hookline_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gu "github.com/xraph/go-utils/metrics"

	"github.com/hookline/hookline"
	"github.com/hookline/hookline/dlog"
	"github.com/hookline/hookline/event"
	"github.com/hookline/hookline/observability"
	"github.com/hookline/hookline/queue"
	"github.com/hookline/hookline/queue/memq"
	"github.com/hookline/hookline/store/memory"
	"github.com/hookline/hookline/subscription"
)

func ctx() context.Context { return context.Background() }

// sink is an HTTP endpoint with a switchable status code. It records every
// request body it receives.
type sink struct {
	srv *httptest.Server

	mu     sync.Mutex
	status int
	bodies [][]byte
}

func newSink(t *testing.T, status int) *sink {
	t.Helper()
	s := &sink{status: status}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		s.mu.Lock()
		s.bodies = append(s.bodies, body)
		status := s.status
		s.mu.Unlock()

		w.WriteHeader(status)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *sink) setStatus(code int) {
	s.mu.Lock()
	s.status = code
	s.mu.Unlock()
}

func (s *sink) received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.bodies))
	copy(out, s.bodies)
	return out
}

// setup builds a running relay over the memory store and in-process queue,
// tuned for fast test turnaround.
func setup(t *testing.T, opts ...hookline.Option) *hookline.Service {
	t.Helper()

	q := memq.New(queue.Config{}, nil)

	base := []hookline.Option{
		hookline.WithStore(memory.New()),
		hookline.WithQueue(q),
		hookline.WithBackoffBase(time.Millisecond),
		hookline.WithPollInterval(5 * time.Millisecond),
	}
	svc, err := hookline.New(append(base, opts...)...)
	if err != nil {
		t.Fatal(err)
	}

	svc.Start(ctx())
	t.Cleanup(func() {
		svc.Stop(ctx())
		q.Close()
	})
	return svc
}

func ingest(t *testing.T, svc *hookline.Service, key, eventType, payload string) {
	t.Helper()
	_, _, err := svc.Ingest(ctx(), hookline.IngestInput{
		IdempotencyKey: key,
		EventType:      eventType,
		Payload:        json.RawMessage(payload),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func subscribe(t *testing.T, svc *hookline.Service, eventType, target string, active bool) *subscription.Subscription {
	t.Helper()
	sub, err := svc.Subscriptions().Create(ctx(), subscription.Input{
		EventType: eventType,
		TargetURL: target,
		Active:    &active,
	})
	if err != nil {
		t.Fatal(err)
	}
	return sub
}

// waitForLogs polls until the delivery trail matching opts reaches want rows
// all in a terminal state.
func waitForLogs(t *testing.T, svc *hookline.Service, opts dlog.ListOpts, want int) []*dlog.Log {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		logs, err := svc.Store().ListLogs(ctx(), opts)
		if err != nil {
			t.Fatal(err)
		}
		if len(logs) == want {
			terminal := true
			for _, l := range logs {
				if !l.Terminal() {
					terminal = false
					break
				}
			}
			if terminal {
				return logs
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	logs, _ := svc.Store().ListLogs(ctx(), opts)
	t.Fatalf("timed out waiting for %d terminal logs, have %d", want, len(logs))
	return nil
}

func TestDeliveryHappyPath(t *testing.T) {
	svc := setup(t)
	target := newSink(t, http.StatusOK)

	subscribe(t, svc, "user.created", target.srv.URL, true)
	ingest(t, svc, "k1", "user.created", `{"x":1}`)

	logs := waitForLogs(t, svc, dlog.ListOpts{}, 1)
	row := logs[0]
	if row.Status != dlog.StatusSuccess {
		t.Fatalf("expected success, got %s (%s)", row.Status, row.ErrorMessage)
	}
	if row.AttemptCount != 1 {
		t.Fatalf("expected attempt 1, got %d", row.AttemptCount)
	}
	if row.ResponseStatusCode == nil || *row.ResponseStatusCode != 200 {
		t.Fatalf("expected response code 200, got %v", row.ResponseStatusCode)
	}

	st, err := svc.Store().Stats(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if st.EventsTotal != 1 || st.DeliveriesSuccess != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestDuplicateIngestionSkipsFanout(t *testing.T) {
	svc := setup(t)
	target := newSink(t, http.StatusOK)

	subscribe(t, svc, "user.created", target.srv.URL, true)

	first, dup, err := svc.Ingest(ctx(), hookline.IngestInput{
		IdempotencyKey: "k1",
		EventType:      "user.created",
		Payload:        json.RawMessage(`{"v":1}`),
	})
	if err != nil || dup {
		t.Fatalf("first ingest: dup=%v err=%v", dup, err)
	}
	waitForLogs(t, svc, dlog.ListOpts{}, 1)

	// Same key, different body: the original event wins, no new fan-out.
	second, dup, err := svc.Ingest(ctx(), hookline.IngestInput{
		IdempotencyKey: "k1",
		EventType:      "user.created",
		Payload:        json.RawMessage(`{"v":2}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !dup {
		t.Fatal("expected duplicate flag")
	}
	if second.ID != first.ID {
		t.Fatalf("expected original event %s, got %s", first.ID, second.ID)
	}
	if string(second.Payload) != `{"v":1}` {
		t.Fatalf("expected original payload, got %s", second.Payload)
	}

	time.Sleep(50 * time.Millisecond)
	logs, err := svc.Store().ListLogs(ctx(), dlog.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected exactly 1 delivery log, got %d", len(logs))
	}
}

func TestRetryToPermanentFailure(t *testing.T) {
	svc := setup(t, hookline.WithMaxRetryAttempts(3))
	target := newSink(t, http.StatusInternalServerError)

	subscribe(t, svc, "user.created", target.srv.URL, true)
	ingest(t, svc, "k1", "user.created", `{"x":1}`)

	logs := waitForLogs(t, svc, dlog.ListOpts{}, 3)

	attempts := map[int]bool{}
	for _, row := range logs {
		if row.Status != dlog.StatusFailed {
			t.Fatalf("expected failed, got %s", row.Status)
		}
		if row.ResponseStatusCode == nil || *row.ResponseStatusCode != 500 {
			t.Fatalf("expected response code 500, got %v", row.ResponseStatusCode)
		}
		if row.ErrorMessage != "HTTP 500" {
			t.Fatalf("expected error message %q, got %q", "HTTP 500", row.ErrorMessage)
		}
		attempts[row.AttemptCount] = true
	}
	for n := 1; n <= 3; n++ {
		if !attempts[n] {
			t.Fatalf("missing attempt %d in %v", n, attempts)
		}
	}

	failed, err := svc.Queue().FailedCount(ctx(), queue.TopicDelivery)
	if err != nil {
		t.Fatal(err)
	}
	if failed != 1 {
		t.Fatalf("expected 1 permanently failed job, got %d", failed)
	}

	// No fourth attempt shows up.
	time.Sleep(50 * time.Millisecond)
	logs, _ = svc.Store().ListLogs(ctx(), dlog.ListOpts{})
	if len(logs) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(logs))
	}
}

func TestRetryBudgetOfOne(t *testing.T) {
	svc := setup(t, hookline.WithMaxRetryAttempts(1))
	target := newSink(t, http.StatusInternalServerError)

	subscribe(t, svc, "user.created", target.srv.URL, true)
	ingest(t, svc, "k1", "user.created", `{"x":1}`)

	logs := waitForLogs(t, svc, dlog.ListOpts{}, 1)
	if logs[0].Status != dlog.StatusFailed || logs[0].AttemptCount != 1 {
		t.Fatalf("expected single failed attempt, got %+v", logs[0])
	}

	// The budget is spent; no retry shows up.
	time.Sleep(50 * time.Millisecond)
	logs, err := svc.Store().ListLogs(ctx(), dlog.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected exactly 1 failed log, got %d", len(logs))
	}

	failed, err := svc.Queue().FailedCount(ctx(), queue.TopicDelivery)
	if err != nil {
		t.Fatal(err)
	}
	if failed != 1 {
		t.Fatalf("expected 1 permanently failed job, got %d", failed)
	}
}

func TestAdminRetryAfterRecovery(t *testing.T) {
	svc := setup(t, hookline.WithMaxRetryAttempts(3))
	target := newSink(t, http.StatusInternalServerError)

	subscribe(t, svc, "user.created", target.srv.URL, true)
	ingest(t, svc, "k1", "user.created", `{"x":1}`)
	failedLogs := waitForLogs(t, svc, dlog.ListOpts{}, 3)

	// Sink recovers; an operator re-enqueues from the last failed row.
	target.setStatus(http.StatusOK)
	if err := svc.RetryDelivery(ctx(), failedLogs[0].ID); err != nil {
		t.Fatal(err)
	}

	logs := waitForLogs(t, svc, dlog.ListOpts{}, 4)

	var fresh *dlog.Log
	failed := 0
	for _, row := range logs {
		switch row.Status {
		case dlog.StatusSuccess:
			fresh = row
		case dlog.StatusFailed:
			failed++
		}
	}
	if fresh == nil || fresh.AttemptCount != 1 {
		t.Fatalf("expected new success row at attempt 1, got %+v", fresh)
	}
	if failed != 3 {
		t.Fatalf("expected original 3 failed rows untouched, got %d", failed)
	}
}

func TestFanoutToMultipleSubscribers(t *testing.T) {
	svc := setup(t)
	sinkA := newSink(t, http.StatusOK)
	sinkB := newSink(t, http.StatusOK)

	subA := subscribe(t, svc, "order.paid", sinkA.srv.URL, true)
	subB := subscribe(t, svc, "order.paid", sinkB.srv.URL, true)
	subscribe(t, svc, "order.refunded", sinkA.srv.URL+"/other", true)

	ingest(t, svc, "k1", "order.paid", `{"order_id":42}`)

	logs := waitForLogs(t, svc, dlog.ListOpts{}, 2)

	seen := map[string]bool{}
	for _, row := range logs {
		seen[row.SubscriptionID.String()] = true
	}
	if !seen[subA.ID.String()] || !seen[subB.ID.String()] {
		t.Fatalf("expected one log per subscription, got %v", seen)
	}

	if len(sinkA.received()) != 1 || len(sinkB.received()) != 1 {
		t.Fatalf("expected each sink to receive exactly one delivery, got %d/%d",
			len(sinkA.received()), len(sinkB.received()))
	}
}

func TestInactiveSubscriptionIsDropped(t *testing.T) {
	svc := setup(t)
	target := newSink(t, http.StatusOK)

	subscribe(t, svc, "user.created", target.srv.URL, false)
	ingest(t, svc, "k1", "user.created", `{"x":1}`)

	// Give the pipeline time to run the fan-out and (not) deliver.
	time.Sleep(100 * time.Millisecond)

	logs, err := svc.Store().ListLogs(ctx(), dlog.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 0 {
		t.Fatalf("expected no delivery logs for inactive subscription, got %d", len(logs))
	}
	if n := len(target.received()); n != 0 {
		t.Fatalf("expected no HTTP calls, got %d", n)
	}
}

func TestIngestValidation(t *testing.T) {
	svc := setup(t)

	cases := []struct {
		name string
		in   hookline.IngestInput
		want error
	}{
		{"missing key", hookline.IngestInput{EventType: "a.b", Payload: json.RawMessage(`{}`)}, hookline.ErrMissingIdempotencyKey},
		{"bad type", hookline.IngestInput{IdempotencyKey: "k", EventType: "a b", Payload: json.RawMessage(`{}`)}, hookline.ErrInvalidEventType},
		{"array payload", hookline.IngestInput{IdempotencyKey: "k", EventType: "a.b", Payload: json.RawMessage(`[1]`)}, hookline.ErrInvalidPayload},
		{"scalar payload", hookline.IngestInput{IdempotencyKey: "k", EventType: "a.b", Payload: json.RawMessage(`"x"`)}, hookline.ErrInvalidPayload},
	}
	for _, tc := range cases {
		_, _, err := svc.Ingest(ctx(), tc.in)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestQueueGaugeSampling(t *testing.T) {
	svc := setup(t, hookline.WithMetrics(observability.NewMetrics(gu.NewMetricsCollector("test"))))
	target := newSink(t, http.StatusOK)

	subscribe(t, svc, "user.created", target.srv.URL, true)
	ingest(t, svc, "k1", "user.created", `{"x":1}`)
	waitForLogs(t, svc, dlog.ListOpts{}, 1)

	// Let a few sampling ticks run against the drained queue; Stop in the
	// cleanup must then join the sampler without hanging.
	time.Sleep(25 * time.Millisecond)
}

func TestIngestPayloadSizeBoundary(t *testing.T) {
	svc := setup(t)

	// padded builds a JSON object of exactly n bytes.
	padded := func(n int) json.RawMessage {
		b := []byte(`{"pad":"`)
		b = append(b, bytes.Repeat([]byte("a"), n-len(b)-2)...)
		return append(b, '"', '}')
	}

	exact := padded(event.MaxPayloadBytes)
	if len(exact) != event.MaxPayloadBytes {
		t.Fatalf("fixture is %d bytes, want %d", len(exact), event.MaxPayloadBytes)
	}
	if _, _, err := svc.Ingest(ctx(), hookline.IngestInput{
		IdempotencyKey: "k-max",
		EventType:      "a.b",
		Payload:        exact,
	}); err != nil {
		t.Fatalf("payload at the size cap should be accepted, got %v", err)
	}

	over := padded(event.MaxPayloadBytes + 1)
	_, _, err := svc.Ingest(ctx(), hookline.IngestInput{
		IdempotencyKey: "k-over",
		EventType:      "a.b",
		Payload:        over,
	})
	if !errors.Is(err, hookline.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestRetryDeliveryRules(t *testing.T) {
	svc := setup(t)
	target := newSink(t, http.StatusOK)

	sub := subscribe(t, svc, "user.created", target.srv.URL, true)
	ingest(t, svc, "k1", "user.created", `{"x":1}`)
	logs := waitForLogs(t, svc, dlog.ListOpts{}, 1)

	// A successful row cannot be retried.
	err := svc.RetryDelivery(ctx(), logs[0].ID)
	if !errors.Is(err, hookline.ErrRetryNotAllowed) {
		t.Fatalf("expected ErrRetryNotAllowed, got %v", err)
	}

	// Record a failed attempt, deactivate the subscription: still rejected.
	row, err := svc.Store().CreateLog(ctx(), logs[0].EventID, sub.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	code := 500
	if err := svc.Store().FinishLog(ctx(), row.ID, dlog.StatusFailed, &code, "", "HTTP 500"); err != nil {
		t.Fatal(err)
	}
	inactive := false
	if _, err := svc.Subscriptions().Update(ctx(), sub.ID, subscription.Input{Active: &inactive}); err != nil {
		t.Fatal(err)
	}

	err = svc.RetryDelivery(ctx(), row.ID)
	if !errors.Is(err, hookline.ErrSubscriptionInactive) {
		t.Fatalf("expected ErrSubscriptionInactive, got %v", err)
	}
}
