package worker

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hookline/hookline/dlog"
	"github.com/hookline/hookline/queue"
)

func newDeliverer(events *fakeEvents, subs *fakeSubs, logs *fakeLogs) *Deliverer {
	return NewDeliverer(events, subs, logs, NewSender(5*time.Second), nil, nil, nil)
}

func TestHandleDeliverySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "received")
	}))
	defer srv.Close()

	events, subs, logs := newFakeEvents(), newFakeSubs(), newFakeLogs()
	evt := testEvent("order.created")
	sub := testSubscription("order.created", srv.URL, true)
	events.add(evt)
	subs.add(sub)

	err := newDeliverer(events, subs, logs).Handle(context.Background(), deliveryJob(evt, sub, 1, 3))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	rows := logs.all()
	if len(rows) != 1 {
		t.Fatalf("log rows = %d, want 1", len(rows))
	}
	row := rows[0]
	if row.Status != dlog.StatusSuccess {
		t.Errorf("status = %q, want success", row.Status)
	}
	if row.AttemptCount != 1 {
		t.Errorf("attempt = %d, want 1", row.AttemptCount)
	}
	if row.ResponseStatusCode == nil || *row.ResponseStatusCode != http.StatusOK {
		t.Errorf("response code = %v, want 200", row.ResponseStatusCode)
	}
	if row.ResponseBody != "received" {
		t.Errorf("response body = %q", row.ResponseBody)
	}
}

func TestHandleDeliveryFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	events, subs, logs := newFakeEvents(), newFakeSubs(), newFakeLogs()
	evt := testEvent("order.created")
	sub := testSubscription("order.created", srv.URL, true)
	events.add(evt)
	subs.add(sub)

	err := newDeliverer(events, subs, logs).Handle(context.Background(), deliveryJob(evt, sub, 2, 3))
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
	if queue.IsPermanent(err) {
		t.Error("non-2xx failure must stay retryable")
	}

	rows := logs.all()
	if len(rows) != 1 {
		t.Fatalf("log rows = %d, want 1", len(rows))
	}
	row := rows[0]
	if row.Status != dlog.StatusFailed {
		t.Errorf("status = %q, want failed", row.Status)
	}
	if row.AttemptCount != 2 {
		t.Errorf("attempt = %d, want 2", row.AttemptCount)
	}
	if row.ResponseStatusCode == nil || *row.ResponseStatusCode != http.StatusBadGateway {
		t.Errorf("response code = %v, want 502", row.ResponseStatusCode)
	}
	if row.ErrorMessage != "HTTP 502" {
		t.Errorf("error message = %q, want %q", row.ErrorMessage, "HTTP 502")
	}
}

func TestHandleDeliveryTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	events, subs, logs := newFakeEvents(), newFakeSubs(), newFakeLogs()
	evt := testEvent("order.created")
	sub := testSubscription("order.created", srv.URL, true)
	events.add(evt)
	subs.add(sub)

	err := newDeliverer(events, subs, logs).Handle(context.Background(), deliveryJob(evt, sub, 1, 3))
	if err == nil {
		t.Fatal("expected error for connection failure")
	}

	rows := logs.all()
	if len(rows) != 1 {
		t.Fatalf("log rows = %d, want 1", len(rows))
	}
	row := rows[0]
	if row.Status != dlog.StatusFailed {
		t.Errorf("status = %q, want failed", row.Status)
	}
	if row.ResponseStatusCode != nil {
		t.Errorf("response code = %v, want nil on transport error", row.ResponseStatusCode)
	}
	if row.ErrorMessage == "" {
		t.Error("error message missing")
	}
}

func TestHandleDeliveryDropsInactiveSubscription(t *testing.T) {
	events, subs, logs := newFakeEvents(), newFakeSubs(), newFakeLogs()
	evt := testEvent("order.created")
	sub := testSubscription("order.created", "http://example.com/hook", false)
	events.add(evt)
	subs.add(sub)

	err := newDeliverer(events, subs, logs).Handle(context.Background(), deliveryJob(evt, sub, 1, 3))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if rows := logs.all(); len(rows) != 0 {
		t.Errorf("log rows = %d, want 0 for dropped delivery", len(rows))
	}
}

func TestHandleDeliveryDropsMissingSubscription(t *testing.T) {
	events, subs, logs := newFakeEvents(), newFakeSubs(), newFakeLogs()
	evt := testEvent("order.created")
	sub := testSubscription("order.created", "http://example.com/hook", true)
	events.add(evt)
	// sub never stored

	err := newDeliverer(events, subs, logs).Handle(context.Background(), deliveryJob(evt, sub, 1, 3))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if rows := logs.all(); len(rows) != 0 {
		t.Errorf("log rows = %d, want 0 for dropped delivery", len(rows))
	}
}

func TestHandleDeliveryMissingEventIsPermanent(t *testing.T) {
	events, subs, logs := newFakeEvents(), newFakeSubs(), newFakeLogs()
	evt := testEvent("order.created")
	sub := testSubscription("order.created", "http://example.com/hook", true)
	subs.add(sub)
	// event never stored

	err := newDeliverer(events, subs, logs).Handle(context.Background(), deliveryJob(evt, sub, 1, 3))
	if err == nil {
		t.Fatal("expected error for missing event")
	}
	if !queue.IsPermanent(err) {
		t.Error("missing event must be a permanent failure")
	}
	if rows := logs.all(); len(rows) != 0 {
		t.Errorf("log rows = %d, want 0", len(rows))
	}
}
