// Package worker runs the queue handlers: fan-out of accepted events into
// per-subscription delivery jobs, and the HTTP delivery attempts themselves.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/hookline/hookline/dlog"
	"github.com/hookline/hookline/event"
	"github.com/hookline/hookline/signature"
	"github.com/hookline/hookline/subscription"
)

const userAgent = "webhook-relay/1.0"

// envelope is the wire body posted to subscriber endpoints.
type envelope struct {
	ID             string          `json:"id"`
	EventType      string          `json:"eventType"`
	Payload        json.RawMessage `json:"payload"`
	ReceivedAt     time.Time       `json:"receivedAt"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

// Result is the outcome of one HTTP delivery attempt.
type Result struct {
	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int

	// Response is the response body, capped at dlog.MaxResponseBody.
	Response string

	// Error is the transport-level failure, empty when a response arrived.
	Error string

	// LatencyMs is the request round-trip time.
	LatencyMs int
}

// OK reports whether the attempt got a 2xx response.
func (r Result) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Sender performs HTTP webhook delivery.
type Sender struct {
	client *http.Client
}

// NewSender creates a sender with the given per-request timeout.
func NewSender(timeout time.Duration) *Sender {
	return &Sender{
		client: &http.Client{Timeout: timeout},
	}
}

// Send delivers an event to a subscription's target and returns the result.
// The signature is computed over the exact serialized body bytes.
func (s *Sender) Send(ctx context.Context, sub *subscription.Subscription, evt *event.Event) Result {
	body, err := json.Marshal(envelope{
		ID:             evt.ID.String(),
		EventType:      evt.Type,
		Payload:        evt.Payload,
		ReceivedAt:     evt.ReceivedAt,
		IdempotencyKey: evt.IdempotencyKey,
	})
	if err != nil {
		return Result{Error: fmt.Sprintf("marshal envelope: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.TargetURL, bytes.NewReader(body))
	if err != nil {
		return Result{Error: fmt.Sprintf("create request: %v", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Event-Id", evt.ID.String())
	req.Header.Set("X-Event-Type", evt.Type)
	req.Header.Set("X-Signature", signature.Sign(body, sub.Secret))
	req.Header.Set("X-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := int(time.Since(start).Milliseconds())

	if err != nil {
		return Result{
			Error:     err.Error(),
			LatencyMs: latency,
		}
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, dlog.MaxResponseBody))
	if readErr != nil {
		return Result{
			StatusCode: resp.StatusCode,
			Error:      fmt.Sprintf("read response: %v", readErr),
			LatencyMs:  latency,
		}
	}

	return Result{
		StatusCode: resp.StatusCode,
		Response:   string(respBody),
		LatencyMs:  latency,
	}
}
