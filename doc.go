// Package hookline is a durable event relay: producers POST events once,
// hookline persists them, fans them out to every active subscription of the
// event's type, and delivers each copy over HTTP with signed payloads,
// bounded retries, and a per-attempt audit trail.
//
// The pipeline has three stages, decoupled by a job queue:
//
//  1. Ingestion validates and persists the event. The idempotency key makes
//     retried submissions safe: the same key always maps to the same event.
//  2. Fan-out expands one accepted event into one delivery job per active
//     subscription of its type.
//  3. Delivery POSTs a signed envelope to the subscriber, retrying failures
//     with exponential backoff up to the attempt budget. Every attempt is
//     recorded as an append-only delivery log row.
//
// Quick start:
//
//	svc, err := hookline.New(
//	    hookline.WithStore(memory.New()),
//	    hookline.WithQueue(memq.New(queue.DefaultConfig(), nil)),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc.Start(ctx)
//
//	evt, dup, err := svc.Ingest(ctx, hookline.IngestInput{
//	    IdempotencyKey: "order-1234-created",
//	    EventType:      "order.created",
//	    Payload:        json.RawMessage(`{"order_id": 1234}`),
//	})
package hookline
