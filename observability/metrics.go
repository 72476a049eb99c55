// Package observability holds the relay's metric instruments and tracing
// helpers.
package observability

import (
	gu "github.com/xraph/go-utils/metrics"
)

// Metrics holds metric instruments for the relay, backed by any go-utils
// MetricFactory.
type Metrics struct {
	EventsReceivedTotal  gu.Counter
	EventsDuplicateTotal gu.Counter
	EventsRejectedTotal  gu.Counter
	DeliveriesTotal      gu.Counter
	DeliveryLatency      gu.Histogram
	DeliveriesDropped    gu.Counter
	QueueDepth           gu.Gauge
	FailedJobs           gu.Gauge
}

// NewMetrics creates relay metric instruments using the supplied factory.
// Pass metrics.NewMetricsCollector(name) for standalone usage.
func NewMetrics(factory gu.MetricFactory) *Metrics {
	return &Metrics{
		EventsReceivedTotal:  factory.Counter("hookline_events_received_total"),
		EventsDuplicateTotal: factory.Counter("hookline_events_duplicate_total"),
		EventsRejectedTotal:  factory.Counter("hookline_events_rejected_total"),
		DeliveriesTotal:      factory.Counter("hookline_deliveries_total"),
		DeliveryLatency:      factory.Histogram("hookline_delivery_latency_seconds"),
		DeliveriesDropped:    factory.Counter("hookline_deliveries_dropped_total"),
		QueueDepth:           factory.Gauge("hookline_queue_depth"),
		FailedJobs:           factory.Gauge("hookline_failed_jobs"),
	}
}

// RecordDelivery records a delivery attempt with the given status and latency.
func (m *Metrics) RecordDelivery(status string, latencySeconds float64) {
	m.DeliveriesTotal.WithLabels(map[string]string{"status": status}).Inc()
	m.DeliveryLatency.Observe(latencySeconds)
}

// RecordDrop records a delivery dropped without an attempt.
func (m *Metrics) RecordDrop(reason string) {
	m.DeliveriesDropped.WithLabels(map[string]string{"reason": reason}).Inc()
}

// RecordQueueDepth records the current depth of a topic.
func (m *Metrics) RecordQueueDepth(topic string, depth int64) {
	m.QueueDepth.WithLabels(map[string]string{"topic": topic}).Set(float64(depth))
}

// RecordFailedJobs records the number of permanently failed jobs on a topic.
func (m *Metrics) RecordFailedJobs(topic string, n int64) {
	m.FailedJobs.WithLabels(map[string]string{"topic": topic}).Set(float64(n))
}
