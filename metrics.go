package eventsource

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// scopeName is the instrumentation scope used for metrics and traces.
const scopeName = "github.com/kbukum/eventsource"

// clientMetrics records client activity through the global OpenTelemetry
// meter provider. With no provider installed every instrument is a no-op.
type clientMetrics struct {
	events     metric.Int64Counter
	reconnects metric.Int64Counter
	duration   metric.Float64Histogram
	attrs      []attribute.KeyValue
}

func newClientMetrics(name string) *clientMetrics {
	meter := otel.Meter(scopeName)
	m := &clientMetrics{}
	m.events, _ = meter.Int64Counter("eventsource.events",
		metric.WithDescription("Events received from the stream"))
	m.reconnects, _ = meter.Int64Counter("eventsource.reconnects",
		metric.WithDescription("Reconnection attempts after a failed or closed connection"))
	m.duration, _ = meter.Float64Histogram("eventsource.connection.duration",
		metric.WithDescription("Lifetime of established stream connections"),
		metric.WithUnit("s"))
	if name != "" {
		m.attrs = append(m.attrs, attribute.String("client", name))
	}
	return m
}

func (m *clientMetrics) eventReceived(event string) {
	attrs := append([]attribute.KeyValue{attribute.String("event", event)}, m.attrs...)
	m.events.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

func (m *clientMetrics) reconnectScheduled() {
	m.reconnects.Add(context.Background(), 1, metric.WithAttributes(m.attrs...))
}

func (m *clientMetrics) connectionEnded(connectedAt time.Time) {
	if connectedAt.IsZero() {
		return
	}
	m.duration.Record(context.Background(), time.Since(connectedAt).Seconds(),
		metric.WithAttributes(m.attrs...))
}
