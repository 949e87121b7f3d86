package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "fastfare/tracking"

// Metrics holds the tracking instruments. A nil *Metrics records nothing.
type Metrics struct {
	reportsAccepted  metric.Int64Counter
	reportsDropped   metric.Int64Counter
	deliveries       metric.Int64Counter
	deliveriesFailed metric.Int64Counter
	sessionsOpen     metric.Int64UpDownCounter
	fleetViewMs      metric.Float64Histogram
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	m := mp.Meter(meterName)

	var (
		out Metrics
		err error
	)
	if out.reportsAccepted, err = m.Int64Counter("tracking.reports.accepted",
		metric.WithDescription("Position reports accepted into the store")); err != nil {
		return nil, err
	}
	if out.reportsDropped, err = m.Int64Counter("tracking.reports.dropped",
		metric.WithDescription("Position reports dropped before the store")); err != nil {
		return nil, err
	}
	if out.deliveries, err = m.Int64Counter("tracking.deliveries",
		metric.WithDescription("Frames enqueued to subscribers")); err != nil {
		return nil, err
	}
	if out.deliveriesFailed, err = m.Int64Counter("tracking.deliveries.failed",
		metric.WithDescription("Subscribers pruned after a failed enqueue")); err != nil {
		return nil, err
	}
	if out.sessionsOpen, err = m.Int64UpDownCounter("tracking.sessions.open",
		metric.WithDescription("Open WebSocket sessions")); err != nil {
		return nil, err
	}
	if out.fleetViewMs, err = m.Float64Histogram("tracking.fleet_view.duration",
		metric.WithDescription("Fleet view computation time"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *Metrics) ReportAccepted(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.reportsAccepted.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

func (m *Metrics) ReportDropped(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.reportsDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) Delivered(ctx context.Context, topicKind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.deliveries.Add(ctx, int64(n), metric.WithAttributes(attribute.String("topic", topicKind)))
}

func (m *Metrics) DeliveryFailed(ctx context.Context) {
	if m == nil {
		return
	}
	m.deliveriesFailed.Add(ctx, 1)
}

func (m *Metrics) SessionOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessionsOpen.Add(ctx, 1)
}

func (m *Metrics) SessionClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessionsOpen.Add(ctx, -1)
}

func (m *Metrics) FleetViewDuration(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.fleetViewMs.Record(ctx, float64(d)/float64(time.Millisecond))
}
