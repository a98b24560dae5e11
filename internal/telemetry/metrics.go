package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/vladcalin/emerald"

// Metrics holds the registry instruments.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	pings         metric.Int64Counter
	locates       metric.Int64Counter
	incidents     metric.Int64Counter
	sweepDuration metric.Float64Histogram
}

// NewMetrics creates the instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)

	pings, err := meter.Int64Counter("emerald.pings",
		metric.WithUnit("{ping}"),
		metric.WithDescription("Heartbeats received, by result"))
	if err != nil {
		return nil, fmt.Errorf("failed to create pings counter: %w", err)
	}

	locates, err := meter.Int64Counter("emerald.locates",
		metric.WithUnit("{query}"),
		metric.WithDescription("Locate queries served, by result"))
	if err != nil {
		return nil, fmt.Errorf("failed to create locates counter: %w", err)
	}

	incidents, err := meter.Int64Counter("emerald.incidents",
		metric.WithUnit("{incident}"),
		metric.WithDescription("Liveness transitions recorded, by severity"))
	if err != nil {
		return nil, fmt.Errorf("failed to create incidents counter: %w", err)
	}

	sweepDuration, err := meter.Float64Histogram("emerald.sweep.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of liveness sweeps"))
	if err != nil {
		return nil, fmt.Errorf("failed to create sweep histogram: %w", err)
	}

	return &Metrics{
		pings:         pings,
		locates:       locates,
		incidents:     incidents,
		sweepDuration: sweepDuration,
	}, nil
}

// NewNop returns metrics backed by a no-op provider.
func NewNop() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider())
	return m
}

func (m *Metrics) RecordPing(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.pings.Add(ctx, 1, metric.WithAttributes(resultAttr(err)))
}

func (m *Metrics) RecordLocate(ctx context.Context, matches int, err error) {
	if m == nil {
		return
	}
	m.locates.Add(ctx, 1, metric.WithAttributes(
		resultAttr(err),
		attribute.Bool("found", matches > 0)))
}

func (m *Metrics) RecordIncident(ctx context.Context, severity string) {
	if m == nil {
		return
	}
	m.incidents.Add(ctx, 1, metric.WithAttributes(attribute.String("severity", severity)))
}

func (m *Metrics) RecordSweep(ctx context.Context, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.sweepDuration.Record(ctx, d.Seconds(), metric.WithAttributes(resultAttr(err)))
}

func resultAttr(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("result", "error")
	}
	return attribute.String("result", "ok")
}
