package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumOf(t *testing.T, agg metricdata.Aggregation) int64 {
	t.Helper()
	sum, ok := agg.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum, got %T", agg)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewMetrics(mp)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordPing(ctx, nil)
	m.RecordPing(ctx, errors.New("boom"))
	m.RecordLocate(ctx, 2, nil)
	m.RecordIncident(ctx, "HIGH")
	m.RecordSweep(ctx, 20*time.Millisecond, nil)

	data := collect(t, reader)
	require.Equal(t, int64(2), sumOf(t, data["emerald.pings"]))
	require.Equal(t, int64(1), sumOf(t, data["emerald.locates"]))
	require.Equal(t, int64(1), sumOf(t, data["emerald.incidents"]))

	hist, ok := data["emerald.sweep.duration"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	require.Equal(t, uint64(1), hist.DataPoints[0].Count)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.RecordPing(context.Background(), nil)
		m.RecordSweep(context.Background(), time.Second, nil)
	})
	require.NotNil(t, NewNop())
}

func TestSetupMeterProvider_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := SetupMeterProvider(context.Background(), "emerald", "", true)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
