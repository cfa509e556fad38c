package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"

	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/telemetry"
)

func newManualProvider(t *testing.T) (*telemetry.MeterProvider, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{
		Enabled:     true,
		ServiceName: "itsm-sync-test",
		Reader:      reader,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return mp, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader, name string) metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m.Data
			}
		}
	}
	t.Fatalf("metric %s not collected", name)
	return nil
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		CollectorEndpoint: "localhost:14317",
		ServiceName:       "itsm-sync-test",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("itsm"), "a disabled provider still hands out no-op meters")
	assert.NoError(t, mp.Shutdown(ctx))
}

func TestNewMeterProvider_Exporter(t *testing.T) {
	if testing.Short() {
		t.Skip("needs an OTLP collector on localhost:14317")
	}
	ctx := context.Background()
	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           true,
		CollectorEndpoint: "localhost:14317",
		ExportInterval:    time.Second,
		ServiceName:       "itsm-sync-test",
		Insecure:          true,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, mp.IsEnabled())

	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_ = mp.Shutdown(shutdownCtx)
}

func TestCounter_CountsPerAttributeSet(t *testing.T) {
	mp, reader := newManualProvider(t)
	ctx := context.Background()

	counter, err := telemetry.NewCounter(mp.Meter("itsm"), "itsm_test_deliveries", "deliveries", "{delivery}")
	require.NoError(t, err)

	counter.Add(ctx, 2, telemetry.AttrPlatform.String("jira"))
	counter.Inc(ctx, telemetry.AttrPlatform.String("jira"))
	counter.Inc(ctx, telemetry.AttrPlatform.String("servicenow"))

	sum, ok := collect(t, reader, "itsm_test_deliveries").(metricdata.Sum[int64])
	require.True(t, ok)
	assert.True(t, sum.IsMonotonic)

	byPlatform := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(telemetry.AttrPlatform)
		byPlatform[v.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"jira": 3, "servicenow": 1}, byPlatform)
}

func TestHistogram_Boundaries(t *testing.T) {
	mp, reader := newManualProvider(t)
	ctx := context.Background()

	h, err := telemetry.NewHistogram(mp.Meter("itsm"), telemetry.HistogramOpts{
		Name:       "itsm_test_latency",
		Unit:       "s",
		Boundaries: []float64{0.1, 1, 10},
	})
	require.NoError(t, err)

	h.Record(ctx, 0.05)
	h.RecordDuration(ctx, 2*time.Second)
	h.RecordDuration(ctx, 30*time.Second)

	hist, ok := collect(t, reader, "itsm_test_latency").(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	dp := hist.DataPoints[0]
	assert.Equal(t, uint64(3), dp.Count)
	assert.Equal(t, []float64{0.1, 1, 10}, dp.Bounds)
	assert.Equal(t, []uint64{1, 0, 1, 1}, dp.BucketCounts)
}

func TestHistogram_DefaultBoundaries(t *testing.T) {
	mp, reader := newManualProvider(t)

	h, err := telemetry.NewHistogram(mp.Meter("itsm"), telemetry.HistogramOpts{Name: "itsm_test_sizes"})
	require.NoError(t, err)
	h.Record(context.Background(), 42)

	hist := collect(t, reader, "itsm_test_sizes").(metricdata.Histogram[float64])
	assert.NotEmpty(t, hist.DataPoints[0].Bounds)
}

func TestHTTPDurationBuckets_Ascending(t *testing.T) {
	for i := 1; i < len(telemetry.HTTPDurationBuckets); i++ {
		assert.Less(t, telemetry.HTTPDurationBuckets[i-1], telemetry.HTTPDurationBuckets[i])
	}
}
