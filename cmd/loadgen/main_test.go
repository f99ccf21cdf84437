package main

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/masa23/cloudexport"
	"github.com/masa23/cloudexport/backend"
	"github.com/masa23/cloudexport/exporter/cloudmonitoring"
	"github.com/masa23/cloudexport/exporter/cloudtrace"
)

func TestMain(m *testing.M) {
	os.Setenv("GOOGLE_CLOUD_PROJECT", "loadgen-project")
	os.Exit(m.Run())
}

func TestRun(t *testing.T) {
	cfg, err := cloudexport.NewBuilder().Build()
	require.NoError(t, err)

	traceClient := &backend.FakeTraceClient{}
	metricClient := &backend.FakeMetricClient{}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(cloudtrace.NewWithClient(cfg, traceClient)))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	g, err := newGenerator(tp, mp, 1)
	require.NoError(t, err)
	n, err := run(context.Background(), g, 200*time.Millisecond, 50)
	require.NoError(t, err)
	require.Greater(t, n, 0)

	spans := 0
	for _, req := range traceClient.Requests() {
		assert.Equal(t, "projects/loadgen-project", req.ProjectName)
		spans += len(req.Spans)
	}
	assert.Equal(t, n, spans)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	exp := cloudmonitoring.NewWithClient(cfg, metricClient)
	require.NoError(t, exp.Export(context.Background(), &rm))
	require.Len(t, metricClient.TimeSeriesRequests(), 1)
	assert.NotEmpty(t, metricClient.TimeSeriesRequests()[0].TimeSeries)
	assert.Len(t, metricClient.DescriptorRequests(), 3)

	require.NoError(t, tp.Shutdown(context.Background()))
	require.NoError(t, mp.Shutdown(context.Background()))
}

func TestRunCancelled(t *testing.T) {
	g, err := newGenerator(sdktrace.NewTracerProvider(), sdkmetric.NewMeterProvider(), 7)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	begin := time.Now()
	_, err = run(ctx, g, time.Hour, 20)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(begin), 10*time.Second)
}

func TestRunInvalidRate(t *testing.T) {
	g, err := newGenerator(sdktrace.NewTracerProvider(), sdkmetric.NewMeterProvider(), 7)
	require.NoError(t, err)
	n, err := run(context.Background(), g, time.Second, 0)
	assert.Error(t, err)
	assert.Zero(t, n)
}

func TestNewRequest(t *testing.T) {
	g, err := newGenerator(sdktrace.NewTracerProvider(), sdkmetric.NewMeterProvider(), 42)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		r := g.newRequest()
		assert.Contains(t, statusCodes, r.Status)
		assert.Contains(t, []string{"http", "https"}, r.Scheme)
		assert.Less(t, r.BytesSent, 10000)
		assert.Less(t, r.Latency, time.Second)
	}
}
