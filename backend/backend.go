// Package backend is the narrow client surface the exporters use to reach Cloud
// Trace and Cloud Monitoring. Live clients wrap the Google Cloud API clients and
// enforce the configured deadline with a single attempt; fake clients record
// calls for tests.
package backend

import (
	"context"

	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	"cloud.google.com/go/trace/apiv2/tracepb"
	"github.com/googleapis/gax-go/v2"
	metricpb "google.golang.org/genproto/googleapis/api/metric"
)

// TraceClient writes spans to Cloud Trace.
type TraceClient interface {
	// BatchWriteSpans writes spans under projectName ("projects/{id}").
	BatchWriteSpans(ctx context.Context, projectName string, spans []*tracepb.Span) error
	// Close releases the transport. A connection injected with
	// cloudexport.Builder.SetConn is left open.
	Close() error
}

// MetricClient writes time series and metric descriptors to Cloud Monitoring.
type MetricClient interface {
	CreateTimeSeries(ctx context.Context, projectName string, series []*monitoringpb.TimeSeries) error
	CreateMetricDescriptor(ctx context.Context, projectName string, md *metricpb.MetricDescriptor) error
	Close() error
}

// noRetry makes every call a single attempt.
var noRetry = gax.WithRetry(func() gax.Retryer { return nil })
