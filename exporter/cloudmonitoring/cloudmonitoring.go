// Package cloudmonitoring exports OpenTelemetry metrics to Google Cloud Monitoring.
//
// Exporter implements sdkmetric.Exporter and is meant to be driven by a
// sdkmetric.PeriodicReader. Every export writes all time series with a single
// CreateTimeSeries call; metric descriptors are created according to the
// configured DescriptorStrategy and their failures never fail an export.
package cloudmonitoring

import (
	"context"
	"sync"

	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	"github.com/hnakamur/errstack"
	"github.com/hnakamur/ltsvlog"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/masa23/cloudexport"
	"github.com/masa23/cloudexport/backend"
	"github.com/masa23/cloudexport/exporter"
	"github.com/masa23/cloudexport/internal/translator"
)

type Exporter struct {
	cfg        cloudexport.Configuration
	client     backend.MetricClient
	translator *translator.Translator
	state      exporter.State

	mu   sync.Mutex
	sent map[string]struct{}
}

var _ sdkmetric.Exporter = (*Exporter)(nil)

// New returns an Exporter writing through a live Cloud Monitoring client.
func New(ctx context.Context, cfg cloudexport.Configuration) (*Exporter, error) {
	client, err := backend.NewMetricClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithClient(cfg, client), nil
}

// NewWithClient returns an Exporter writing through client.
func NewWithClient(cfg cloudexport.Configuration, client backend.MetricClient) *Exporter {
	return &Exporter{
		cfg:        cfg,
		client:     client,
		translator: translator.FromConfiguration(cfg),
		sent:       make(map[string]struct{}),
	}
}

// Temporality returns cumulative for every instrument kind.
func (e *Exporter) Temporality(sdkmetric.InstrumentKind) metricdata.Temporality {
	return metricdata.CumulativeTemporality
}

func (e *Exporter) Aggregation(kind sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(kind)
}

// ExportResult writes rm and reports the outcome as a ResultCode.
func (e *Exporter) ExportResult(ctx context.Context, rm *metricdata.ResourceMetrics) exporter.ResultCode {
	return exporter.Result(e.Export(ctx, rm))
}

// Export writes every data point of rm with one CreateTimeSeries call. Nothing
// is sent when rm holds no data points.
func (e *Exporter) Export(ctx context.Context, rm *metricdata.ResourceMetrics) error {
	if e.state.Closed() {
		return exporter.ErrClosedExporter
	}
	if rm == nil {
		return nil
	}
	var metrics []metricdata.Metrics
	for _, sm := range rm.ScopeMetrics {
		metrics = append(metrics, sm.Metrics...)
	}
	if len(metrics) == 0 {
		return nil
	}

	projectID, prefix := e.cfg.ProjectID(), e.cfg.MetricPrefix()
	wire, dropped, err := exporter.Translate("metric", metrics, e.cfg.BatchPolicy(),
		func(m metricdata.Metrics) (translator.Metric, error) {
			return e.translator.Metric(m, projectID, prefix)
		})
	if err != nil {
		return err
	}

	var series []*monitoringpb.TimeSeries
	for _, m := range wire {
		series = append(series, m.TimeSeries...)
	}
	if len(series) == 0 {
		return nil
	}

	e.sendDescriptors(ctx, wire)
	if err := e.client.CreateTimeSeries(ctx, e.cfg.ProjectName(), series); err != nil {
		ltsvlog.Logger.Err(errstack.WithLV(errstack.Errorf("failed to create time series project=%s count=%d err=%+v",
			projectID, len(series), err)))
		return err
	}
	ltsvlog.Logger.Debug().Fmt("msg", "Exported %d time series to Cloud Monitoring", len(series)).Int("dropped", dropped).Log()
	return nil
}

func (e *Exporter) sendDescriptors(ctx context.Context, metrics []translator.Metric) {
	strategy := e.cfg.DescriptorStrategy()
	if strategy == cloudexport.NeverSend {
		return
	}
	for _, m := range metrics {
		md := m.Descriptor
		if strategy == cloudexport.SendOnce && e.isSent(md.Type) {
			continue
		}
		if err := e.client.CreateMetricDescriptor(ctx, e.cfg.ProjectName(), md); err != nil {
			ltsvlog.Logger.Err(errstack.WithLV(errstack.Errorf("failed to create metric descriptor type=%s err=%+v", md.Type, err)))
			continue
		}
		if strategy == cloudexport.SendOnce {
			e.markSent(md.Type)
		}
	}
}

func (e *Exporter) isSent(metricType string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sent[metricType]
	return ok
}

func (e *Exporter) markSent(metricType string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent[metricType] = struct{}{}
}

// ForceFlush always returns ErrFlushUnsupported: exports are synchronous, so
// there is nothing to flush.
func (e *Exporter) ForceFlush(context.Context) error {
	return exporter.ErrFlushUnsupported
}

// Flush always reports Failure.
func (e *Exporter) Flush() exporter.ResultCode {
	return exporter.Failure
}

// Shutdown closes the client. Only the first call closes it; later calls return
// ErrClosedExporter.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if !e.state.Close() {
		return exporter.ErrClosedExporter
	}
	ltsvlog.Logger.Info().String("msg", "cloudmonitoring exporter shutting down").Log()
	return e.client.Close()
}

// Stop is Shutdown reported as a ResultCode.
func (e *Exporter) Stop(ctx context.Context) exporter.ResultCode {
	return exporter.Result(e.Shutdown(ctx))
}
