// Package cloudtrace exports OpenTelemetry spans to Google Cloud Trace.
//
// Exporter implements sdktrace.SpanExporter. Every export is translated and
// written with a single BatchWriteSpans call on the calling goroutine; nothing is
// buffered and nothing is retried. The SDK must not call ExportSpans
// concurrently with Shutdown.
package cloudtrace

import (
	"context"

	"cloud.google.com/go/trace/apiv2/tracepb"
	"github.com/hnakamur/errstack"
	"github.com/hnakamur/ltsvlog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/masa23/cloudexport"
	"github.com/masa23/cloudexport/backend"
	"github.com/masa23/cloudexport/exporter"
	"github.com/masa23/cloudexport/internal/translator"
)

type Exporter struct {
	cfg        cloudexport.Configuration
	client     backend.TraceClient
	translator *translator.Translator
	state      exporter.State
}

var _ sdktrace.SpanExporter = (*Exporter)(nil)

// New returns an Exporter writing through a live Cloud Trace client.
// Credential and connection errors are returned here, never during export.
func New(ctx context.Context, cfg cloudexport.Configuration) (*Exporter, error) {
	client, err := backend.NewTraceClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithClient(cfg, client), nil
}

// NewWithClient returns an Exporter writing through client.
func NewWithClient(cfg cloudexport.Configuration, client backend.TraceClient) *Exporter {
	return &Exporter{
		cfg:        cfg,
		client:     client,
		translator: translator.FromConfiguration(cfg),
	}
}

// Export writes spans and reports the outcome as a ResultCode.
func (e *Exporter) Export(ctx context.Context, spans []sdktrace.ReadOnlySpan) exporter.ResultCode {
	return exporter.Result(e.ExportSpans(ctx, spans))
}

// ExportSpans writes spans with one BatchWriteSpans call. An empty batch is not
// sent.
func (e *Exporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if e.state.Closed() {
		return exporter.ErrClosedExporter
	}
	if len(spans) == 0 {
		return nil
	}

	projectID := e.cfg.ProjectID()
	wire, dropped, err := exporter.Translate("span", spans, e.cfg.BatchPolicy(),
		func(s sdktrace.ReadOnlySpan) (*tracepb.Span, error) {
			return e.translator.Span(s, projectID)
		})
	if err != nil {
		return err
	}

	if err := e.client.BatchWriteSpans(ctx, e.cfg.ProjectName(), wire); err != nil {
		ltsvlog.Logger.Err(errstack.WithLV(errstack.Errorf("failed to write spans project=%s count=%d err=%+v",
			projectID, len(wire), err)))
		return err
	}
	ltsvlog.Logger.Debug().Fmt("msg", "Exported %d spans to Cloud Trace", len(wire)).Int("dropped", dropped).Log()
	return nil
}

// Flush always reports Failure: exports are synchronous, so there is nothing to
// flush.
func (e *Exporter) Flush() exporter.ResultCode {
	return exporter.Failure
}

// Shutdown closes the client. Only the first call closes it; later calls return
// ErrClosedExporter.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if !e.state.Close() {
		return exporter.ErrClosedExporter
	}
	ltsvlog.Logger.Info().String("msg", "cloudtrace exporter shutting down").Log()
	return e.client.Close()
}

// Stop is Shutdown reported as a ResultCode.
func (e *Exporter) Stop(ctx context.Context) exporter.ResultCode {
	return exporter.Result(e.Shutdown(ctx))
}
