package main

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hnakamur/errstack"
	"github.com/hnakamur/ltsvlog"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/masa23/cloudexport"
	"github.com/masa23/cloudexport/exporter/cloudmonitoring"
	"github.com/masa23/cloudexport/exporter/cloudtrace"
)

const defaultExportInterval = time.Minute

// initOtel installs global tracer and meter providers exporting to Google Cloud
// and returns a function shutting both down.
func initOtel(ctx context.Context, cfg cloudexport.Configuration, serviceName string, interval time.Duration) (shutdown func(ctx context.Context) error, err error) {
	instanceID, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithOS(),
		resource.WithProcess(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceInstanceID(instanceID.String()),
		),
	)
	if err != nil {
		return nil, err
	}

	traceExporter, err := cloudtrace.New(ctx, cfg)
	if err != nil {
		return nil, errstack.WithLV(errstack.Errorf("failed to create Cloud Trace exporter project=%s err=%+v", cfg.ProjectID(), err))
	}
	metricExporter, err := cloudmonitoring.New(ctx, cfg)
	if err != nil {
		if err := traceExporter.Shutdown(ctx); err != nil {
			ltsvlog.Logger.Err(err)
		}
		return nil, errstack.WithLV(errstack.Errorf("failed to create Cloud Monitoring exporter project=%s err=%+v", cfg.ProjectID(), err))
	}

	if interval <= 0 {
		interval = defaultExportInterval
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	shutdown = func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}
	if err := runtime.Start(runtime.WithMeterProvider(mp), runtime.WithMinimumReadMemStatsInterval(time.Second)); err != nil {
		if err := shutdown(ctx); err != nil {
			ltsvlog.Logger.Err(err)
		}
		return nil, err
	}
	return shutdown, nil
}
