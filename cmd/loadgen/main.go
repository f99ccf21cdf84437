package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hnakamur/ltsvlog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/masa23/cloudexport"
	"github.com/masa23/cloudexport/exporter/cloudmonitoring"
	"github.com/masa23/cloudexport/exporter/cloudtrace"
)

const instrumentationName = "github.com/masa23/cloudexport/cmd/loadgen"

func main() {
	configFile := flag.String("config", "./config.yaml", "config file path")
	duration := flag.String("duration", "1m", "duration")
	requestPerSec := flag.Int("request-per-sec", 100, "synthetic request count per second")
	flag.Parse()

	d, err := time.ParseDuration(*duration)
	if err != nil {
		log.Fatal(err)
	}
	conf, err := cloudexport.LoadFile(*configFile)
	if err != nil {
		log.Fatal(err)
	}
	ltsvlog.Logger = ltsvlog.NewLTSVLogger(os.Stderr, conf.Debug)
	cfg, err := conf.Builder().Build()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	traceExporter, err := cloudtrace.New(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	metricExporter, err := cloudmonitoring.New(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)))

	g, err := newGenerator(tp, mp, time.Now().UnixNano())
	if err != nil {
		log.Fatal(err)
	}
	n, err := run(ctx, g, d, *requestPerSec)
	if err != nil {
		log.Fatal(err)
	}
	ltsvlog.Logger.Info().Fmt("msg", "generated %d requests", n).Log()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := errors.Join(tp.Shutdown(shutdownCtx), mp.Shutdown(shutdownCtx)); err != nil {
		log.Fatal(err)
	}
}

// run emits requests at requestPerSec until duration elapses and returns how
// many were emitted. Cancelling ctx stops the run with ctx's error.
func run(ctx context.Context, g *generator, duration time.Duration, requestPerSec int) (int, error) {
	if requestPerSec <= 0 {
		return 0, fmt.Errorf("request-per-sec must be positive, got %d", requestPerSec)
	}
	limiter := rate.NewLimiter(rate.Limit(requestPerSec), 1)
	interval := time.Second / time.Duration(requestPerSec)
	runCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()
	deadline, _ := runCtx.Deadline()

	n := 0
	for {
		if err := limiter.Wait(runCtx); err != nil {
			if ctx.Err() != nil {
				return n, ctx.Err()
			}
			// Wait also fails early when the next token would come after the deadline.
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) || time.Until(deadline) < interval {
				return n, nil
			}
			return n, err
		}
		g.emit(runCtx, g.newRequest())
		n++
	}
}

type request struct {
	Status      int
	Scheme      string
	CacheStatus string
	BytesSent   int
	Latency     time.Duration
}

func (r request) attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int("http.status_code", r.Status),
		attribute.String("http.scheme", r.Scheme),
		attribute.String("cache.status", r.CacheStatus),
		attribute.Int("http.response_content_length", r.BytesSent),
	}
}

var statusCodes = []int{
	http.StatusOK,
	http.StatusCreated,
	http.StatusNoContent,
	http.StatusPartialContent,
	http.StatusMovedPermanently,
	http.StatusFound,
	http.StatusNotModified,
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

type generator struct {
	rand     *rand.Rand
	tracer   trace.Tracer
	requests metric.Int64Counter
	bytes    metric.Int64Counter
	latency  metric.Float64Histogram
}

func newGenerator(tp trace.TracerProvider, mp metric.MeterProvider, seed int64) (*generator, error) {
	meter := mp.Meter(instrumentationName)
	requests, err := meter.Int64Counter("loadgen.requests",
		metric.WithDescription("Synthetic requests"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	bytes, err := meter.Int64Counter("loadgen.bytes_sent",
		metric.WithDescription("Bytes sent by synthetic requests"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("loadgen.latency",
		metric.WithDescription("Synthetic request latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &generator{
		rand:     rand.New(rand.NewSource(seed)),
		tracer:   tp.Tracer(instrumentationName),
		requests: requests,
		bytes:    bytes,
		latency:  latency,
	}, nil
}

func (g *generator) newRequest() request {
	return request{
		Status:      statusCodes[g.rand.Intn(len(statusCodes))],
		Scheme:      []string{"http", "https"}[g.rand.Intn(2)],
		CacheStatus: []string{"HIT", "MISS"}[g.rand.Intn(2)],
		BytesSent:   g.rand.Intn(10000),
		Latency:     time.Duration(g.rand.Int63n(int64(time.Second))),
	}
}

// emit records r as one server span ending now plus its metrics.
func (g *generator) emit(ctx context.Context, r request) {
	end := time.Now()
	_, span := g.tracer.Start(ctx, "GET /",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithTimestamp(end.Add(-r.Latency)),
		trace.WithAttributes(r.attributes()...),
	)
	if r.Status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(r.Status))
	}
	span.End(trace.WithTimestamp(end))

	labels := metric.WithAttributes(
		attribute.Int("http.status_code", r.Status),
		attribute.String("cache.status", r.CacheStatus),
	)
	g.requests.Add(ctx, 1, labels)
	g.bytes.Add(ctx, int64(r.BytesSent), labels)
	g.latency.Record(ctx, r.Latency.Seconds(), labels)
}
