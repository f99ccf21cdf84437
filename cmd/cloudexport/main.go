package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hnakamur/errstack"
	"github.com/hnakamur/ltsvlog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/masa23/cloudexport"
)

const (
	defaultServiceName = "cloudexport"
	shutdownTimeout    = 30 * time.Second
)

func main() {
	var configFile string
	var once bool
	flag.StringVar(&configFile, "config", "./config.yaml", "config file path")
	flag.BoolVar(&once, "once", false, "emit one test span, flush and exit")
	flag.Parse()

	conf, err := cloudexport.LoadFile(configFile)
	if err != nil {
		panic(err)
	}

	// Error Log
	logFile, err := openLog(conf)
	if err != nil {
		panic(err)
	}
	defer logFile.Close()
	ltsvlog.Logger = ltsvlog.NewLTSVLogger(logFile, conf.Debug)
	ltsvlog.Logger.Info().Fmt("msg", "start cloudexport pid=%d", os.Getpid()).Log()

	cfg, err := conf.Builder().Build()
	if err != nil {
		ltsvlog.Logger.Err(errstack.WithLV(errstack.Errorf("%s err=%+v", "invalid configuration", err)))
		os.Exit(1)
	}

	serviceName := conf.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := initOtel(ctx, cfg, serviceName, conf.ExportInterval)
	if err != nil {
		ltsvlog.Logger.Err(errstack.WithLV(errstack.Errorf("%s err=%+v", "opentelemetry setup error", err)))
		os.Exit(1)
	}

	emitTestSpan(ctx, cfg)
	if !once {
		<-ctx.Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := shutdown(shutdownCtx); err != nil {
		ltsvlog.Logger.Err(errstack.WithLV(errstack.Errorf("%s err=%+v", "shutdown error", err)))
		os.Exit(1)
	}
	ltsvlog.Logger.Info().String("msg", "stop cloudexport").Log()
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func openLog(conf cloudexport.FileConfig) (io.WriteCloser, error) {
	if conf.ErrorLogFile == "" {
		return nopCloser{os.Stdout}, nil
	}
	return os.OpenFile(conf.ErrorLogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
}

func emitTestSpan(ctx context.Context, cfg cloudexport.Configuration) {
	_, span := otel.Tracer("github.com/masa23/cloudexport/cmd/cloudexport").Start(ctx, "cloudexport.start")
	span.SetAttributes(
		attribute.String("cloudexport.project", cfg.ProjectID()),
		attribute.String("cloudexport.descriptor_strategy", cfg.DescriptorStrategy().String()),
		attribute.Float64("cloudexport.deadline_seconds", cfg.Deadline().Seconds()),
	)
	span.End()
	ltsvlog.Logger.Debug().String("msg", "emitted test span").String("trace_id", span.SpanContext().TraceID().String()).Log()
}
