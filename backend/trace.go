package backend

import (
	"context"
	"sync"
	"time"

	trace "cloud.google.com/go/trace/apiv2"
	"cloud.google.com/go/trace/apiv2/tracepb"
	"github.com/hnakamur/ltsvlog"

	"github.com/masa23/cloudexport"
)

type traceClient struct {
	client    *trace.Client
	deadline  time.Duration
	ownsConn  bool
	closeOnce sync.Once
	closeErr  error
}

var _ TraceClient = (*traceClient)(nil)

// NewTraceClient returns a live Cloud Trace client built from cfg.
// It fails with a *cloudexport.CredentialError when no connection is injected
// and no credentials can be found.
func NewTraceClient(ctx context.Context, cfg cloudexport.Configuration) (TraceClient, error) {
	opts, ownsConn, err := clientOptions(ctx, cfg, trace.DefaultAuthScopes())
	if err != nil {
		return nil, err
	}
	client, err := trace.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	ltsvlog.Logger.Debug().String("msg", "created Cloud Trace client").String("project", cfg.ProjectID()).Log()
	return &traceClient{client: client, deadline: cfg.Deadline(), ownsConn: ownsConn}, nil
}

func (c *traceClient) BatchWriteSpans(ctx context.Context, projectName string, spans []*tracepb.Span) error {
	ctx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()
	return c.client.BatchWriteSpans(ctx, &tracepb.BatchWriteSpansRequest{
		Name:  projectName,
		Spans: spans,
	}, noRetry)
}

func (c *traceClient) Close() error {
	c.closeOnce.Do(func() {
		if c.ownsConn {
			c.closeErr = c.client.Close()
		}
	})
	return c.closeErr
}
