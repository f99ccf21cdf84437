package backend

import (
	"context"
	"sync"
	"time"

	monitoring "cloud.google.com/go/monitoring/apiv3/v2"
	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	"github.com/hnakamur/ltsvlog"
	metricpb "google.golang.org/genproto/googleapis/api/metric"

	"github.com/masa23/cloudexport"
)

type metricClient struct {
	client    *monitoring.MetricClient
	deadline  time.Duration
	ownsConn  bool
	closeOnce sync.Once
	closeErr  error
}

var _ MetricClient = (*metricClient)(nil)

// NewMetricClient returns a live Cloud Monitoring client built from cfg.
func NewMetricClient(ctx context.Context, cfg cloudexport.Configuration) (MetricClient, error) {
	opts, ownsConn, err := clientOptions(ctx, cfg, monitoring.DefaultAuthScopes())
	if err != nil {
		return nil, err
	}
	client, err := monitoring.NewMetricClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	ltsvlog.Logger.Debug().String("msg", "created Cloud Monitoring client").String("project", cfg.ProjectID()).Log()
	return &metricClient{client: client, deadline: cfg.Deadline(), ownsConn: ownsConn}, nil
}

func (c *metricClient) CreateTimeSeries(ctx context.Context, projectName string, series []*monitoringpb.TimeSeries) error {
	ctx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()
	return c.client.CreateTimeSeries(ctx, &monitoringpb.CreateTimeSeriesRequest{
		Name:       projectName,
		TimeSeries: series,
	}, noRetry)
}

func (c *metricClient) CreateMetricDescriptor(ctx context.Context, projectName string, md *metricpb.MetricDescriptor) error {
	ctx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()
	_, err := c.client.CreateMetricDescriptor(ctx, &monitoringpb.CreateMetricDescriptorRequest{
		Name:             projectName,
		MetricDescriptor: md,
	}, noRetry)
	return err
}

func (c *metricClient) Close() error {
	c.closeOnce.Do(func() {
		if c.ownsConn {
			c.closeErr = c.client.Close()
		}
	})
	return c.closeErr
}
