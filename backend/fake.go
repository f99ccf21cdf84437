package backend

import (
	"context"
	"sync"

	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	"cloud.google.com/go/trace/apiv2/tracepb"
	metricpb "google.golang.org/genproto/googleapis/api/metric"
)

// TraceRequest is one recorded BatchWriteSpans call.
type TraceRequest struct {
	ProjectName string
	Spans       []*tracepb.Span
}

// FakeTraceClient records calls and never performs I/O.
type FakeTraceClient struct {
	mu       sync.Mutex
	err      error
	requests []TraceRequest
	closed   int
}

var _ TraceClient = (*FakeTraceClient)(nil)

// SetError makes every following BatchWriteSpans call fail with err.
func (f *FakeTraceClient) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *FakeTraceClient) BatchWriteSpans(_ context.Context, projectName string, spans []*tracepb.Span) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, TraceRequest{
		ProjectName: projectName,
		Spans:       append([]*tracepb.Span(nil), spans...),
	})
	return f.err
}

func (f *FakeTraceClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// Requests returns the recorded calls in order.
func (f *FakeTraceClient) Requests() []TraceRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]TraceRequest(nil), f.requests...)
}

// CloseCount returns how many times Close was called.
func (f *FakeTraceClient) CloseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// TimeSeriesRequest is one recorded CreateTimeSeries call.
type TimeSeriesRequest struct {
	ProjectName string
	TimeSeries  []*monitoringpb.TimeSeries
}

// DescriptorRequest is one recorded CreateMetricDescriptor call.
type DescriptorRequest struct {
	ProjectName string
	Descriptor  *metricpb.MetricDescriptor
}

// FakeMetricClient records calls and never performs I/O.
type FakeMetricClient struct {
	mu            sync.Mutex
	err           error
	descriptorErr error
	series        []TimeSeriesRequest
	descriptors   []DescriptorRequest
	closed        int
}

var _ MetricClient = (*FakeMetricClient)(nil)

// SetError makes every following CreateTimeSeries call fail with err.
func (f *FakeMetricClient) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// SetDescriptorError makes every following CreateMetricDescriptor call fail with err.
func (f *FakeMetricClient) SetDescriptorError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.descriptorErr = err
}

func (f *FakeMetricClient) CreateTimeSeries(_ context.Context, projectName string, series []*monitoringpb.TimeSeries) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.series = append(f.series, TimeSeriesRequest{
		ProjectName: projectName,
		TimeSeries:  append([]*monitoringpb.TimeSeries(nil), series...),
	})
	return f.err
}

func (f *FakeMetricClient) CreateMetricDescriptor(_ context.Context, projectName string, md *metricpb.MetricDescriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.descriptors = append(f.descriptors, DescriptorRequest{ProjectName: projectName, Descriptor: md})
	return f.descriptorErr
}

func (f *FakeMetricClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// TimeSeriesRequests returns the recorded CreateTimeSeries calls in order.
func (f *FakeMetricClient) TimeSeriesRequests() []TimeSeriesRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]TimeSeriesRequest(nil), f.series...)
}

// DescriptorRequests returns the recorded CreateMetricDescriptor calls in order.
func (f *FakeMetricClient) DescriptorRequests() []DescriptorRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]DescriptorRequest(nil), f.descriptors...)
}

func (f *FakeMetricClient) CloseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
