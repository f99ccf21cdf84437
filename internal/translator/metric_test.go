package translator

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	metricpb "google.golang.org/genproto/googleapis/api/metric"

	"github.com/masa23/cloudexport"
)

const prefix = "workload.googleapis.com"

func TestMetricGauge(t *testing.T) {
	m := metricdata.Metrics{
		Name:        "queue.depth",
		Description: "items waiting",
		Unit:        "{item}",
		Data: metricdata.Gauge[int64]{DataPoints: []metricdata.DataPoint[int64]{
			{Attributes: attribute.NewSet(attribute.String("queue", "a")), Time: end, Value: 7},
			{Attributes: attribute.NewSet(attribute.String("queue", "b")), Time: end, Value: 9},
		}},
	}
	out, err := plain().Metric(m, "proj-1", prefix)
	require.NoError(t, err)
	require.Len(t, out.TimeSeries, 2)

	ts := out.TimeSeries[0]
	assert.Equal(t, "workload.googleapis.com/queue.depth", ts.GetMetric().GetType())
	assert.Equal(t, map[string]string{"queue": "a"}, ts.GetMetric().GetLabels())
	assert.Equal(t, "global", ts.GetResource().GetType())
	assert.Equal(t, "proj-1", ts.GetResource().GetLabels()["project_id"])
	assert.Equal(t, metricpb.MetricDescriptor_GAUGE, ts.GetMetricKind())
	assert.Equal(t, metricpb.MetricDescriptor_INT64, ts.GetValueType())
	assert.Equal(t, "{item}", ts.GetUnit())
	require.Len(t, ts.GetPoints(), 1)
	assert.Equal(t, int64(7), ts.GetPoints()[0].GetValue().GetInt64Value())
	assert.Nil(t, ts.GetPoints()[0].GetInterval().GetStartTime())
	assert.Equal(t, end, ts.GetPoints()[0].GetInterval().GetEndTime().AsTime())

	md := out.Descriptor
	assert.Equal(t, "workload.googleapis.com/queue.depth", md.GetType())
	assert.Equal(t, "queue.depth", md.GetDisplayName())
	assert.Equal(t, "items waiting", md.GetDescription())
	assert.Equal(t, metricpb.MetricDescriptor_GAUGE, md.GetMetricKind())
	require.Len(t, md.GetLabels(), 1)
	assert.Equal(t, "queue", md.GetLabels()[0].GetKey())
}

func TestMetricSum(t *testing.T) {
	monotonic := metricdata.Metrics{
		Name: "requests",
		Data: metricdata.Sum[float64]{
			IsMonotonic: true,
			Temporality: metricdata.CumulativeTemporality,
			DataPoints: []metricdata.DataPoint[float64]{
				{StartTime: start, Time: end, Value: 1.5},
			},
		},
	}
	out, err := plain().Metric(monotonic, "proj-1", prefix)
	require.NoError(t, err)
	require.Len(t, out.TimeSeries, 1)
	ts := out.TimeSeries[0]
	assert.Equal(t, metricpb.MetricDescriptor_CUMULATIVE, ts.GetMetricKind())
	assert.Equal(t, metricpb.MetricDescriptor_DOUBLE, ts.GetValueType())
	assert.Equal(t, 1.5, ts.GetPoints()[0].GetValue().GetDoubleValue())
	assert.Equal(t, start, ts.GetPoints()[0].GetInterval().GetStartTime().AsTime())

	updown := metricdata.Metrics{
		Name: "connections",
		Data: metricdata.Sum[int64]{
			IsMonotonic: false,
			DataPoints:  []metricdata.DataPoint[int64]{{StartTime: start, Time: end, Value: -2}},
		},
	}
	out, err = plain().Metric(updown, "proj-1", prefix)
	require.NoError(t, err)
	ts = out.TimeSeries[0]
	assert.Equal(t, metricpb.MetricDescriptor_GAUGE, ts.GetMetricKind())
	assert.Equal(t, int64(-2), ts.GetPoints()[0].GetValue().GetInt64Value())
	assert.Nil(t, ts.GetPoints()[0].GetInterval().GetStartTime())
}

func TestMetricHistogram(t *testing.T) {
	m := metricdata.Metrics{
		Name: "latency",
		Unit: "ms",
		Data: metricdata.Histogram[int64]{
			Temporality: metricdata.CumulativeTemporality,
			DataPoints: []metricdata.HistogramDataPoint[int64]{{
				StartTime:    start,
				Time:         end,
				Count:        4,
				Sum:          100,
				Bounds:       []float64{10, 50},
				BucketCounts: []uint64{1, 2, 1},
			}},
		},
	}
	out, err := plain().Metric(m, "proj-1", prefix)
	require.NoError(t, err)
	ts := out.TimeSeries[0]
	assert.Equal(t, metricpb.MetricDescriptor_CUMULATIVE, ts.GetMetricKind())
	assert.Equal(t, metricpb.MetricDescriptor_DISTRIBUTION, ts.GetValueType())

	d := ts.GetPoints()[0].GetValue().GetDistributionValue()
	require.NotNil(t, d)
	assert.Equal(t, int64(4), d.GetCount())
	assert.Equal(t, 25.0, d.GetMean())
	assert.Equal(t, []int64{1, 2, 1}, d.GetBucketCounts())
	assert.Equal(t, []float64{10, 50}, d.GetBucketOptions().GetExplicitBuckets().GetBounds())
}

func TestMetricUnsupportedAggregation(t *testing.T) {
	m := metricdata.Metrics{
		Name: "exp",
		Data: metricdata.ExponentialHistogram[float64]{},
	}
	_, err := plain().Metric(m, "proj-1", prefix)
	var terr *cloudexport.TranslationError
	require.True(t, errors.As(err, &terr), "expected TranslationError, got %v", err)
	assert.Contains(t, terr.Record, "exp")
}

func TestMetricLabels(t *testing.T) {
	var kvs []attribute.KeyValue
	for i := 0; i < maxLabels+5; i++ {
		kvs = append(kvs, attribute.Int(fmt.Sprintf("label_%02d", i), i))
	}
	kvs = append(kvs,
		attribute.Float64("a.ratio", 3.14),
		attribute.Bool("0flag", true),
	)
	got := labels(attribute.NewSet(kvs...))
	assert.Len(t, got, maxLabels)
	assert.Equal(t, "3.14", got["a_ratio"])
	assert.Equal(t, "true", got["key_0flag"])

	long := labels(attribute.NewSet(attribute.String("v", strings.Repeat("x", maxLabelValueBytes+1))))
	assert.Len(t, long["v"], maxLabelValueBytes)
}

func TestSanitizeLabelKey(t *testing.T) {
	testCases := map[string]string{
		"http.method":  "http_method",
		"service-name": "service_name",
		"ok_key":       "ok_key",
		"9lives":       "key_9lives",
		"":             "",
		"café.name":    "caf__name",
		"ключ":         "____",
		"日本":           "__",
		"٣abc":         "_abc",
	}
	for in, want := range testCases {
		assert.Equal(t, want, sanitizeLabelKey(in), "sanitizeLabelKey(%q)", in)
	}
}

func TestMetricType(t *testing.T) {
	assert.Equal(t, "custom.googleapis.com/x", MetricType("custom.googleapis.com/", "x"))
	assert.Equal(t, "workload.googleapis.com/x", MetricType(prefix, "x"))
}

func TestMetricTimeSeriesShareResource(t *testing.T) {
	m := metricdata.Metrics{
		Name: "g",
		Data: metricdata.Gauge[float64]{DataPoints: []metricdata.DataPoint[float64]{{Time: end, Value: 1}, {Time: end, Value: 2}}},
	}
	out, err := plain().Metric(m, "proj-9", prefix)
	require.NoError(t, err)
	for _, ts := range out.TimeSeries {
		assert.IsType(t, &monitoringpb.TypedValue_DoubleValue{}, ts.GetPoints()[0].GetValue().GetValue())
		assert.Equal(t, "proj-9", ts.GetResource().GetLabels()["project_id"])
	}
}
