package translator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"google.golang.org/genproto/googleapis/api/distribution"
	"google.golang.org/genproto/googleapis/api/label"
	metricpb "google.golang.org/genproto/googleapis/api/metric"
	"google.golang.org/genproto/googleapis/api/monitoredres"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/masa23/cloudexport"
)

// Cloud Monitoring limits.
const (
	maxLabels          = 30
	maxLabelKeyBytes   = 100
	maxLabelValueBytes = 1024
)

const globalResourceType = "global"

// Metric is the wire form of one metric: its descriptor and one time series per
// data point.
type Metric struct {
	Descriptor *metricpb.MetricDescriptor
	TimeSeries []*monitoringpb.TimeSeries
}

type metricShape struct {
	kind      metricpb.MetricDescriptor_MetricKind
	valueType metricpb.MetricDescriptor_ValueType
}

// MetricType returns the Cloud Monitoring metric type of name.
func MetricType(prefix, name string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + name
}

// Metric translates m into Cloud Monitoring time series of projectID.
// Aggregations Cloud Monitoring cannot represent yield a TranslationError.
func (t *Translator) Metric(m metricdata.Metrics, projectID, prefix string) (Metric, error) {
	res := &monitoredres.MonitoredResource{
		Type:   globalResourceType,
		Labels: map[string]string{"project_id": projectID},
	}
	metricType := MetricType(prefix, m.Name)

	var (
		shape  metricShape
		points []labeledPoint
	)
	switch d := m.Data.(type) {
	case metricdata.Gauge[int64]:
		shape = metricShape{metricpb.MetricDescriptor_GAUGE, metricpb.MetricDescriptor_INT64}
		points = gaugePoints(d.DataPoints, int64Value)
	case metricdata.Gauge[float64]:
		shape = metricShape{metricpb.MetricDescriptor_GAUGE, metricpb.MetricDescriptor_DOUBLE}
		points = gaugePoints(d.DataPoints, doubleValue)
	case metricdata.Sum[int64]:
		shape = metricShape{sumKind(d.IsMonotonic), metricpb.MetricDescriptor_INT64}
		points = sumPoints(d.DataPoints, d.IsMonotonic, int64Value)
	case metricdata.Sum[float64]:
		shape = metricShape{sumKind(d.IsMonotonic), metricpb.MetricDescriptor_DOUBLE}
		points = sumPoints(d.DataPoints, d.IsMonotonic, doubleValue)
	case metricdata.Histogram[int64]:
		shape = metricShape{metricpb.MetricDescriptor_CUMULATIVE, metricpb.MetricDescriptor_DISTRIBUTION}
		points = histogramPoints(d.DataPoints)
	case metricdata.Histogram[float64]:
		shape = metricShape{metricpb.MetricDescriptor_CUMULATIVE, metricpb.MetricDescriptor_DISTRIBUTION}
		points = histogramPoints(d.DataPoints)
	default:
		return Metric{}, &cloudexport.TranslationError{
			Record: fmt.Sprintf("metric %q", m.Name),
			Reason: fmt.Sprintf("unsupported aggregation %T", m.Data),
		}
	}

	out := Metric{
		Descriptor: descriptor(m, metricType, shape, points),
		TimeSeries: make([]*monitoringpb.TimeSeries, 0, len(points)),
	}
	for _, p := range points {
		out.TimeSeries = append(out.TimeSeries, &monitoringpb.TimeSeries{
			Metric:     &metricpb.Metric{Type: metricType, Labels: p.labels},
			Resource:   res,
			MetricKind: shape.kind,
			ValueType:  shape.valueType,
			Unit:       m.Unit,
			Points:     []*monitoringpb.Point{p.point},
		})
	}
	return out, nil
}

func sumKind(monotonic bool) metricpb.MetricDescriptor_MetricKind {
	if monotonic {
		return metricpb.MetricDescriptor_CUMULATIVE
	}
	return metricpb.MetricDescriptor_GAUGE
}

type labeledPoint struct {
	labels map[string]string
	point  *monitoringpb.Point
}

func int64Value(v int64) *monitoringpb.TypedValue {
	return &monitoringpb.TypedValue{Value: &monitoringpb.TypedValue_Int64Value{Int64Value: v}}
}

func doubleValue(v float64) *monitoringpb.TypedValue {
	return &monitoringpb.TypedValue{Value: &monitoringpb.TypedValue_DoubleValue{DoubleValue: v}}
}

func gaugeInterval(end time.Time) *monitoringpb.TimeInterval {
	return &monitoringpb.TimeInterval{EndTime: timestamppb.New(end)}
}

func cumulativeInterval(start, end time.Time) *monitoringpb.TimeInterval {
	return &monitoringpb.TimeInterval{StartTime: timestamppb.New(start), EndTime: timestamppb.New(end)}
}

func gaugePoints[N int64 | float64](dps []metricdata.DataPoint[N], value func(N) *monitoringpb.TypedValue) []labeledPoint {
	out := make([]labeledPoint, 0, len(dps))
	for _, dp := range dps {
		out = append(out, labeledPoint{
			labels: labels(dp.Attributes),
			point:  &monitoringpb.Point{Interval: gaugeInterval(dp.Time), Value: value(dp.Value)},
		})
	}
	return out
}

func sumPoints[N int64 | float64](dps []metricdata.DataPoint[N], monotonic bool, value func(N) *monitoringpb.TypedValue) []labeledPoint {
	if !monotonic {
		return gaugePoints(dps, value)
	}
	out := make([]labeledPoint, 0, len(dps))
	for _, dp := range dps {
		out = append(out, labeledPoint{
			labels: labels(dp.Attributes),
			point:  &monitoringpb.Point{Interval: cumulativeInterval(dp.StartTime, dp.Time), Value: value(dp.Value)},
		})
	}
	return out
}

func histogramPoints[N int64 | float64](dps []metricdata.HistogramDataPoint[N]) []labeledPoint {
	out := make([]labeledPoint, 0, len(dps))
	for _, dp := range dps {
		d := &distribution.Distribution{
			Count: int64(dp.Count),
			BucketOptions: &distribution.Distribution_BucketOptions{
				Options: &distribution.Distribution_BucketOptions_ExplicitBuckets{
					ExplicitBuckets: &distribution.Distribution_BucketOptions_Explicit{
						Bounds: append([]float64(nil), dp.Bounds...),
					},
				},
			},
			BucketCounts: make([]int64, len(dp.BucketCounts)),
		}
		for i, c := range dp.BucketCounts {
			d.BucketCounts[i] = int64(c)
		}
		if dp.Count > 0 {
			d.Mean = float64(dp.Sum) / float64(dp.Count)
		}
		out = append(out, labeledPoint{
			labels: labels(dp.Attributes),
			point: &monitoringpb.Point{
				Interval: cumulativeInterval(dp.StartTime, dp.Time),
				Value:    &monitoringpb.TypedValue{Value: &monitoringpb.TypedValue_DistributionValue{DistributionValue: d}},
			},
		})
	}
	return out
}

// labels converts point attributes into metric labels. Keys are sanitized and
// values formatted like span attributes; labels beyond the limit are dropped in
// encounter order.
func labels(set attribute.Set) map[string]string {
	out := make(map[string]string, set.Len())
	iter := set.Iter()
	for iter.Next() {
		kv := iter.Attribute()
		key := sanitizeLabelKey(string(kv.Key))
		if len(key) > maxLabelKeyBytes || len(out) >= maxLabels {
			continue
		}
		if _, ok := out[key]; ok {
			continue
		}
		out[key], _ = truncate(formatValue(kv.Value), maxLabelValueBytes)
	}
	return out
}

// sanitizeLabelKey replaces every character other than ASCII letters, digits
// and underscores with an underscore. Keys starting with a digit get a "key_"
// prefix.
func sanitizeLabelKey(key string) string {
	if key == "" {
		return key
	}
	s := strings.Map(func(r rune) rune {
		if r == '_' || isASCIILetter(r) || isASCIIDigit(r) {
			return r
		}
		return '_'
	}, key)
	if isASCIIDigit(rune(s[0])) {
		s = "key_" + s
	}
	return s
}

func isASCIILetter(r rune) bool {
	return ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z')
}

func isASCIIDigit(r rune) bool {
	return '0' <= r && r <= '9'
}

func descriptor(m metricdata.Metrics, metricType string, shape metricShape, points []labeledPoint) *metricpb.MetricDescriptor {
	keys := map[string]struct{}{}
	for _, p := range points {
		for k := range p.labels {
			keys[k] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	md := &metricpb.MetricDescriptor{
		Type:        metricType,
		DisplayName: m.Name,
		Description: m.Description,
		Unit:        m.Unit,
		MetricKind:  shape.kind,
		ValueType:   shape.valueType,
	}
	for _, k := range sorted {
		md.Labels = append(md.Labels, &label.LabelDescriptor{Key: k, ValueType: label.LabelDescriptor_STRING})
	}
	return md
}
