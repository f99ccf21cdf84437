// Package translator converts OpenTelemetry SDK records into the Cloud Trace and
// Cloud Monitoring wire schema. Translation never performs I/O and keeps no
// mutable state, so a Translator may be shared between goroutines.
package translator

import (
	"fmt"

	"cloud.google.com/go/trace/apiv2/tracepb"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	statuspb "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/masa23/cloudexport"
)

// google.rpc.Code values used for span status.
const (
	statusCodeOK      = 0
	statusCodeUnknown = 2
)

var spanKinds = map[trace.SpanKind]tracepb.Span_SpanKind{
	trace.SpanKindInternal: tracepb.Span_INTERNAL,
	trace.SpanKindServer:   tracepb.Span_SERVER,
	trace.SpanKindClient:   tracepb.Span_CLIENT,
	trace.SpanKindProducer: tracepb.Span_PRODUCER,
	trace.SpanKindConsumer: tracepb.Span_CONSUMER,
}

// Translator maps records using a fixed attribute mapping and fixed attributes.
type Translator struct {
	mapping map[string]string
	fixed   attribute.Set
}

// New returns a Translator. mapping renames attribute keys; fixed attributes are
// merged into every span and overwrite span attributes with the same key.
func New(mapping map[string]string, fixed attribute.Set) *Translator {
	m := make(map[string]string, len(mapping))
	for k, v := range mapping {
		m[k] = v
	}
	return &Translator{mapping: m, fixed: fixed}
}

// FromConfiguration returns a Translator using the mapping and fixed attributes of cfg.
func FromConfiguration(cfg cloudexport.Configuration) *Translator {
	return New(cfg.AttributeMapping(), cfg.FixedAttributes())
}

// Span translates s into a Cloud Trace span of projectID.
func (t *Translator) Span(s sdktrace.ReadOnlySpan, projectID string) (*tracepb.Span, error) {
	sc := s.SpanContext()
	if !sc.TraceID().IsValid() || !sc.SpanID().IsValid() {
		return nil, &cloudexport.TranslationError{
			Record: fmt.Sprintf("span %q", s.Name()),
			Reason: fmt.Sprintf("invalid span context trace_id=%s span_id=%s", sc.TraceID(), sc.SpanID()),
		}
	}
	spanID := sc.SpanID().String()

	sp := &tracepb.Span{
		Name:           fmt.Sprintf("projects/%s/traces/%s/spans/%s", projectID, sc.TraceID(), spanID),
		SpanId:         spanID,
		DisplayName:    truncatableString(s.Name(), maxDisplayNameBytes),
		StartTime:      timestamppb.New(s.StartTime()),
		EndTime:        timestamppb.New(s.EndTime()),
		Attributes:     t.spanAttributes(s),
		TimeEvents:     t.timeEvents(s.Events(), s.DroppedEvents()),
		Links:          t.links(s.Links(), s.DroppedLinks()),
		Status:         status(s.Status()),
		SpanKind:       spanKind(s.SpanKind()),
		ChildSpanCount: wrapperspb.Int32(int32(s.ChildSpanCount())),
	}
	if parent := s.Parent(); parent.SpanID().IsValid() {
		sp.ParentSpanId = parent.SpanID().String()
		sp.SameProcessAsParentSpan = wrapperspb.Bool(!parent.IsRemote())
	}
	return sp, nil
}

func spanKind(k trace.SpanKind) tracepb.Span_SpanKind {
	if kind, ok := spanKinds[k]; ok {
		return kind
	}
	return tracepb.Span_SPAN_KIND_UNSPECIFIED
}

// status maps OK to OK and every other set code to UNKNOWN. An unset status has
// no representation.
func status(s sdktrace.Status) *statuspb.Status {
	switch s.Code {
	case codes.Unset:
		return nil
	case codes.Ok:
		return &statuspb.Status{Code: statusCodeOK}
	default:
		return &statuspb.Status{Code: statusCodeUnknown, Message: s.Description}
	}
}

// spanAttributes merges span attributes, then resource attributes, then the fixed
// attributes.
func (t *Translator) spanAttributes(s sdktrace.ReadOnlySpan) *tracepb.Span_Attributes {
	b := newAttributeBuilder(t.mapping, t.fixed)
	b.addAll(s.Attributes())
	if res := s.Resource(); res != nil {
		b.addSet(*res.Set())
	}
	b.addFixed(t.fixed)
	return b.build(s.DroppedAttributes())
}

func (t *Translator) attributes(kvs []attribute.KeyValue, dropped int) *tracepb.Span_Attributes {
	b := newAttributeBuilder(t.mapping, *attribute.EmptySet())
	b.addAll(kvs)
	return b.build(dropped)
}

func (t *Translator) timeEvents(events []sdktrace.Event, dropped int) *tracepb.Span_TimeEvents {
	if len(events) == 0 && dropped == 0 {
		return nil
	}
	out := &tracepb.Span_TimeEvents{DroppedAnnotationsCount: int32(dropped)}
	for i, ev := range events {
		if i >= maxAnnotationsPerSpan {
			out.DroppedAnnotationsCount += int32(len(events) - i)
			break
		}
		out.TimeEvent = append(out.TimeEvent, &tracepb.Span_TimeEvent{
			Time: timestamppb.New(ev.Time),
			Value: &tracepb.Span_TimeEvent_Annotation_{
				Annotation: &tracepb.Span_TimeEvent_Annotation{
					Description: truncatableString(ev.Name, maxAnnotationBytes),
					Attributes:  t.attributes(ev.Attributes, ev.DroppedAttributeCount),
				},
			},
		})
	}
	return out
}

func (t *Translator) links(links []sdktrace.Link, dropped int) *tracepb.Span_Links {
	if len(links) == 0 && dropped == 0 {
		return nil
	}
	out := &tracepb.Span_Links{DroppedLinksCount: int32(dropped)}
	for i, l := range links {
		if i >= maxLinksPerSpan {
			out.DroppedLinksCount += int32(len(links) - i)
			break
		}
		out.Link = append(out.Link, &tracepb.Span_Link{
			TraceId:    l.SpanContext.TraceID().String(),
			SpanId:     l.SpanContext.SpanID().String(),
			Type:       tracepb.Span_Link_TYPE_UNSPECIFIED,
			Attributes: t.attributes(l.Attributes, l.DroppedAttributeCount),
		})
	}
	return out
}
