package translator

import (
	"strconv"
	"unicode/utf8"

	"cloud.google.com/go/trace/apiv2/tracepb"
	"go.opentelemetry.io/otel/attribute"
)

// Cloud Trace limits.
const (
	maxAttributes          = 32
	maxAttributeKeyBytes   = 128
	maxAttributeValueBytes = 256
	maxDisplayNameBytes    = 128
	maxAnnotationBytes     = 256
	maxAnnotationsPerSpan  = 32
	maxLinksPerSpan        = 128
)

// truncate cuts s to at most limit bytes without splitting a UTF-8 sequence and
// returns the number of bytes removed.
func truncate(s string, limit int) (string, int) {
	if len(s) <= limit {
		return s, 0
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], len(s) - cut
}

func truncatableString(s string, limit int) *tracepb.TruncatableString {
	v, dropped := truncate(s, limit)
	return &tracepb.TruncatableString{Value: v, TruncatedByteCount: int32(dropped)}
}

// formatValue renders values Cloud Trace cannot carry natively.
// Floats use the shortest representation that round-trips, so 3.14 becomes "3.14".
func formatValue(v attribute.Value) string {
	switch v.Type() {
	case attribute.STRING:
		return v.AsString()
	case attribute.BOOL:
		return strconv.FormatBool(v.AsBool())
	case attribute.INT64:
		return strconv.FormatInt(v.AsInt64(), 10)
	case attribute.FLOAT64:
		return strconv.FormatFloat(v.AsFloat64(), 'f', -1, 64)
	default:
		return v.Emit()
	}
}

func attributeValue(v attribute.Value) *tracepb.AttributeValue {
	switch v.Type() {
	case attribute.BOOL:
		return &tracepb.AttributeValue{Value: &tracepb.AttributeValue_BoolValue{BoolValue: v.AsBool()}}
	case attribute.INT64:
		return &tracepb.AttributeValue{Value: &tracepb.AttributeValue_IntValue{IntValue: v.AsInt64()}}
	default:
		return &tracepb.AttributeValue{Value: &tracepb.AttributeValue_StringValue{
			StringValue: truncatableString(formatValue(v), maxAttributeValueBytes),
		}}
	}
}

// attributeBuilder collects attributes in encounter order up to a limit.
type attributeBuilder struct {
	mapping  map[string]string
	reserved map[string]struct{}
	limit    int
	out      map[string]*tracepb.AttributeValue
	dropped  int
}

func newAttributeBuilder(mapping map[string]string, fixed attribute.Set) *attributeBuilder {
	b := &attributeBuilder{
		mapping: mapping,
		limit:   maxAttributes,
		out:     make(map[string]*tracepb.AttributeValue),
	}
	if n := fixed.Len(); n > 0 {
		b.reserved = make(map[string]struct{}, n)
		iter := fixed.Iter()
		for iter.Next() {
			b.reserved[string(iter.Attribute().Key)] = struct{}{}
		}
		b.limit -= n
		if b.limit < 0 {
			b.limit = 0
		}
	}
	return b
}

func (b *attributeBuilder) key(k attribute.Key) string {
	if mapped, ok := b.mapping[string(k)]; ok {
		return mapped
	}
	return string(k)
}

// add keeps the first value seen for a key. Keys taken by fixed attributes are
// skipped without being counted as dropped.
func (b *attributeBuilder) add(kv attribute.KeyValue) {
	key := b.key(kv.Key)
	if _, ok := b.reserved[key]; ok {
		return
	}
	if _, ok := b.out[key]; ok {
		return
	}
	if len(key) > maxAttributeKeyBytes || len(b.out) >= b.limit {
		b.dropped++
		return
	}
	b.out[key] = attributeValue(kv.Value)
}

func (b *attributeBuilder) addAll(kvs []attribute.KeyValue) {
	for _, kv := range kvs {
		b.add(kv)
	}
}

func (b *attributeBuilder) addSet(set attribute.Set) {
	iter := set.Iter()
	for iter.Next() {
		b.add(iter.Attribute())
	}
}

// addFixed overwrites record attributes with the fixed attributes.
func (b *attributeBuilder) addFixed(fixed attribute.Set) {
	n := 0
	iter := fixed.Iter()
	for iter.Next() {
		kv := iter.Attribute()
		if n >= maxAttributes || len(kv.Key) > maxAttributeKeyBytes {
			b.dropped++
			continue
		}
		b.out[string(kv.Key)] = attributeValue(kv.Value)
		n++
	}
}

func (b *attributeBuilder) build(alreadyDropped int) *tracepb.Span_Attributes {
	return &tracepb.Span_Attributes{
		AttributeMap:           b.out,
		DroppedAttributesCount: int32(b.dropped + alreadyDropped),
	}
}
