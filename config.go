package cloudexport

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2/google"
	"google.golang.org/grpc"
)

// Version is the version of this module reported in the agent attribute.
const Version = "0.1.0"

const (
	DefaultDeadline     = 10 * time.Second
	DefaultMetricPrefix = "workload.googleapis.com"

	// AgentAttributeKey is the reserved Cloud Trace key identifying the exporter.
	AgentAttributeKey = "g.co/agent"
)

// DescriptorStrategy controls how often metric descriptors are sent to Cloud Monitoring.
type DescriptorStrategy int

const (
	// SendOnce creates each metric descriptor once for the lifetime of the exporter.
	SendOnce DescriptorStrategy = iota
	// AlwaysSend creates descriptors on every export.
	AlwaysSend
	// NeverSend leaves descriptor creation to Cloud Monitoring.
	NeverSend
)

var descriptorStrategyNames = map[DescriptorStrategy]string{
	SendOnce:   "SEND_ONCE",
	AlwaysSend: "ALWAYS_SEND",
	NeverSend:  "NEVER_SEND",
}

func (s DescriptorStrategy) String() string {
	if name, ok := descriptorStrategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("DescriptorStrategy(%d)", int(s))
}

// ParseDescriptorStrategy parses names such as "SEND_ONCE".
func ParseDescriptorStrategy(name string) (DescriptorStrategy, error) {
	for s, n := range descriptorStrategyNames {
		if n == name {
			return s, nil
		}
	}
	return 0, &ConfigurationError{Option: "DescriptorStrategy", Reason: fmt.Sprintf("unsupported value %q", name)}
}

// BatchPolicy decides what an exporter does with a record it cannot translate.
type BatchPolicy int

const (
	// SkipInvalid drops untranslatable records, logs how many were dropped and
	// sends the rest.
	SkipInvalid BatchPolicy = iota
	// AbortBatch fails the whole export on the first untranslatable record.
	AbortBatch
)

var batchPolicyNames = map[BatchPolicy]string{
	SkipInvalid: "SKIP_INVALID",
	AbortBatch:  "ABORT_BATCH",
}

func (p BatchPolicy) String() string {
	if name, ok := batchPolicyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("BatchPolicy(%d)", int(p))
}

// ParseBatchPolicy parses names such as "SKIP_INVALID".
func ParseBatchPolicy(name string) (BatchPolicy, error) {
	for p, n := range batchPolicyNames {
		if n == name {
			return p, nil
		}
	}
	return 0, &ConfigurationError{Option: "BatchPolicy", Reason: fmt.Sprintf("unsupported value %q", name)}
}

// DefaultAttributeMapping renames well-known OpenTelemetry HTTP attributes to the
// keys Cloud Trace displays natively.
func DefaultAttributeMapping() map[string]string {
	return map[string]string{
		"http.host":                    "/http/host",
		"http.method":                  "/http/method",
		"http.request.method":          "/http/method",
		"http.target":                  "/http/path",
		"url.path":                     "/http/path",
		"http.status_code":             "/http/status_code",
		"http.response.status_code":    "/http/status_code",
		"http.url":                     "/http/url",
		"url.full":                     "/http/url",
		"http.request_content_length":  "/http/request/size",
		"http.response_content_length": "/http/response/size",
		"http.scheme":                  "/http/client_protocol",
		"http.route":                   "/http/route",
		"http.user_agent":              "/http/user_agent",
		"user_agent.original":          "/http/user_agent",
		"server.address":               "/http/host",
	}
}

// DefaultFixedAttributes returns the attributes added to every exported span.
func DefaultFixedAttributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AgentAttributeKey,
			fmt.Sprintf("opentelemetry-go %s; cloudexport %s", otel.Version(), Version)),
	}
}

// Configuration is the validated, immutable set of export options.
// Create one with NewBuilder().Build().
type Configuration struct {
	credentials        *google.Credentials
	projectID          string
	conn               *grpc.ClientConn
	endpoint           string
	deadline           time.Duration
	descriptorStrategy DescriptorStrategy
	batchPolicy        BatchPolicy
	metricPrefix       string
	attributeMapping   map[string]string
	fixedAttributes    attribute.Set
}

// Credentials returns the configured credentials, or nil when application
// default credentials should be used.
func (c Configuration) Credentials() *google.Credentials { return c.credentials }

func (c Configuration) ProjectID() string { return c.projectID }

// ProjectName returns the resource name "projects/{projectID}".
func (c Configuration) ProjectName() string { return "projects/" + c.projectID }

// Conn returns the injected backend connection, or nil.
func (c Configuration) Conn() *grpc.ClientConn { return c.conn }

func (c Configuration) Endpoint() string { return c.endpoint }

func (c Configuration) Deadline() time.Duration { return c.deadline }

func (c Configuration) DescriptorStrategy() DescriptorStrategy { return c.descriptorStrategy }

func (c Configuration) BatchPolicy() BatchPolicy { return c.batchPolicy }

func (c Configuration) MetricPrefix() string { return c.metricPrefix }

// AttributeMapping returns a copy of the attribute key renames.
func (c Configuration) AttributeMapping() map[string]string {
	m := make(map[string]string, len(c.attributeMapping))
	for k, v := range c.attributeMapping {
		m[k] = v
	}
	return m
}

// FixedAttributes returns the attributes merged into every exported span.
func (c Configuration) FixedAttributes() attribute.Set { return c.fixedAttributes }

// Builder accumulates options for a Configuration.
type Builder struct {
	cfg Configuration
}

// NewBuilder returns a builder seeded with the ambient project ID, a 10 second
// deadline and the SendOnce descriptor strategy.
func NewBuilder() *Builder {
	return &Builder{cfg: Configuration{
		projectID:          DefaultProjectID(),
		deadline:           DefaultDeadline,
		descriptorStrategy: SendOnce,
		batchPolicy:        SkipInvalid,
		metricPrefix:       DefaultMetricPrefix,
		attributeMapping:   DefaultAttributeMapping(),
		fixedAttributes:    attribute.NewSet(DefaultFixedAttributes()...),
	}}
}

func (b *Builder) SetProjectID(projectID string) *Builder {
	b.cfg.projectID = projectID
	return b
}

func (b *Builder) SetCredentials(creds *google.Credentials) *Builder {
	b.cfg.credentials = creds
	return b
}

// SetConn injects a connection that is already configured with credentials.
// Credentials are not looked up when a connection is set. The connection stays
// owned by the caller: clients built from the configuration never close it, so
// several clients can share it.
func (b *Builder) SetConn(conn *grpc.ClientConn) *Builder {
	b.cfg.conn = conn
	return b
}

func (b *Builder) SetEndpoint(endpoint string) *Builder {
	b.cfg.endpoint = endpoint
	return b
}

func (b *Builder) SetDeadline(deadline time.Duration) *Builder {
	b.cfg.deadline = deadline
	return b
}

func (b *Builder) SetDescriptorStrategy(strategy DescriptorStrategy) *Builder {
	b.cfg.descriptorStrategy = strategy
	return b
}

func (b *Builder) SetBatchPolicy(policy BatchPolicy) *Builder {
	b.cfg.batchPolicy = policy
	return b
}

func (b *Builder) SetMetricPrefix(prefix string) *Builder {
	b.cfg.metricPrefix = prefix
	return b
}

// SetAttributeMapping replaces the attribute key renames.
func (b *Builder) SetAttributeMapping(mapping map[string]string) *Builder {
	m := make(map[string]string, len(mapping))
	for k, v := range mapping {
		m[k] = v
	}
	b.cfg.attributeMapping = m
	return b
}

// SetFixedAttributes replaces the attributes merged into every span.
// Fixed attributes overwrite span attributes with the same key.
func (b *Builder) SetFixedAttributes(attrs ...attribute.KeyValue) *Builder {
	b.cfg.fixedAttributes = attribute.NewSet(attrs...)
	return b
}

// Build validates the options and returns the Configuration.
func (b *Builder) Build() (Configuration, error) {
	if b.cfg.projectID == "" {
		return Configuration{}, &ConfigurationError{
			Option: "ProjectID",
			Reason: "cannot find a project ID from either configuration or application default",
		}
	}
	if b.cfg.deadline <= 0 {
		return Configuration{}, &ConfigurationError{
			Option: "Deadline",
			Reason: fmt.Sprintf("deadline must be positive, got %s", b.cfg.deadline),
		}
	}
	if _, ok := descriptorStrategyNames[b.cfg.descriptorStrategy]; !ok {
		return Configuration{}, &ConfigurationError{Option: "DescriptorStrategy", Reason: b.cfg.descriptorStrategy.String()}
	}
	if _, ok := batchPolicyNames[b.cfg.batchPolicy]; !ok {
		return Configuration{}, &ConfigurationError{Option: "BatchPolicy", Reason: b.cfg.batchPolicy.String()}
	}
	cfg := b.cfg
	cfg.attributeMapping = b.cfg.AttributeMapping()
	return cfg, nil
}
