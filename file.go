package cloudexport

import (
	"io"
	"os"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v2"
)

// FileConfig is the YAML configuration read by the cloudexport command.
type FileConfig struct {
	ProjectID          string            `yaml:"ProjectID"`
	Endpoint           string            `yaml:"Endpoint"`
	Deadline           time.Duration     `yaml:"Deadline"`
	DescriptorStrategy string            `yaml:"DescriptorStrategy"`
	BatchPolicy        string            `yaml:"BatchPolicy"`
	MetricPrefix       string            `yaml:"MetricPrefix"`
	AttributeMapping   map[string]string `yaml:"AttributeMapping"`
	FixedAttributes    map[string]string `yaml:"FixedAttributes"`
	ServiceName        string            `yaml:"ServiceName"`
	ExportInterval     time.Duration     `yaml:"ExportInterval"`
	ErrorLogFile       string            `yaml:"ErrorLogFile"`
	Debug              bool              `yaml:"Debug"`

	descriptorStrategy DescriptorStrategy
	batchPolicy        BatchPolicy
}

// LoadFile loads a yaml config.
func LoadFile(file string) (FileConfig, error) {
	var conf FileConfig
	fd, err := os.Open(file)
	if err != nil {
		return conf, err
	}
	defer fd.Close()

	buf, err := io.ReadAll(fd)
	if err != nil {
		return conf, err
	}
	if err := yaml.Unmarshal(buf, &conf); err != nil {
		return conf, err
	}
	if conf.DescriptorStrategy != "" {
		if conf.descriptorStrategy, err = ParseDescriptorStrategy(conf.DescriptorStrategy); err != nil {
			return conf, err
		}
	}
	if conf.BatchPolicy != "" {
		if conf.batchPolicy, err = ParseBatchPolicy(conf.BatchPolicy); err != nil {
			return conf, err
		}
	}
	return conf, nil
}

// Builder returns NewBuilder() with every option present in the file applied.
// Fixed attributes from the file are added to the default agent attribute.
func (c FileConfig) Builder() *Builder {
	b := NewBuilder()
	if c.ProjectID != "" {
		b.SetProjectID(c.ProjectID)
	}
	if c.Endpoint != "" {
		b.SetEndpoint(c.Endpoint)
	}
	if c.Deadline != 0 {
		b.SetDeadline(c.Deadline)
	}
	if c.DescriptorStrategy != "" {
		b.SetDescriptorStrategy(c.descriptorStrategy)
	}
	if c.BatchPolicy != "" {
		b.SetBatchPolicy(c.batchPolicy)
	}
	if c.MetricPrefix != "" {
		b.SetMetricPrefix(c.MetricPrefix)
	}
	if c.AttributeMapping != nil {
		mapping := DefaultAttributeMapping()
		for k, v := range c.AttributeMapping {
			mapping[k] = v
		}
		b.SetAttributeMapping(mapping)
	}
	if len(c.FixedAttributes) > 0 {
		keys := make([]string, 0, len(c.FixedAttributes))
		for k := range c.FixedAttributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		attrs := DefaultFixedAttributes()
		for _, k := range keys {
			attrs = append(attrs, attribute.String(k, c.FixedAttributes[k]))
		}
		b.SetFixedAttributes(attrs...)
	}
	return b
}
