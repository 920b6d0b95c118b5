package mapper

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/sophialabs/httpmocker/pkg/scenario"
)

var _ Mapper = YAML{}

// YAML reads and writes scenario files as YAML documents using the same keys
// as the JSON format. Both a sequence of entries and a single entry are accepted.
type YAML struct{}

// Unmarshal implements Mapper.
func (YAML) Unmarshal(data []byte) ([]scenario.Entry, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("empty scenario document")
	}

	var wire []wireEntry
	switch root.Content[0].Kind {
	case yaml.SequenceNode:
		if err := decodeYAMLStrict(data, &wire); err != nil {
			return nil, err
		}
	case yaml.MappingNode:
		var single wireEntry
		if err := decodeYAMLStrict(data, &single); err != nil {
			return nil, err
		}
		wire = []wireEntry{single}
	default:
		return nil, fmt.Errorf("unexpected YAML structure: want a sequence or a mapping")
	}
	return toEntries(wire)
}

// Marshal implements Mapper.
func (YAML) Marshal(entries []scenario.Entry) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fromEntries(entries)); err != nil {
		return nil, fmt.Errorf("failed to marshal YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return buf.Bytes(), nil
}

// Extension implements Mapper.
func (YAML) Extension() string { return "yaml" }

func decodeYAMLStrict(data []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode scenario: %w", err)
	}
	return nil
}

// MarshalYAML writes params as a mapping, keeping order and duplicates.
func (p wireParams) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, param := range p {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: param.Name}
		var value *yaml.Node
		switch param.Kind {
		case paramAbsent:
			value = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
		case paramPresent:
			value = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: "true"}
		default:
			value = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: param.Value}
		}
		node.Content = append(node.Content, key, value)
	}
	return node, nil
}

// UnmarshalYAML reads params from a mapping in document order.
func (p *wireParams) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: params must be a mapping", node.Line)
	}
	out := make(wireParams, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name, value := node.Content[i].Value, node.Content[i+1]
		switch {
		case value.ShortTag() == "!!null":
			out = append(out, wireParam{Name: name, Kind: paramAbsent})
		case value.ShortTag() == "!!bool" && value.Value == "true":
			out = append(out, wireParam{Name: name, Kind: paramPresent})
		case value.Kind == yaml.ScalarNode:
			out = append(out, wireParam{Name: name, Value: value.Value})
		default:
			return fmt.Errorf("line %d: param %q: value must be a string, null or true", value.Line, name)
		}
	}
	*p = out
	return nil
}
