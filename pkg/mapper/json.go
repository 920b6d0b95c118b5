package mapper

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/sophialabs/httpmocker/pkg/scenario"
)

var _ Mapper = JSON{}

// JSON is the default mapper. A file holds an array of entries; a single
// top-level object is accepted as a one-entry scenario.
type JSON struct{}

// Unmarshal implements Mapper.
func (JSON) Unmarshal(data []byte) ([]scenario.Entry, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty scenario document")
	}

	var wire []wireEntry
	if trimmed[0] == '{' {
		var single wireEntry
		if err := decodeStrict(trimmed, &single); err != nil {
			return nil, err
		}
		wire = []wireEntry{single}
	} else if err := decodeStrict(trimmed, &wire); err != nil {
		return nil, err
	}
	return toEntries(wire)
}

// Marshal implements Mapper.
func (JSON) Marshal(entries []scenario.Entry) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(fromEntries(entries)); err != nil {
		return nil, fmt.Errorf("failed to encode scenario: %w", err)
	}
	return buf.Bytes(), nil
}

// Extension implements Mapper.
func (JSON) Extension() string { return "json" }

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to decode scenario: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("failed to decode scenario: trailing data")
	}
	return nil
}

// MarshalJSON writes params as an object, keeping order and duplicates.
func (p wireParams) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, param := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(param.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		switch param.Kind {
		case paramAbsent:
			buf.WriteString("null")
		case paramPresent:
			buf.WriteString("true")
		default:
			value, err := json.Marshal(param.Value)
			if err != nil {
				return nil, err
			}
			buf.Write(value)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads params from an object in document order.
func (p *wireParams) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*p = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("params must be an object")
	}

	var out wireParams
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		param, err := decodeParamValue(name, raw)
		if err != nil {
			return err
		}
		out = append(out, param)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*p = out
	return nil
}

func decodeParamValue(name string, raw json.RawMessage) (wireParam, error) {
	switch string(bytes.TrimSpace(raw)) {
	case "null":
		return wireParam{Name: name, Kind: paramAbsent}, nil
	case "true":
		return wireParam{Name: name, Kind: paramPresent}, nil
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return wireParam{}, fmt.Errorf("param %q: value must be a string, null or true", name)
	}
	return wireParam{Name: name, Value: value}, nil
}
