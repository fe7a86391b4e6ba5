package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Param is a single workflow input parameter.
type Param struct {
	Key   string
	Value any
}

// Params is an ordered parameter list. It marshals to a JSON object
// whose keys keep slice order.
type Params []Param

// MarshalJSON implements json.Marshaler.
func (p Params) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, param := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(param.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(param.Value)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", param.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Section is a free-form config table kept in file order.
type Section struct {
	Params Params
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Section) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	params := make(Params, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var value any
		if err := node.Content[i+1].Decode(&value); err != nil {
			return fmt.Errorf("key %q: %w", node.Content[i].Value, err)
		}
		params = append(params, Param{Key: node.Content[i].Value, Value: value})
	}
	s.Params = params
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s Section) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, param := range s.Params {
		var value yaml.Node
		if err := value.Encode(param.Value); err != nil {
			return nil, fmt.Errorf("key %q: %w", param.Key, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: param.Key},
			&value,
		)
	}
	return node, nil
}

// IsZero reports whether the section is empty, for omitempty.
func (s Section) IsZero() bool {
	return len(s.Params) == 0
}

// Prefixed returns the section's params with keys rewritten as prefix.key.
func (s Section) Prefixed(prefix string) Params {
	out := make(Params, 0, len(s.Params))
	for _, param := range s.Params {
		out = append(out, Param{Key: prefix + "." + param.Key, Value: param.Value})
	}
	return out
}
