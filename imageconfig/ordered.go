/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

package imageconfig

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// OrderedMap is a string map that remembers insertion order and rejects
// duplicate keys when decoded from YAML.
type OrderedMap struct {
	keys   []string
	values map[string]string
}

// NewOrderedMap builds a map from alternating key, value pairs.
func NewOrderedMap(pairs ...string) OrderedMap {
	var m OrderedMap
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Set(pairs[i], pairs[i+1])
	}
	return m
}

// Set adds or replaces a value. Replacing keeps the original position.
func (m *OrderedMap) Set(key, value string) {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for key.
func (m OrderedMap) Get(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (m OrderedMap) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Len returns the number of entries.
func (m OrderedMap) Len() int {
	return len(m.keys)
}

// IsZero reports whether the map is empty, so omitempty drops it.
func (m OrderedMap) IsZero() bool {
	return len(m.keys) == 0
}

// Each calls fn for every entry in insertion order.
func (m OrderedMap) Each(fn func(key, value string)) {
	for _, k := range m.keys {
		fn(k, m.values[k])
	}
}

// Map returns an unordered copy.
func (m OrderedMap) Map() map[string]string {
	out := make(map[string]string, len(m.keys))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// UnmarshalYAML decodes a mapping node, keeping key order.
func (m *OrderedMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}

	*m = OrderedMap{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		if _, dup := m.values[keyNode.Value]; dup {
			return fmt.Errorf("line %d: duplicate key %q", keyNode.Line, keyNode.Value)
		}
		if valueNode.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: value of %q must be a scalar", valueNode.Line, keyNode.Value)
		}
		m.Set(keyNode.Value, valueNode.Value)
	}
	return nil
}

// MarshalYAML encodes the map as an ordered mapping node.
func (m OrderedMap) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range m.keys {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: m.values[k]})
	}
	return node, nil
}

// MarshalJSON encodes the map as a JSON object in insertion order.
func (m OrderedMap) MarshalJSON() ([]byte, error) {
	var buf strings.Builder
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return []byte(buf.String()), nil
}

// Arguments is a command given either in shell form (a single string run
// through the image's shell) or exec form (an argument list).
type Arguments struct {
	Shell string
	Exec  []string
}

// ShellArguments returns shell-form arguments.
func ShellArguments(cmd string) *Arguments {
	return &Arguments{Shell: cmd}
}

// ExecArguments returns exec-form arguments.
func ExecArguments(args ...string) *Arguments {
	return &Arguments{Exec: args}
}

// IsEmpty reports whether no command is set. A nil receiver is empty.
func (a *Arguments) IsEmpty() bool {
	return a == nil || (strings.TrimSpace(a.Shell) == "" && len(a.Exec) == 0)
}

// Argv returns the command as an argument list. Shell form is split on
// whitespace, which is what the engine's exec API expects for simple
// commands.
func (a *Arguments) Argv() []string {
	if a.IsEmpty() {
		return nil
	}
	if len(a.Exec) > 0 {
		return append([]string(nil), a.Exec...)
	}
	return strings.Fields(a.Shell)
}

// DockerfileForm renders the arguments as they appear after an
// instruction keyword: a JSON array for exec form, raw text for shell form.
func (a *Arguments) DockerfileForm() string {
	if a.IsEmpty() {
		return ""
	}
	if len(a.Exec) > 0 {
		data, _ := json.Marshal(a.Exec)
		return string(data)
	}
	return a.Shell
}

// UnmarshalYAML accepts a scalar (shell form) or a sequence (exec form).
func (a *Arguments) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*a = Arguments{Shell: node.Value}
		return nil
	case yaml.SequenceNode:
		var exec []string
		if err := node.Decode(&exec); err != nil {
			return err
		}
		*a = Arguments{Exec: exec}
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", node.Line)
	}
}

// MarshalYAML encodes the arguments in the form they were given.
func (a Arguments) MarshalYAML() (interface{}, error) {
	if len(a.Exec) > 0 {
		return a.Exec, nil
	}
	return a.Shell, nil
}
