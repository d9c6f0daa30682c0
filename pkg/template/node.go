package template

import (
	"fmt"
	"reflect"
	"sort"

	"gopkg.in/yaml.v3"
)

// Node is a chart configuration tree. It is one of Literal, Ref, Interp,
// List or Mapping.
type Node interface {
	node()
}

// Literal is a scalar that is never templated: a number, bool, nil, or a
// string without tokens.
type Literal struct {
	Value any
}

// Ref is a fully templated string. One reference resolves to the native
// value; several resolve to a list.
type Ref struct {
	Raw  string
	Refs []Reference
}

// Interp is a string with tokens embedded in other text. It is substituted
// only in fields that allow interpolation and is a literal everywhere else.
type Interp struct {
	Raw  string
	Refs []Reference
}

// List is an ordered sequence of nodes.
type List struct {
	Items []Node
}

// Mapping is an ordered set of named nodes.
type Mapping struct {
	Keys   []string
	Values map[string]Node
}

func (*Literal) node() {}
func (*Ref) node()     {}
func (*Interp) node()  {}
func (*List) node()    {}
func (*Mapping) node() {}

// NewMapping creates an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{Values: make(map[string]Node)}
}

// Set adds or replaces a field, keeping the original position.
func (m *Mapping) Set(key string, n Node) {
	if _, ok := m.Values[key]; !ok {
		m.Keys = append(m.Keys, key)
	}
	m.Values[key] = n
}

// Get returns a field.
func (m *Mapping) Get(key string) (Node, bool) {
	n, ok := m.Values[key]
	return n, ok
}

// Parse classifies a string leaf.
func Parse(s string) Node {
	if refs := ParseReferences(s); len(refs) > 0 {
		return &Ref{Raw: s, Refs: refs}
	}
	if refs := FindEmbedded(s); len(refs) > 0 {
		return &Interp{Raw: s, Refs: refs}
	}
	return &Literal{Value: s}
}

// Build converts a plain value tree into nodes. Map keys are sorted since Go
// maps carry no order; use FromYAML to keep document order.
func Build(v any) Node {
	switch x := v.(type) {
	case nil:
		return &Literal{}
	case Node:
		return x
	case string:
		return Parse(x)
	case []any:
		items := make([]Node, len(x))
		for i, item := range x {
			items[i] = Build(item)
		}
		return &List{Items: items}
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMapping()
		for _, k := range keys {
			m.Set(k, Build(x[k]))
		}
		return m
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return &Literal{Value: v}
		}
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return Build(items)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return &Literal{Value: v}
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return Build(m)
	}
	return &Literal{Value: v}
}

// FromYAML converts a decoded YAML node, preserving mapping key order.
func FromYAML(n *yaml.Node) (Node, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return &Literal{}, nil
		}
		return FromYAML(n.Content[0])
	case yaml.AliasNode:
		return FromYAML(n.Alias)
	case yaml.MappingNode:
		m := NewMapping()
		for i := 0; i+1 < len(n.Content); i += 2 {
			var key string
			if err := n.Content[i].Decode(&key); err != nil {
				return nil, fmt.Errorf("line %d: mapping key: %w", n.Content[i].Line, err)
			}
			val := n.Content[i+1]
			if key == "<<" && val.Kind != yaml.ScalarNode {
				if err := mergeInto(m, val); err != nil {
					return nil, err
				}
				continue
			}
			child, err := FromYAML(val)
			if err != nil {
				return nil, err
			}
			m.Set(key, child)
		}
		return m, nil
	case yaml.SequenceNode:
		items := make([]Node, 0, len(n.Content))
		for _, c := range n.Content {
			child, err := FromYAML(c)
			if err != nil {
				return nil, err
			}
			items = append(items, child)
		}
		return &List{Items: items}, nil
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		if s, ok := v.(string); ok {
			return Parse(s), nil
		}
		return &Literal{Value: v}, nil
	default:
		return nil, fmt.Errorf("line %d: unsupported yaml node kind %d", n.Line, n.Kind)
	}
}

func mergeInto(m *Mapping, val *yaml.Node) error {
	sources := []*yaml.Node{val}
	if val.Kind == yaml.SequenceNode {
		sources = val.Content
	}
	for _, src := range sources {
		child, err := FromYAML(src)
		if err != nil {
			return err
		}
		merged, ok := child.(*Mapping)
		if !ok {
			return fmt.Errorf("line %d: merge value must be a mapping", src.Line)
		}
		for _, k := range merged.Keys {
			if _, exists := m.Values[k]; !exists {
				m.Set(k, merged.Values[k])
			}
		}
	}
	return nil
}

// Plain converts nodes back to a plain value tree. Unresolved strings are
// returned as written.
func Plain(n Node) any {
	switch x := n.(type) {
	case *Literal:
		return x.Value
	case *Ref:
		return x.Raw
	case *Interp:
		return x.Raw
	case *List:
		out := make([]any, len(x.Items))
		for i, item := range x.Items {
			out[i] = Plain(item)
		}
		return out
	case *Mapping:
		out := make(map[string]any, len(x.Keys))
		for _, k := range x.Keys {
			out[k] = Plain(x.Values[k])
		}
		return out
	default:
		return nil
	}
}
