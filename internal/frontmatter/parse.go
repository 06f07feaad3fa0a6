package frontmatter

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNotMapping is returned when the front matter root is not a mapping.
var ErrNotMapping = errors.New("front matter must be a mapping")

// Parse parses raw YAML front matter (without delimiters) into an ordered Map.
// Empty input yields an empty map.
func Parse(frontmatter []byte) (*Map, error) {
	root, err := Decode(frontmatter)
	if err != nil {
		return nil, err
	}
	switch root.Kind() {
	case KindNull:
		return NewMap(), nil
	case KindMap:
		m, _ := root.AsMap()
		return m, nil
	default:
		return nil, fmt.Errorf("%w, got %s", ErrNotMapping, root.Kind())
	}
}

// Decode parses a YAML document of any shape into a Value.
func Decode(data []byte) (Value, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Null(), nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Value{}, err
	}
	if len(doc.Content) == 0 {
		return Null(), nil
	}
	return valueFromNode(doc.Content[0])
}

func valueFromNode(n *yaml.Node) (Value, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return valueFromNode(n.Alias)
	case yaml.SequenceNode:
		items := make([]Value, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := valueFromNode(c)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return Seq(items...), nil
	case yaml.MappingNode:
		m, err := mapFromNode(n)
		if err != nil {
			return Value{}, err
		}
		return MapValue(m), nil
	case yaml.ScalarNode:
		return scalarFromNode(n)
	default:
		return Null(), nil
	}
}

func scalarFromNode(n *yaml.Node) (Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return Null(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return Value{}, err
		}
		return Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return Value{}, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return Int(i).withRaw(n.Value), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return Value{}, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return Float(f).withRaw(n.Value), nil
	case "!!timestamp":
		var t time.Time
		if err := n.Decode(&t); err != nil {
			return Value{}, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return Date(t).withRaw(n.Value), nil
	default:
		return String(n.Value), nil
	}
}

func mapFromNode(n *yaml.Node) (*Map, error) {
	m := NewMap()
	var merges []*yaml.Node
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if k.ShortTag() == "!!merge" {
			merges = append(merges, v)
			continue
		}
		if m.Has(k.Value) {
			return nil, fmt.Errorf("line %d: duplicate key %q", k.Line, k.Value)
		}
		val, err := valueFromNode(v)
		if err != nil {
			return nil, err
		}
		m.Set(k.Value, val)
	}
	for _, src := range merges {
		if err := mergeInto(m, src); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// mergeInto applies a YAML merge key; explicit keys win over merged ones.
func mergeInto(m *Map, src *yaml.Node) error {
	if src.Kind == yaml.AliasNode {
		src = src.Alias
	}
	if src.Kind == yaml.SequenceNode {
		for _, c := range src.Content {
			if err := mergeInto(m, c); err != nil {
				return err
			}
		}
		return nil
	}
	if src.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: merge value must be a mapping", src.Line)
	}
	merged, err := mapFromNode(src)
	if err != nil {
		return err
	}
	for _, k := range merged.Keys() {
		if !m.Has(k) {
			v, _ := merged.Get(k)
			m.Set(k, v)
		}
	}
	return nil
}

// FromAny converts decoded JSON/YAML values (map[string]any, []any, scalars)
// into a Value. Map keys are sorted since Go maps carry no order.
func FromAny(v any) (Value, error) {
	switch vv := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return vv, nil
	case string:
		return String(vv), nil
	case bool:
		return Bool(vv), nil
	case int:
		return Int(int64(vv)), nil
	case int64:
		return Int(vv), nil
	case float64:
		if vv == math.Trunc(vv) && math.Abs(vv) < 1<<53 {
			return Int(int64(vv)), nil
		}
		return Float(vv), nil
	case time.Time:
		return Date(vv), nil
	case []string:
		return StringValues(vv), nil
	case []any:
		items := make([]Value, 0, len(vv))
		for _, item := range vv {
			iv, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			items = append(items, iv)
		}
		return Seq(items...), nil
	case map[string]any:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMap()
		for _, k := range keys {
			iv, err := FromAny(vv[k])
			if err != nil {
				return Value{}, err
			}
			m.Set(k, iv)
		}
		return MapValue(m), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", v)
	}
}
