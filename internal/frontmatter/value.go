package frontmatter

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindDate
	KindSeq
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	case KindSeq:
		return "sequence"
	case KindMap:
		return "mapping"
	default:
		return "unknown"
	}
}

// Value is a closed tagged variant holding one front matter value.
//
// The zero Value is null. Scalars parsed from YAML remember their source text
// so that serialization reproduces floats and dates exactly.
type Value struct {
	kind Kind
	str  string
	num  int64
	flt  float64
	b    bool
	t    time.Time
	seq  []Value
	m    *Map
	raw  string
}

func Null() Value              { return Value{} }
func String(s string) Value    { return Value{kind: KindString, str: s} }
func Int(n int64) Value        { return Value{kind: KindInt, num: n} }
func Float(f float64) Value    { return Value{kind: KindFloat, flt: f} }
func Bool(b bool) Value        { return Value{kind: KindBool, b: b} }
func Date(t time.Time) Value   { return Value{kind: KindDate, t: t} }
func Seq(items ...Value) Value { return Value{kind: KindSeq, seq: items} }
func MapValue(m *Map) Value    { return Value{kind: KindMap, m: m} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) withRaw(raw string) Value {
	v.raw = raw
	return v
}

// StringValues converts a []string into a sequence Value.
func StringValues(items []string) Value {
	seq := make([]Value, len(items))
	for i, s := range items {
		seq[i] = String(s)
	}
	return Seq(seq...)
}

func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// AsInt returns integer values; floats with no fractional part are accepted.
func (v Value) AsInt() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.num, true
	case KindFloat:
		if v.flt == float64(int64(v.flt)) {
			return int64(v.flt), true
		}
	}
	return 0, false
}

func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.flt, true
	case KindInt:
		return float64(v.num), true
	}
	return 0, false
}

func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// AsTime accepts dates as well as strings in RFC 3339 or YYYY-MM-DD form.
func (v Value) AsTime() (time.Time, bool) {
	switch v.kind {
	case KindDate:
		return v.t, true
	case KindString:
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", time.DateOnly} {
			if t, err := time.Parse(layout, v.str); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func (v Value) AsSeq() ([]Value, bool) {
	return v.seq, v.kind == KindSeq
}

func (v Value) AsMap() (*Map, bool) {
	return v.m, v.kind == KindMap
}

// Strings returns a sequence of strings; a single string is treated as a
// one-element sequence.
func (v Value) Strings() ([]string, bool) {
	switch v.kind {
	case KindString:
		return []string{v.str}, true
	case KindSeq:
		out := make([]string, 0, len(v.seq))
		for _, item := range v.seq {
			s, ok := item.AsString()
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// Interface converts the value to plain Go values for template access.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return v.num
	case KindFloat:
		return v.flt
	case KindBool:
		return v.b
	case KindDate:
		return v.t
	case KindSeq:
		out := make([]any, len(v.seq))
		for i, item := range v.seq {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		return v.m.Interface()
	default:
		return nil
	}
}

// Equal reports deep equality of kind and content. Source text is ignored.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == o.str
	case KindInt:
		return v.num == o.num
	case KindFloat:
		return v.flt == o.flt
	case KindBool:
		return v.b == o.b
	case KindDate:
		return v.t.Equal(o.t)
	case KindSeq:
		if len(v.seq) != len(o.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(o.seq[i]) {
				return false
			}
		}
		return true
	case KindMap:
		return v.m.Equal(o.m)
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindFloat:
		return strconv.FormatFloat(v.flt, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindDate:
		return v.t.Format(time.RFC3339)
	default:
		return fmt.Sprint(v.Interface())
	}
}

// Map is an insertion-ordered string-keyed mapping of Values.
type Map struct {
	keys   []string
	values map[string]Value
}

func NewMap() *Map {
	return &Map{values: make(map[string]Value)}
}

// Set inserts or replaces key. Replacing keeps the original position.
func (m *Map) Set(key string, v Value) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

func (m *Map) Get(key string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	v, ok := m.values[key]
	return v, ok
}

func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

func (m *Map) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// SortedKeys returns keys in lexical order.
func (m *Map) SortedKeys() []string {
	keys := m.Keys()
	sort.Strings(keys)
	return keys
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Interface converts the mapping to map[string]any for template access.
func (m *Map) Interface() map[string]any {
	out := make(map[string]any, m.Len())
	if m == nil {
		return out
	}
	for _, k := range m.keys {
		out[k] = m.values[k].Interface()
	}
	return out
}

// Equal compares content and key order.
func (m *Map) Equal(o *Map) bool {
	if m.Len() != o.Len() {
		return false
	}
	if m.Len() == 0 {
		return true
	}
	for i, k := range m.keys {
		if o.keys[i] != k || !m.values[k].Equal(o.values[k]) {
			return false
		}
	}
	return true
}
