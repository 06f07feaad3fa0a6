package frontmatter

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Serialize encodes a Map as YAML (without delimiters), preserving key order
// and the source text of parsed scalars. Parse(Serialize(m)) equals m.
//
// Newlines follow the Style (defaults to \n). An empty map yields no bytes.
func Serialize(m *Map, style Style) ([]byte, error) {
	if m.Len() == 0 {
		return []byte{}, nil
	}

	nl := style.Newline
	if nl == "" {
		nl = "\n"
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(nodeFromMap(m)); err != nil {
		_ = enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}

	out := buf.Bytes()
	if nl != "\n" {
		out = bytes.ReplaceAll(out, []byte("\n"), []byte(nl))
	}
	return out, nil
}

func nodeFromMap(m *Map) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		n.Content = append(n.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			nodeFromValue(v))
	}
	return n
}

func nodeFromValue(v Value) *yaml.Node {
	scalar := func(tag, value string) *yaml.Node {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
	}
	switch v.kind {
	case KindString:
		return scalar("!!str", v.str)
	case KindInt:
		if v.raw != "" {
			return scalar("!!int", v.raw)
		}
		return scalar("!!int", strconv.FormatInt(v.num, 10))
	case KindFloat:
		if v.raw != "" {
			return scalar("!!float", v.raw)
		}
		return scalar("!!float", formatFloat(v.flt))
	case KindBool:
		return scalar("!!bool", strconv.FormatBool(v.b))
	case KindDate:
		if v.raw != "" {
			return scalar("!!timestamp", v.raw)
		}
		return scalar("!!timestamp", formatDate(v.t))
	case KindSeq:
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for _, item := range v.seq {
			seq.Content = append(seq.Content, nodeFromValue(item))
		}
		return seq
	case KindMap:
		return nodeFromMap(v.m)
	default:
		return scalar("!!null", "null")
	}
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	case math.IsNaN(f):
		return ".nan"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func formatDate(t time.Time) string {
	if t.Location() == time.UTC && t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(time.DateOnly)
	}
	return t.Format(time.RFC3339Nano)
}
