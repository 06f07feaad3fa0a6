package frontmatter

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_TypedValues(t *testing.T) {
	src := []byte(`title: Hi
count: 3
ratio: 1.50
draft: false
date: 2024-03-01
tags: [go, "static sites"]
extra:
  author: ann
  nested:
    - 1
    - two
empty:
`)
	m, err := Parse(src)
	require.NoError(t, err)
	require.Equal(t, []string{"title", "count", "ratio", "draft", "date", "tags", "extra", "empty"}, m.Keys())

	title, _ := m.Get("title")
	s, ok := title.AsString()
	require.True(t, ok)
	assert.Equal(t, "Hi", s)

	count, _ := m.Get("count")
	n, ok := count.AsInt()
	require.True(t, ok)
	assert.EqualValues(t, 3, n)

	ratio, _ := m.Get("ratio")
	f, ok := ratio.AsFloat()
	require.True(t, ok)
	assert.InDelta(t, 1.5, f, 1e-9)

	date, _ := m.Get("date")
	assert.Equal(t, KindDate, date.Kind())
	ts, ok := date.AsTime()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), ts)

	tags, _ := m.Get("tags")
	list, ok := tags.Strings()
	require.True(t, ok)
	assert.Equal(t, []string{"go", "static sites"}, list)

	extra, _ := m.Get("extra")
	assert.Equal(t, map[string]any{"author": "ann", "nested": []any{int64(1), "two"}}, extra.Interface())

	empty, _ := m.Get("empty")
	assert.True(t, empty.IsNull())
}

func TestParse_RejectsNonMappingRoot(t *testing.T) {
	_, err := Parse([]byte("- a\n- b\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotMapping))
}

func TestParse_RejectsDuplicateKeys(t *testing.T) {
	_, err := Parse([]byte("a: 1\na: 2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate key")
}

func TestParse_MergeKeys(t *testing.T) {
	m, err := Parse([]byte("base: &b {x: 1, y: 2}\nitem:\n  <<: *b\n  y: 3\n"))
	require.NoError(t, err)
	item, _ := m.Get("item")
	assert.Equal(t, map[string]any{"x": int64(1), "y": int64(3)}, item.Interface())
}

func TestParse_InvalidYAML_ReturnsError(t *testing.T) {
	_, err := Parse([]byte("title: [unterminated\n"))
	require.Error(t, err)
}

func TestParse_Empty_ReturnsEmptyMap(t *testing.T) {
	m, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
}

func TestSerialize_RoundTripIsLossless(t *testing.T) {
	inputs := []string{
		"title: Hi\n",
		"title: \"true\"\ncount: 7\nratio: 1.50\n",
		"date: 2024-03-01\nupdated: 2024-03-01T10:20:30+02:00\n",
		"tags:\n  - a\n  - b\nextra:\n  z: 1\n  a:\n    deep: [1, 2.5, null, yes]\n",
		"body: |\n  line one\n  line two\nquote: \"it's: here\"\n",
		"big: 1e+06\nneg: -.inf\n",
	}
	for _, in := range inputs {
		first, err := Parse([]byte(in))
		require.NoError(t, err, in)

		out, err := Serialize(first, Style{})
		require.NoError(t, err, in)

		second, err := Parse(out)
		require.NoError(t, err, string(out))
		assert.True(t, first.Equal(second), "round trip changed %q into %q", in, out)
	}
}

func TestSerialize_PreservesKeyOrderAndNewlines(t *testing.T) {
	m := NewMap()
	m.Set("zeta", String("z"))
	m.Set("alpha", Int(1))
	m.Set("when", Date(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
	m.Set("f", Float(2))

	out, err := Serialize(m, Style{Newline: "\r\n"})
	require.NoError(t, err)
	assert.Equal(t, "zeta: z\r\nalpha: 1\r\nwhen: 2024-01-02\r\nf: 2.0\r\n", string(out))
}

func TestSerialize_EmptyMap_ReturnsEmpty(t *testing.T) {
	out, err := Serialize(NewMap(), Style{})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestFromAny_SortsKeysAndNarrowsNumbers(t *testing.T) {
	v, err := FromAny(map[string]any{"b": 2.0, "a": []any{"x", 1.5}})
	require.NoError(t, err)
	m, ok := v.AsMap()
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, m.Keys())
	b, _ := m.Get("b")
	assert.Equal(t, KindInt, b.Kind())
}
