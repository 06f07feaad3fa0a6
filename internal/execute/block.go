package execute

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Block is one executable fenced code block.
type Block struct {
	// Page is the content-relative path of the page holding the block.
	Page string
	// Index is the zero-based position among the page's executable blocks.
	Index    int
	Language string
	Source   string
	Options  Options
}

// Options are the attributes written in the fence info string.
type Options struct {
	// Echo renders the captured output.
	Echo bool
	// ShowSource renders the block source above the output.
	ShowSource bool
	// CacheKey is mixed into the hash so authors can force a re-run.
	CacheKey string
	// File loads the source from a path relative to the page.
	File string
}

// DefaultOptions returns the options used when the info string sets none.
func DefaultOptions() Options {
	return Options{Echo: true, ShowSource: true}
}

// Canonical renders the options in a stable form for hashing.
func (o Options) Canonical() string {
	fields := map[string]string{
		"echo":        strconv.FormatBool(o.Echo),
		"show_source": strconv.FormatBool(o.ShowSource),
		"cache_key":   o.CacheKey,
		"file":        o.File,
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strconv.Quote(fields[k]))
		b.WriteByte(';')
	}
	return b.String()
}

// ParseInfo recognizes an executable fence info string such as
//
//	{python echo=false cache_key="v2" file="plot.py"}
//
// ok is false for ordinary fences. Unknown attributes are an error so that
// typos do not silently change the cache key.
func ParseInfo(info string) (lang string, opts Options, ok bool, err error) {
	info = strings.TrimSpace(info)
	if !strings.HasPrefix(info, "{") || !strings.HasSuffix(info, "}") {
		return "", Options{}, false, nil
	}
	inner := strings.TrimSpace(info[1 : len(info)-1])
	if inner == "" {
		return "", Options{}, false, nil
	}

	end := strings.IndexFunc(inner, unicode.IsSpace)
	if end < 0 {
		end = len(inner)
	}
	lang = inner[:end]
	opts = DefaultOptions()

	attrs, err := parseAttrs(inner[end:])
	if err != nil {
		return lang, opts, true, err
	}
	for _, a := range attrs {
		switch a.key {
		case "echo":
			opts.Echo, err = strconv.ParseBool(a.value)
		case "show_source":
			opts.ShowSource, err = strconv.ParseBool(a.value)
		case "cache_key":
			opts.CacheKey = a.value
		case "file":
			opts.File = a.value
		default:
			err = fmt.Errorf("unknown attribute %q", a.key)
		}
		if err != nil {
			return lang, opts, true, fmt.Errorf("attribute %s: %w", a.key, err)
		}
	}
	return lang, opts, true, nil
}

type attr struct {
	key, value string
}

func parseAttrs(s string) ([]attr, error) {
	var out []attr
	i := 0
	for {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == ',') {
			i++
		}
		if i >= len(s) {
			return out, nil
		}
		eq := strings.IndexByte(s[i:], '=')
		if eq <= 0 {
			return nil, fmt.Errorf("malformed attribute near %q", s[i:])
		}
		key := strings.TrimSpace(s[i : i+eq])
		i += eq + 1
		if i >= len(s) {
			return nil, fmt.Errorf("attribute %s has no value", key)
		}
		var value string
		if q := s[i]; q == '"' || q == '\'' {
			closing := strings.IndexByte(s[i+1:], q)
			if closing < 0 {
				return nil, fmt.Errorf("unterminated value for %s", key)
			}
			value = s[i+1 : i+1+closing]
			i += closing + 2
		} else {
			j := i
			for j < len(s) && s[j] != ' ' && s[j] != '\t' && s[j] != ',' {
				j++
			}
			value = s[i:j]
			i = j
		}
		out = append(out, attr{key: key, value: value})
	}
}
