package render

import (
	"fmt"
	"strconv"
	"strings"
)

// call is one shortcode invocation found in a body.
type call struct {
	Name string
	Args map[string]any
	// Body is nil for the inline form.
	Body       *string
	Start, End int
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdent(c byte) bool {
	return isIdentStart(c) || c == '-' || (c >= '0' && c <= '9')
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

// parseTag parses `name(args)` followed by the closing delimiter, starting
// just after the opening delimiter. It returns the index after the closing
// delimiter, or ok=false if the text is not a shortcode tag.
func parseTag(s string, i int, closer string) (name string, args map[string]any, end int, ok bool, err error) {
	i = skipSpace(s, i)
	if i >= len(s) || !isIdentStart(s[i]) {
		return "", nil, 0, false, nil
	}
	j := i
	for j < len(s) && isIdent(s[j]) {
		j++
	}
	name = s[i:j]
	j = skipSpace(s, j)
	if name == "end" && closer == "%}" && strings.HasPrefix(s[j:], closer) {
		return name, nil, j + len(closer), true, nil
	}
	if j >= len(s) || s[j] != '(' {
		return "", nil, 0, false, nil
	}
	args, j, err = parseArgs(s, j+1)
	if err != nil {
		return name, nil, 0, true, err
	}
	j = skipSpace(s, j)
	if !strings.HasPrefix(s[j:], closer) {
		return "", nil, 0, false, nil
	}
	return name, args, j + len(closer), true, nil
}

// parseArgs reads `k="v", n=3, b=true` up to the closing parenthesis.
func parseArgs(s string, i int) (map[string]any, int, error) {
	args := map[string]any{}
	for {
		i = skipSpace(s, i)
		if i >= len(s) {
			return nil, i, fmt.Errorf("unterminated argument list")
		}
		if s[i] == ')' {
			return args, i + 1, nil
		}
		if s[i] == ',' {
			i++
			continue
		}
		if !isIdentStart(s[i]) {
			return nil, i, fmt.Errorf("unexpected %q in argument list", s[i])
		}
		k := i
		for i < len(s) && isIdent(s[i]) {
			i++
		}
		key := s[k:i]
		i = skipSpace(s, i)
		if i >= len(s) || s[i] != '=' {
			return nil, i, fmt.Errorf("argument %s has no value", key)
		}
		i = skipSpace(s, i+1)
		if i >= len(s) {
			return nil, i, fmt.Errorf("argument %s has no value", key)
		}
		if q := s[i]; q == '"' || q == '\'' {
			var b strings.Builder
			i++
			for i < len(s) && s[i] != q {
				if s[i] == '\\' && i+1 < len(s) {
					i++
				}
				b.WriteByte(s[i])
				i++
			}
			if i >= len(s) {
				return nil, i, fmt.Errorf("unterminated string for %s", key)
			}
			args[key] = b.String()
			i++
			continue
		}
		v := i
		for i < len(s) && s[i] != ',' && s[i] != ')' && s[i] != ' ' && s[i] != '\t' {
			i++
		}
		val, err := literal(s[v:i])
		if err != nil {
			return nil, i, fmt.Errorf("argument %s: %w", key, err)
		}
		args[key] = val
	}
}

func literal(raw string) (any, error) {
	switch raw {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f, nil
	}
	return nil, fmt.Errorf("unsupported value %q", raw)
}

// findCalls locates top-level shortcode calls outside fenced code, left to
// right. Bodies of the block form are returned raw; nested calls inside a
// body are found when the body itself is expanded.
func findCalls(src string) ([]call, error) {
	fenced := fencedSpans(src)
	var calls []call
	i := 0
	for i < len(src)-1 {
		if sp, ok := inSpans(fenced, i); ok {
			i = sp.end
			continue
		}
		switch {
		case strings.HasPrefix(src[i:], "{{"):
			name, args, end, ok, err := parseTag(src, i+2, "}}")
			if err != nil {
				return nil, fmt.Errorf("shortcode %s: %w", name, err)
			}
			if ok && name != "end" {
				calls = append(calls, call{Name: name, Args: args, Start: i, End: end})
				i = end
				continue
			}
		case strings.HasPrefix(src[i:], "{%"):
			name, args, end, ok, err := parseTag(src, i+2, "%}")
			if err != nil {
				return nil, fmt.Errorf("shortcode %s: %w", name, err)
			}
			if ok && name != "end" {
				bodyEnd, after, err := matchEnd(src, end, fenced)
				if err != nil {
					return nil, fmt.Errorf("shortcode %s: %w", name, err)
				}
				body := src[end:bodyEnd]
				calls = append(calls, call{Name: name, Args: args, Body: &body, Start: i, End: after})
				i = after
				continue
			}
		}
		i++
	}
	return calls, nil
}

// matchEnd finds the `{% end %}` closing the body that starts at i,
// honoring nested body shortcodes.
func matchEnd(src string, i int, fenced []span) (bodyEnd, after int, err error) {
	depth := 1
	for i < len(src)-1 {
		if sp, ok := inSpans(fenced, i); ok {
			i = sp.end
			continue
		}
		if strings.HasPrefix(src[i:], "{%") {
			name, _, end, ok, _ := parseTag(src, i+2, "%}")
			if ok {
				if name == "end" {
					depth--
					if depth == 0 {
						return i, end, nil
					}
				} else {
					depth++
				}
				i = end
				continue
			}
		}
		i++
	}
	return 0, 0, fmt.Errorf("missing {%% end %%}")
}
