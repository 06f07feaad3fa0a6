package render

import "strings"

// span is a half-open byte range.
type span struct{ start, end int }

type fence struct {
	char  byte
	width int
	info  string
}

// openFence reports whether line opens a fenced code block.
func openFence(line string) (fence, bool) {
	trimmed := strings.TrimLeft(line, " ")
	if len(line)-len(trimmed) > 3 || len(trimmed) < 3 {
		return fence{}, false
	}
	c := trimmed[0]
	if c != '`' && c != '~' {
		return fence{}, false
	}
	n := 0
	for n < len(trimmed) && trimmed[n] == c {
		n++
	}
	if n < 3 {
		return fence{}, false
	}
	info := strings.TrimSpace(trimmed[n:])
	if c == '`' && strings.Contains(info, "`") {
		return fence{}, false
	}
	return fence{char: c, width: n, info: info}, true
}

func (f fence) closedBy(line string) bool {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) < f.width {
		return false
	}
	for i := 0; i < len(trimmed); i++ {
		if trimmed[i] != f.char {
			return false
		}
	}
	return true
}

// fencedSpans returns the byte ranges of src covered by fenced code,
// fence lines included. An unterminated fence runs to the end.
func fencedSpans(src string) []span {
	var spans []span
	var (
		open  *fence
		start int
	)
	offset := 0
	for _, line := range strings.SplitAfter(src, "\n") {
		if open == nil {
			if f, ok := openFence(strings.TrimRight(line, "\r\n")); ok {
				open = &f
				start = offset
			}
		} else if open.closedBy(line) {
			spans = append(spans, span{start, offset + len(line)})
			open = nil
		}
		offset += len(line)
	}
	if open != nil {
		spans = append(spans, span{start, len(src)})
	}
	return spans
}

func inSpans(spans []span, pos int) (span, bool) {
	for _, s := range spans {
		if pos >= s.start && pos < s.end {
			return s, true
		}
	}
	return span{}, false
}
