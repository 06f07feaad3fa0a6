// Package frontmatter splits, parses and serializes the YAML metadata block
// at the top of content files.
package frontmatter

import (
	"bytes"
	"errors"
)

// Delimiter fences the front matter block on its own line.
const Delimiter = "---"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Style captures formatting details needed for stable rewriting.
//
// It focuses on newline/trailing newline shape and does not attempt to
// preserve original YAML formatting.
type Style struct {
	Newline            string
	HasTrailingNewline bool
}

// Split separates YAML front matter (`---` delimited) from the Markdown body.
//
// If the document does not start with a delimiter line, had is false and body
// is the full input. A closing delimiter on the last line without a trailing
// newline is accepted.
func Split(content []byte) (frontmatter []byte, body []byte, had bool, style Style, err error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	style = detectStyle(content)

	nl := style.Newline
	open := []byte(Delimiter + nl)
	if !bytes.HasPrefix(content, open) {
		return nil, content, false, style, nil
	}

	start := len(open)
	rest := content[start:]
	if bytes.HasPrefix(rest, open) {
		return []byte{}, rest[len(open):], true, style, nil
	}
	if bytes.Equal(rest, []byte(Delimiter)) {
		return []byte{}, []byte{}, true, style, nil
	}

	closeSeq := []byte(nl + Delimiter + nl)
	if idx := bytes.Index(rest, closeSeq); idx >= 0 {
		return rest[:idx+len(nl)], rest[idx+len(closeSeq):], true, style, nil
	}
	if eof := []byte(nl + Delimiter); bytes.HasSuffix(rest, eof) {
		return rest[:len(rest)-len(Delimiter)], []byte{}, true, style, nil
	}
	return nil, nil, false, style, ErrMissingClosingDelimiter
}

// Join reassembles a document from raw front matter and body.
//
// If had is false, Join returns body as-is.
func Join(frontmatter []byte, body []byte, had bool, style Style) []byte {
	if !had {
		return body
	}

	nl := style.Newline
	if nl == "" {
		nl = "\n"
	}
	fence := []byte(Delimiter + nl)

	out := make([]byte, 0, 2*len(fence)+len(frontmatter)+len(body))
	out = append(out, fence...)
	out = append(out, frontmatter...)
	out = append(out, fence...)
	out = append(out, body...)
	return out
}

// ErrMissingClosingDelimiter indicates the document started with a front
// matter delimiter but did not contain a closing delimiter.
var ErrMissingClosingDelimiter = errors.New("front matter start delimiter found but closing delimiter is missing")

func detectStyle(content []byte) Style {
	newline := "\n"
	if i := bytes.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		newline = "\r\n"
	}
	return Style{
		Newline:            newline,
		HasTrailingNewline: len(content) > 0 && content[len(content)-1] == '\n',
	}
}
