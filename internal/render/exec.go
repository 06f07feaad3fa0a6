package render

import (
	"encoding/base64"
	"fmt"
	"html"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/sitegen/internal/execute"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

const placeholderPrefix = "<!-- sitegen:exec:"

func placeholder(i int) string {
	return placeholderPrefix + strconv.Itoa(i) + " -->"
}

// extractExecBlocks replaces executable fences with placeholders. Fences
// with malformed attributes stay ordinary code and are reported.
func extractExecBlocks(page, body string) (string, []execute.Block, []error) {
	var (
		out    strings.Builder
		blocks []execute.Block
		issues []error
		open   *fence
		cur    *execute.Block
		src    strings.Builder
	)
	for _, line := range strings.SplitAfter(body, "\n") {
		bare := strings.TrimRight(line, "\r\n")
		if open == nil {
			f, ok := openFence(bare)
			if !ok {
				out.WriteString(line)
				continue
			}
			open = &f
			lang, opts, exec, err := execute.ParseInfo(f.info)
			if exec && err == nil {
				cur = &execute.Block{Page: page, Index: len(blocks), Language: lang, Options: opts}
				src.Reset()
				continue
			}
			if err != nil {
				issues = append(issues, ferrors.ExecutionError(fmt.Sprintf("invalid code block attributes: %v", err)).
					WithContext("page", page).
					WithContext("info", f.info).
					Warning().
					Build())
			}
			out.WriteString(line)
			continue
		}

		if open.closedBy(line) {
			open = nil
			if cur != nil {
				cur.Source = src.String()
				blocks = append(blocks, *cur)
				out.WriteString("\n" + placeholder(cur.Index) + "\n\n")
				cur = nil
				continue
			}
			out.WriteString(line)
			continue
		}
		if cur != nil {
			src.WriteString(line)
		} else {
			out.WriteString(line)
		}
	}
	if cur != nil {
		cur.Source = src.String()
		blocks = append(blocks, *cur)
		out.WriteString("\n" + placeholder(cur.Index) + "\n")
	}
	return out.String(), blocks, issues
}

// execFragment renders one block result.
func execFragment(r execute.Result) string {
	var b strings.Builder
	b.WriteString(`<div class="code-block-executed">`)
	if r.Block.Options.ShowSource || r.Skipped {
		fmt.Fprintf(&b, `<pre><code class="language-%s">%s</code></pre>`,
			html.EscapeString(r.Block.Language), html.EscapeString(r.Block.Source))
	}
	if r.Block.Options.Echo && !r.Skipped {
		if r.Stdout != "" {
			fmt.Fprintf(&b, `<div class="code-output"><pre><code>%s</code></pre></div>`, html.EscapeString(r.Stdout))
		}
		for _, a := range r.Artifacts {
			b.WriteString(artifactHTML(a))
		}
	}
	if r.Err != nil || r.Stderr != "" {
		msg := r.Stderr
		if r.Err != nil {
			msg = strings.TrimSpace(r.Stderr + "\n" + errorMessage(r.Err))
		}
		fmt.Fprintf(&b, `<div class="code-error"><pre><code>%s</code></pre></div>`, html.EscapeString(msg))
	}
	b.WriteString("</div>")
	return b.String()
}

func errorMessage(err error) string {
	if ce, ok := ferrors.AsClassified(err); ok {
		return ce.Message()
	}
	return err.Error()
}

func artifactHTML(a execute.Artifact) string {
	switch {
	case a.MIME == "text/html":
		return `<div class="code-output-html">` + a.Data + `</div>`
	case strings.HasPrefix(a.MIME, "image/svg"):
		if _, err := base64.StdEncoding.DecodeString(a.Data); err != nil {
			return `<div class="code-output-image">` + a.Data + `</div>`
		}
		fallthrough
	case strings.HasPrefix(a.MIME, "image/"):
		return fmt.Sprintf(`<img class="code-output-image" src="data:%s;base64,%s" alt="">`,
			html.EscapeString(a.MIME), html.EscapeString(a.Data))
	default:
		return fmt.Sprintf(`<div class="code-output"><pre><code>%s</code></pre></div>`, html.EscapeString(a.Data))
	}
}
