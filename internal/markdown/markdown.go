// Package markdown converts page bodies to HTML with goldmark and resolves
// "@/" internal links during conversion.
package markdown

import (
	"bytes"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// Options controls Markdown conversion.
type Options struct {
	// HardWraps renders soft line breaks as <br>.
	HardWraps bool
	// Typographer enables smart quotes and dashes.
	Typographer bool
}

// LinkResolver maps a content path from an "@/" link to its site URL.
type LinkResolver func(target string) (url string, ok bool)

// Result is the outcome of converting one body.
type Result struct {
	HTML string
	// Unresolved lists "@/" destinations the resolver did not know.
	Unresolved []string
}

// Converter is safe for concurrent use.
type Converter struct {
	md goldmark.Markdown
}

var resolverKey = parser.NewContextKey()

type resolveState struct {
	resolve    LinkResolver
	unresolved []string
}

func New(opts Options) *Converter {
	exts := []goldmark.Extender{extension.GFM, extension.Footnote, extension.DefinitionList}
	if opts.Typographer {
		exts = append(exts, extension.Typographer)
	}
	htmlOpts := []renderer.Option{html.WithUnsafe()}
	if opts.HardWraps {
		htmlOpts = append(htmlOpts, html.WithHardWraps())
	}
	return &Converter{md: goldmark.New(
		goldmark.WithExtensions(exts...),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithASTTransformers(util.Prioritized(internalLinkTransformer{}, 100)),
		),
		goldmark.WithRendererOptions(htmlOpts...),
	)}
}

// Convert renders src to HTML. Raw HTML (shortcode output, execution
// placeholders) passes through untouched.
func (c *Converter) Convert(src []byte, resolve LinkResolver) (Result, error) {
	state := &resolveState{resolve: resolve}
	pctx := parser.NewContext()
	pctx.Set(resolverKey, state)

	var buf bytes.Buffer
	if err := c.md.Convert(src, &buf, parser.WithContext(pctx)); err != nil {
		return Result{}, err
	}
	return Result{HTML: buf.String(), Unresolved: state.unresolved}, nil
}

type internalLinkTransformer struct{}

func (internalLinkTransformer) Transform(doc *gmast.Document, _ text.Reader, pc parser.Context) {
	state, _ := pc.Get(resolverKey).(*resolveState)
	if state == nil {
		return
	}
	_ = gmast.Walk(doc, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *gmast.Link:
			node.Destination = state.rewrite(node.Destination)
		case *gmast.Image:
			node.Destination = state.rewrite(node.Destination)
		}
		return gmast.WalkContinue, nil
	})
}

func (s *resolveState) rewrite(dest []byte) []byte {
	target, fragment, ok := SplitInternal(string(dest))
	if !ok {
		return dest
	}
	if s.resolve == nil {
		s.unresolved = append(s.unresolved, string(dest))
		return dest
	}
	url, found := s.resolve(target)
	if !found {
		s.unresolved = append(s.unresolved, string(dest))
		return dest
	}
	if fragment != "" {
		url += "#" + fragment
	}
	return []byte(url)
}
