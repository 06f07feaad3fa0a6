package markdown

import (
	"sort"
	"strings"

	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// InternalPrefix marks a link destination that names a content file, e.g.
// "@/blog/post.md#section".
const InternalPrefix = "@/"

type LinkKind string

const (
	LinkKindInline              LinkKind = "inline"
	LinkKindImage               LinkKind = "image"
	LinkKindAuto                LinkKind = "auto"
	LinkKindReferenceDefinition LinkKind = "reference_definition"
)

type Link struct {
	Kind        LinkKind
	Destination string
}

// ExtractLinks parses a Markdown body and extracts link-like constructs.
// Links inside code spans and code blocks are not reported.
func ExtractLinks(body []byte) []Link {
	ctx := parser.NewContext()
	root := parser.NewParser(
		parser.WithBlockParsers(parser.DefaultBlockParsers()...),
		parser.WithInlineParsers(parser.DefaultInlineParsers()...),
		parser.WithParagraphTransformers(parser.DefaultParagraphTransformers()...),
	).Parse(text.NewReader(body), parser.WithContext(ctx))

	links := make([]Link, 0)
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *gmast.AutoLink:
			links = append(links, Link{Kind: LinkKindAuto, Destination: string(node.URL(body))})
		case *gmast.Image:
			links = append(links, Link{Kind: LinkKindImage, Destination: string(node.Destination)})
		case *gmast.Link:
			// Reference-style links resolve to a Link node with a Destination.
			links = append(links, Link{Kind: LinkKindInline, Destination: string(node.Destination)})
		}
		return gmast.WalkContinue, nil
	})

	// Reference definitions live in the parse context, not in the AST.
	refs := ctx.References()
	sort.Slice(refs, func(i, j int) bool {
		return string(refs[i].Label()) < string(refs[j].Label())
	})
	for _, ref := range refs {
		links = append(links, Link{Kind: LinkKindReferenceDefinition, Destination: string(ref.Destination())})
	}
	return links
}

// InternalTargets returns the content paths referenced through "@/" links,
// without fragments, deduplicated and sorted.
func InternalTargets(body []byte) []string {
	seen := map[string]bool{}
	for _, l := range ExtractLinks(body) {
		if target, _, ok := SplitInternal(l.Destination); ok {
			seen[target] = true
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// SplitInternal splits "@/a/b.md#frag" into ("a/b.md", "frag").
func SplitInternal(dest string) (target, fragment string, ok bool) {
	rest, ok := strings.CutPrefix(dest, InternalPrefix)
	if !ok {
		return "", "", false
	}
	target, fragment, _ = strings.Cut(rest, "#")
	return target, fragment, true
}
