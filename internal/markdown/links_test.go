package markdown

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractLinks_InlineLink(t *testing.T) {
	links := ExtractLinks([]byte("See [API](api.md) for details."))
	require.Len(t, links, 1)
	require.Equal(t, LinkKindInline, links[0].Kind)
	require.Equal(t, "api.md", links[0].Destination)
}

func TestExtractLinks_ImageLink(t *testing.T) {
	links := ExtractLinks([]byte("![Diagram](diagram.png)"))
	require.Len(t, links, 1)
	require.Equal(t, LinkKindImage, links[0].Kind)
	require.Equal(t, "diagram.png", links[0].Destination)
}

func TestExtractLinks_AutoLink(t *testing.T) {
	links := ExtractLinks([]byte("<https://example.com/path>"))
	require.Len(t, links, 1)
	require.Equal(t, LinkKindAuto, links[0].Kind)
	require.Equal(t, "https://example.com/path", links[0].Destination)
}

func TestExtractLinks_ReferenceLinkUsageAndDefinition(t *testing.T) {
	links := ExtractLinks([]byte("See [API][ref].\n\n[ref]: api.md\n"))
	require.Len(t, links, 2)
	require.Equal(t, LinkKindInline, links[0].Kind)
	require.Equal(t, LinkKindReferenceDefinition, links[1].Kind)
	require.Equal(t, "api.md", links[1].Destination)
}

func TestExtractLinks_SkipsInlineCodeAndCodeBlocks(t *testing.T) {
	src := []byte("" +
		"Inline code: `[Link](./ignored-inline.md)`\n" +
		"\n" +
		"```\n" +
		"[Link](./ignored-fence.md)\n" +
		"```\n" +
		"\n" +
		"Real: [OK](./real.md)\n")

	links := ExtractLinks(src)
	require.Len(t, links, 1)
	require.Equal(t, "./real.md", links[0].Destination)
}

func TestInternalTargets(t *testing.T) {
	src := []byte("[a](@/blog/a.md#x) [b](@/b.md) [again](@/blog/a.md) [ext](https://x.org)\n\n```\n[no](@/code.md)\n```\n")
	require.Equal(t, []string{"b.md", "blog/a.md"}, InternalTargets(src))
}

func TestConvert_ResolvesInternalLinks(t *testing.T) {
	c := New(Options{})
	resolve := func(target string) (string, bool) {
		if target == "blog/a.md" {
			return "/blog/a/", true
		}
		return "", false
	}

	res, err := c.Convert([]byte("# Title\n\n[a](@/blog/a.md#intro) and [gone](@/missing.md)\n"), resolve)
	require.NoError(t, err)
	require.Contains(t, res.HTML, `<h1 id="title">Title</h1>`)
	require.Contains(t, res.HTML, `href="/blog/a/#intro"`)
	require.Equal(t, []string{"@/missing.md"}, res.Unresolved)
}

func TestConvert_PassesRawHTMLThrough(t *testing.T) {
	c := New(Options{})
	res, err := c.Convert([]byte("<!-- sitegen:exec:0 -->\n\n<div class=\"note\">hi</div>\n"), nil)
	require.NoError(t, err)
	require.Contains(t, res.HTML, "<!-- sitegen:exec:0 -->")
	require.Contains(t, res.HTML, `<div class="note">hi</div>`)
}

func TestConvert_HardWraps(t *testing.T) {
	src := []byte("one\ntwo\n")

	res, err := New(Options{}).Convert(src, nil)
	require.NoError(t, err)
	require.NotContains(t, res.HTML, "<br")

	res, err = New(Options{HardWraps: true}).Convert(src, nil)
	require.NoError(t, err)
	require.Contains(t, res.HTML, "one<br>")
}
