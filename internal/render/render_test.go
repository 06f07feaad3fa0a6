package render

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegen/internal/content"
	"git.home.luguber.info/inful/sitegen/internal/depgraph"
	"git.home.luguber.info/inful/sitegen/internal/execute"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

const baseTpl = `<html><head><title>{{ block "title" . }}{{ .Site.Title }}{{ end }}</title></head>` +
	`<body>{{ template "partials/nav.html" . }}{{ block "main" . }}{{ end }}</body></html>`

type fixture struct {
	lib   *Library
	files map[string]*content.File
	inc   map[string]string
	data  map[string]any
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{lib: NewLibrary(), files: map[string]*content.File{}, inc: map[string]string{}, data: map[string]any{}}
	f.tpl(t, "base.html", baseTpl)
	f.tpl(t, "partials/nav.html", `<nav>{{ .Site.Title }}</nav>`)
	f.tpl(t, "page.html", `{{/* extends "base.html" */}}{{ define "title" }}{{ .Title }}{{ end }}{{ define "main" }}<article>{{ .Content }}</article>{{ end }}`)
	return f
}

func (f *fixture) tpl(t *testing.T, name, src string) {
	t.Helper()
	require.NoError(t, f.lib.Set(name, src))
}

func (f *fixture) page(t *testing.T, p, src string) {
	t.Helper()
	file, err := content.Parse(p, []byte(src), content.ParseOptions{Taxonomies: []string{"tags"}})
	require.NoError(t, err)
	f.files[p] = file
}

func (f *fixture) renderer(t *testing.T, strict bool, eng *execute.Engine) (*Renderer, *content.Site) {
	t.Helper()
	site, issues := content.Assemble(f.files, content.AssembleOptions{})
	require.Empty(t, issues)
	return New(Options{
		Library:  f.lib,
		Includes: f.inc,
		Data:     f.data,
		Site:     site,
		Info:     SiteInfo{Title: "My Site", BaseURL: "https://example.org", Language: "en"},
		Exec:     eng,
		Strict:   strict,
	}), site
}

func TestRenderPage_InheritanceAndIncludes(t *testing.T) {
	f := newFixture(t)
	f.page(t, "blog/hello.md", "---\ntitle: Hello\n---\n# Heading\n\nSee [other](@/blog/other.md#part).\n")
	f.page(t, "blog/other.md", "---\ntitle: Other\n---\nbody\n")
	r, site := f.renderer(t, false, nil)

	page, _ := site.Page("blog/hello.md")
	out, err := r.RenderPage(context.Background(), page)
	require.NoError(t, err)
	html := string(out.HTML)

	assert.Contains(t, html, "<title>Hello</title>")
	assert.Contains(t, html, "<nav>My Site</nav>")
	assert.Contains(t, html, `<h1 id="heading">Heading</h1>`)
	assert.Contains(t, html, `href="/blog/other/#part"`)
	assert.Empty(t, out.Body.Issues)
}

func TestRenderPage_IsDeterministic(t *testing.T) {
	f := newFixture(t)
	f.tpl(t, "page.html", `{{ range $k, $v := .Params }}{{ $k }}={{ $v }};{{ end }}{{ .Content }}`)
	f.page(t, "a.md", "---\ntitle: A\nzeta: 1\nalpha: 2\nmid: 3\n---\ntext\n")
	r, site := f.renderer(t, false, nil)
	page, _ := site.Page("a.md")

	first, err := r.RenderPage(context.Background(), page)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := r.RenderPage(context.Background(), page)
		require.NoError(t, err)
		assert.Equal(t, first.HTML, again.HTML)
	}
	assert.Contains(t, string(first.HTML), "alpha=2;mid=3;title=A;zeta=1;")
}

func TestRenderContent_ShortcodesAndIncludes(t *testing.T) {
	f := newFixture(t)
	f.tpl(t, "shortcodes/note.html", `{{/* param kind default="info" */}}<div class="note {{ .kind }}">{{ .Body | markdown }}</div>`)
	f.tpl(t, "shortcodes/youtube.html", `{{/* param id required */}}<iframe src="https://youtube.com/embed/{{ .id }}"></iframe>`)
	f.inc["snippets/disclaimer.md"] = "Standard *disclaimer*."
	f.page(t, "a.md", "---\ntitle: A\n---\n"+
		"{{ youtube(id=\"abc\") }}\n\n"+
		"{% note(kind='warn') %}\nNested {{ youtube(id=\"xyz\") }} here\n{% end %}\n\n"+
		"{{ include(path=\"snippets/disclaimer.md\") }}\n\n"+
		"```\n{{ youtube(id=\"untouched\") }}\n```\n")
	r, site := f.renderer(t, false, nil)
	page, _ := site.Page("a.md")

	body, err := r.RenderContent(context.Background(), page)
	require.NoError(t, err)
	html := string(body.Content)
	assert.Contains(t, html, `<iframe src="https://youtube.com/embed/abc"></iframe>`)
	assert.Contains(t, html, `<div class="note warn">`)
	assert.Contains(t, html, `embed/xyz`)
	assert.Contains(t, html, "Standard <em>disclaimer</em>.")
	assert.Contains(t, html, `{{ youtube(id=&quot;untouched&quot;) }}`)
}

func TestRenderContent_ShortcodeErrors(t *testing.T) {
	f := newFixture(t)
	f.tpl(t, "shortcodes/youtube.html", `{{/* param id required */}}<iframe>{{ .id }}</iframe>`)
	f.tpl(t, "shortcodes/loop.html", `{{ "{{ loop() }}" }}`)
	f.page(t, "missing.md", "---\ntitle: M\n---\n{{ youtube() }}\n")
	f.page(t, "unknown.md", "---\ntitle: U\n---\n{{ nope(a=1) }}\n")
	f.page(t, "recursive.md", "---\ntitle: R\n---\n{{ loop() }}\n")
	r, site := f.renderer(t, false, nil)

	render := func(p string) error {
		page, _ := site.Page(p)
		_, err := r.RenderContent(context.Background(), page)
		return err
	}

	err := render("missing.md")
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryShortcode, ferrors.GetCategory(err))

	err = render("unknown.md")
	require.Error(t, err)
	assert.Equal(t, ferrors.CodeTemplateNotFound, ferrors.Code(err))

	err = render("recursive.md")
	require.Error(t, err)
	assert.Equal(t, ferrors.CodeShortcodeRecursionLimit, ferrors.Code(err))
	assert.False(t, ferrors.IsFatal(err))
}

func TestRenderContent_SummaryAndBrokenLinks(t *testing.T) {
	f := newFixture(t)
	f.page(t, "a.md", "---\ntitle: A\n---\nIntro.\n\n<!-- more -->\n\nSee [x](@/nowhere.md).\n")
	r, site := f.renderer(t, false, nil)
	page, _ := site.Page("a.md")

	body, err := r.RenderContent(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, "<p>Intro.</p>", string(body.Summary))
	require.Len(t, body.Issues, 1)
	assert.Equal(t, ferrors.CodeBrokenInternalLink, ferrors.Code(body.Issues[0]))
	assert.Equal(t, ferrors.SeverityWarning, ferrors.GetSeverity(body.Issues[0]))

	strict, site := f.renderer(t, true, nil)
	page, _ = site.Page("a.md")
	body, err = strict.RenderContent(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, ferrors.SeverityError, ferrors.GetSeverity(body.Issues[0]))
}

func TestExecuteTemplate_UndefinedVariable(t *testing.T) {
	f := newFixture(t)
	f.tpl(t, "page.html", `[{{ .Params.missing }}]`)
	f.page(t, "a.md", "---\ntitle: A\n---\n")

	lenient, site := f.renderer(t, false, nil)
	page, _ := site.Page("a.md")
	html, issues, err := lenient.RenderPageTemplate(page)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(html))
	require.Len(t, issues, 1)
	assert.Equal(t, ferrors.CodeUndefinedVariable, ferrors.Code(issues[0]))

	strict, site := f.renderer(t, true, nil)
	page, _ = site.Page("a.md")
	_, _, err = strict.RenderPageTemplate(page)
	require.Error(t, err)
	assert.Equal(t, ferrors.CodeUndefinedVariable, ferrors.Code(err))
}

func TestExecuteTemplate_MissingAndCyclic(t *testing.T) {
	f := newFixture(t)
	f.tpl(t, "page.html", `{{/* extends "nope.html" */}}`)
	f.tpl(t, "a.html", `{{/* extends "b.html" */}}`)
	f.tpl(t, "b.html", `{{/* extends "a.html" */}}`)
	r, _ := f.renderer(t, false, nil)

	_, _, err := r.ExecuteTemplate("page.html", nil, "x")
	assert.Equal(t, ferrors.CodeTemplateNotFound, ferrors.Code(err))

	_, _, err = r.ExecuteTemplate("a.html", nil, "x")
	assert.Equal(t, ferrors.CodeCyclicTemplateGraph, ferrors.Code(err))
}

func TestTemplateFuncs(t *testing.T) {
	f := newFixture(t)
	f.data["authors"] = map[string]any{"jane": "Jane Doe"}
	f.tpl(t, "page.html", `{{ urlFor "b.md" }}|{{ absURL "/x/" }}|{{ (data "authors").jane }}|{{ slugify "Héllo Wörld" }}|`+
		`{{ title "hello world" }}|{{ upper "a" }}{{ lower "B" }}|{{ join ", " .Page.File.Aliases }}|{{ default "fallback" .Params.empty }}|`+
		`{{ dateFormat "2006" .Page.File.Date }}|{{ .Site.Data.authors.jane }}`)
	f.page(t, "a.md", "---\ntitle: A\ndate: 2021-03-04\naliases: [/one/, /two/]\nempty: \"\"\n---\n")
	f.page(t, "b.md", "---\ntitle: B\n---\n")
	r, site := f.renderer(t, false, nil)
	page, _ := site.Page("a.md")

	html, issues, err := r.RenderPageTemplate(page)
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.Equal(t, "/b/|https://example.org/x/|Jane Doe|hello-world|Hello World|Ab|/one/, /two/|fallback|2021|Jane Doe", string(html))
}

func TestRenderContent_ExecutesBlocks(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	f := newFixture(t)
	f.page(t, "a.md", "---\ntitle: A\n---\nBefore\n\n```{sh}\necho $((1+1))\n```\n\n```{sh show_source=false}\nexit 4\n```\n")
	eng := execute.New(execute.EngineOptions{Root: t.TempDir()})

	r, site := f.renderer(t, false, eng)
	page, _ := site.Page("a.md")
	body, err := r.RenderContent(context.Background(), page)
	require.NoError(t, err)
	html := string(body.Content)
	assert.Contains(t, html, `<div class="code-block-executed"><pre><code class="language-sh">`)
	assert.Contains(t, html, `<div class="code-output"><pre><code>2`)
	assert.Contains(t, html, `<div class="code-error">`)
	assert.NotContains(t, html, "sitegen:exec")
	require.Len(t, body.Issues, 1)
	assert.Equal(t, ferrors.CodeExecutionFailure, ferrors.Code(body.Issues[0]))

	strict, site := f.renderer(t, true, eng)
	page, _ = site.Page("a.md")
	_, err = strict.RenderContent(context.Background(), page)
	require.Error(t, err)
	assert.True(t, ferrors.IsFatal(err))
}

func TestParseShortcode_Schema(t *testing.T) {
	sc, err := ParseShortcode("figure", `{{/* param src required */}}
{{/* param alt default="an image" */}}
<figure><img src="{{ .src }}" alt="{{ .alt }}">{{ .Body }}</figure>`)
	require.NoError(t, err)
	assert.Equal(t, BodyBlock, sc.Kind)
	assert.Equal(t, []Param{
		{Name: "src", Required: true},
		{Name: "alt", Default: "an image", HasDefault: true},
	}, sc.Params)
}

func TestBodyRefsAndLibraryNodes(t *testing.T) {
	refs := BodyRefs("{{ include(path=\"a.md\") }}\n{% note() %}{{ yt(id=1) }}{% end %}\n[x](@/blog/_index.md) [y](@/b.md)\n```\n{{ hidden() }}\n```\n")
	assert.ElementsMatch(t, []depgraph.Ref{
		{Producer: depgraph.IncludeID("a.md"), Kind: depgraph.KindInclude},
		{Producer: depgraph.ShortcodeID("note"), Kind: depgraph.KindShortcodeCall},
		{Producer: depgraph.ShortcodeID("yt"), Kind: depgraph.KindShortcodeCall},
		{Producer: depgraph.SectionID("blog"), Kind: depgraph.KindDataReference},
		{Producer: depgraph.PageID("b.md"), Kind: depgraph.KindDataReference},
	}, refs)

	lib := NewLibrary()
	require.NoError(t, lib.Set("page.html", `{{/* extends "base.html" */}}{{ template "partials/x.html" . }}{{ data "menu" }}`))
	nodes := lib.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, []depgraph.Ref{
		{Producer: depgraph.TemplateID("base.html"), Kind: depgraph.KindTemplateUse},
		{Producer: depgraph.TemplateID("partials/x.html"), Kind: depgraph.KindTemplateUse},
		{Producer: depgraph.DataID("menu"), Kind: depgraph.KindDataReference},
	}, nodes[0].Refs)
}

func TestFileRefs(t *testing.T) {
	body := "```{sh file=\"run.sh\"}\n```\n" +
		"```{python file='../lib/util.py'}\n```\n" +
		"```{sh}\necho hi\n```\n" +
		"```{sh file=\"run.sh\"}\n```\n"
	assert.Equal(t, []depgraph.Ref{
		{Producer: depgraph.AssetID("blog/run.sh"), Kind: depgraph.KindFileReference},
		{Producer: depgraph.AssetID("lib/util.py"), Kind: depgraph.KindFileReference},
	}, FileRefs("blog/post.md", body))
	assert.Empty(t, FileRefs("blog/post.md", "no blocks\n"))
}

func TestParseTemplate_PageReachingRefs(t *testing.T) {
	tpl := ParseTemplate("page.html", `<a href="{{ urlFor "blog/second.md" }}">x</a><link href="{{ urlFor "/site.css" }}">`)
	assert.Equal(t, []string{"blog/second.md"}, tpl.Links)
	assert.Empty(t, tpl.DataRefs)
	assert.Contains(t, TemplateRefs(tpl), depgraph.Ref{Producer: depgraph.PageID("blog/second.md"), Kind: depgraph.KindDataReference})

	for _, src := range []string{
		`{{ with .Site }}{{ range .Pages }}{{ .Title }}{{ end }}{{ end }}`,
		`{{ template "list.html" .Site }}`,
		`{{ urlFor .Params.next }}`,
	} {
		assert.Equal(t, []string{ListingsData}, ParseTemplate("x.html", src).DataRefs, src)
	}
	assert.Empty(t, ParseTemplate("y.html", `{{ .Site.Title }} {{ .Site.BaseURL }}`).DataRefs)
}
