package build

import (
	"context"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/depgraph"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/storage"
)

type project struct {
	root string
	cfg  *config.Config
}

func newProject(t *testing.T) *project {
	t.Helper()
	p := &project{root: t.TempDir()}
	cfg := config.Default()
	cfg.Root = p.root
	cfg.Title = "Test Site"
	cfg.BaseURL = "https://example.org"
	cfg.Build.History = false
	p.cfg = cfg

	p.write(t, "templates/index.html", `<h1>{{ .Site.Title }}</h1>{{ range .Site.Pages }}<a href="{{ .URL }}">{{ .Title }}</a>{{ end }}`)
	p.write(t, "templates/section.html", `<h2>{{ .Title }}</h2>{{ range .Pager.Items }}<a href="{{ .URL }}">{{ .Title }}</a>{{ end }}`)
	p.write(t, "templates/page.html", `<title>{{ .Title }}</title><main>{{ .Content }}</main>`)
	p.write(t, "content/blog/_index.md", "---\ntitle: Blog\n---\n")
	p.write(t, "content/blog/first.md", "---\ntitle: First\ndate: 2024-01-01\n---\nHello [second](@/blog/second.md).\n")
	p.write(t, "content/blog/second.md", "---\ntitle: Second\ndate: 2024-01-02\n---\nWorld\n")
	p.write(t, "static/robots.txt", "User-agent: *\n")
	return p
}

func (p *project) write(t *testing.T, rel, data string) {
	t.Helper()
	full := filepath.Join(p.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o750))
	require.NoError(t, os.WriteFile(full, []byte(data), 0o600))
}

func (p *project) engine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithObjectStore(storage.NewMemoryStore())}, opts...)
	e, err := NewEngine(p.cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func (p *project) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(p.root, p.cfg.OutputDir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func readTree(t *testing.T, dir string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		out[filepath.ToSlash(rel)] = string(data)
		return err
	})
	require.NoError(t, err)
	return out
}

func TestRunFullBuild_WritesSite(t *testing.T) {
	p := newProject(t)
	e := p.engine(t)

	r, err := e.RunFullBuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, r.Outcome, r.Issues)
	assert.Equal(t, KindFull, r.Kind)
	assert.Equal(t, StateIdle, e.State())

	tree := readTree(t, filepath.Join(p.root, "public"))
	assert.ElementsMatch(t, []string{
		"index.html",
		"blog/index.html",
		"blog/first/index.html",
		"blog/second/index.html",
		"sitemap.xml",
		"robots.txt",
	}, keys(tree))

	assert.Contains(t, tree["blog/first/index.html"], `<title>First</title>`)
	assert.Contains(t, tree["blog/first/index.html"], `href="/blog/second/"`)
	assert.Contains(t, tree["blog/index.html"], `<h2>Blog</h2>`)
	assert.Contains(t, tree["index.html"], `<h1>Test Site</h1>`)
	assert.Contains(t, tree["sitemap.xml"], "<loc>https://example.org/blog/first/</loc>")
	assert.Equal(t, "User-agent: *\n", tree["robots.txt"])

	assert.Equal(t, len(tree), r.Written)
	assert.Len(t, r.ChangedOutputs, len(tree))
	assert.Equal(t, 5, r.Rendered)
	assert.NotNil(t, e.Site())
	assert.True(t, e.Graph().Has(depgraph.PageID("blog/first.md")))
}

func TestRunFullBuild_SecondBuildSkipsUnchangedOutputs(t *testing.T) {
	p := newProject(t)
	e := p.engine(t)
	ctx := context.Background()

	_, err := e.RunFullBuild(ctx)
	require.NoError(t, err)
	r, err := e.RunFullBuild(ctx)
	require.NoError(t, err)
	assert.Zero(t, r.Written)
	assert.Empty(t, r.ChangedOutputs)
	assert.Equal(t, 6, r.Skipped)
}

func TestRunIncrementalBuild_MatchesFullBuild(t *testing.T) {
	p := newProject(t)
	e := p.engine(t)
	ctx := context.Background()

	_, err := e.RunFullBuild(ctx)
	require.NoError(t, err)

	p.write(t, "content/blog/second.md", "---\ntitle: Second Edition\ndate: 2024-01-02\n---\nWorld\n")
	r, err := e.RunIncrementalBuild(ctx, []string{"content/blog/second.md"})
	require.NoError(t, err)
	assert.Equal(t, KindIncremental, r.Kind)
	assert.Contains(t, r.Affected, depgraph.PageID("blog/second.md"))
	assert.Contains(t, r.Affected, depgraph.SectionID("blog"))
	assert.Contains(t, r.ChangedOutputs, "blog/second/index.html")
	assert.Contains(t, r.ChangedOutputs, "blog/index.html")
	assert.NotContains(t, r.ChangedOutputs, "robots.txt")

	var closure []string
	for _, id := range e.Graph().AffectedByAll([]string{depgraph.PageID("blog/second.md"), listingsID}) {
		if len(e.OutputsOf(id)) > 0 {
			closure = append(closure, id)
		}
	}
	assert.ElementsMatch(t, closure, r.Affected)

	owned := map[string]bool{}
	for _, id := range r.Affected {
		for _, out := range e.OutputsOf(id) {
			owned[out] = true
		}
	}
	for _, out := range r.ChangedOutputs {
		assert.True(t, owned[out], "changed output %s is not owned by an affected entity", out)
	}

	fresh := *p.cfg
	fresh.OutputDir = "fresh"
	other, err := NewEngine(&fresh, WithObjectStore(storage.NewMemoryStore()))
	require.NoError(t, err)
	defer func() { _ = other.Close() }()
	_, err = other.RunFullBuild(ctx)
	require.NoError(t, err)

	assert.Equal(t, readTree(t, filepath.Join(p.root, "fresh")), readTree(t, filepath.Join(p.root, "public")))
}

func TestRunIncrementalBuild_DeletedPageRemovesOutput(t *testing.T) {
	p := newProject(t)
	e := p.engine(t)
	ctx := context.Background()

	_, err := e.RunFullBuild(ctx)
	require.NoError(t, err)

	p.write(t, "content/blog/first.md", "---\ntitle: First\ndate: 2024-01-01\n---\nHello.\n")
	require.NoError(t, os.Remove(filepath.Join(p.root, "content/blog/second.md")))
	r, err := e.RunIncrementalBuild(ctx, []string{
		filepath.Join(p.root, "content/blog/second.md"),
		filepath.Join(p.root, "content/blog/first.md"),
	})
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(p.root, "public/blog/second/index.html"))
	assert.Contains(t, r.ChangedOutputs, "blog/second/index.html")
	assert.Contains(t, r.Affected, depgraph.PageID("blog/second.md"))
	assert.Equal(t, 1, r.Deleted)
	assert.NotContains(t, p.read(t, "blog/index.html"), "Second")
	assert.False(t, e.Graph().Has(depgraph.PageID("blog/second.md")))
}

func TestRunIncrementalBuild_TemplateChangeRerendersUsers(t *testing.T) {
	p := newProject(t)
	e := p.engine(t)
	ctx := context.Background()

	_, err := e.RunFullBuild(ctx)
	require.NoError(t, err)

	p.write(t, "templates/page.html", `<title>{{ .Title }} | {{ .Site.Title }}</title><main>{{ .Content }}</main>`)
	r, err := e.RunIncrementalBuild(ctx, []string{"templates/page.html"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"blog/first/index.html", "blog/second/index.html"}, r.ChangedOutputs)
	assert.Contains(t, p.read(t, "blog/first/index.html"), "<title>First | Test Site</title>")
}

func TestRunIncrementalBuild_BlockSourceFileChangeRerendersPage(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	p := newProject(t)
	p.write(t, "content/blog/run.sh", "echo ONE\n")
	p.write(t, "content/blog/second.md", "---\ntitle: Second\ndate: 2024-01-02\n---\n```{sh file=\"run.sh\"}\n```\n")
	e := p.engine(t)
	ctx := context.Background()

	_, err := e.RunFullBuild(ctx)
	require.NoError(t, err)
	assert.Contains(t, p.read(t, "blog/second/index.html"), "ONE")

	p.write(t, "content/blog/run.sh", "echo TWO\n")
	r, err := e.RunIncrementalBuild(ctx, []string{"content/blog/run.sh"})
	require.NoError(t, err)
	assert.Contains(t, r.Affected, depgraph.PageID("blog/second.md"))
	out := p.read(t, "blog/second/index.html")
	assert.Contains(t, out, "TWO")
	assert.NotContains(t, out, "ONE")
}

func TestRunIncrementalBuild_URLForTargetChangeRerendersUsers(t *testing.T) {
	p := newProject(t)
	p.write(t, "templates/page.html", `<title>{{ .Title }}</title><nav><a href="{{ urlFor "blog/second.md" }}">next</a></nav><main>{{ .Content }}</main>`)
	p.write(t, "content/blog/third.md", "---\ntitle: Third\ndate: 2024-01-03\n---\nNo links here.\n")
	e := p.engine(t)
	ctx := context.Background()

	_, err := e.RunFullBuild(ctx)
	require.NoError(t, err)
	assert.Contains(t, p.read(t, "blog/third/index.html"), `href="/blog/second/"`)

	p.write(t, "content/blog/second.md", "---\ntitle: Second\ndate: 2024-01-02\nslug: renamed\n---\nWorld\n")
	r, err := e.RunIncrementalBuild(ctx, []string{"content/blog/second.md"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, r.Outcome, r.Issues)
	assert.Contains(t, r.Affected, depgraph.PageID("blog/third.md"))
	assert.Contains(t, p.read(t, "blog/third/index.html"), `href="/blog/renamed/"`)
}

func TestRunIncrementalBuild_StaticAndConfigChanges(t *testing.T) {
	p := newProject(t)
	p.cfg.File = filepath.Join(p.root, "sitegen.yaml")
	e := p.engine(t)
	ctx := context.Background()

	_, err := e.RunFullBuild(ctx)
	require.NoError(t, err)

	p.write(t, "static/css/site.css", "body{}")
	r, err := e.RunIncrementalBuild(ctx, []string{"static/css/site.css"})
	require.NoError(t, err)
	assert.Equal(t, []string{"css/site.css"}, r.ChangedOutputs)
	assert.Zero(t, r.Rendered)

	r, err = e.RunIncrementalBuild(ctx, []string{p.cfg.File})
	require.NoError(t, err)
	assert.Equal(t, KindFull, r.Kind)
}

func TestRunFullBuild_TemplateCycleIsFatal(t *testing.T) {
	p := newProject(t)
	p.write(t, "templates/a.html", `{{/* extends "b.html" */}}`)
	p.write(t, "templates/b.html", `{{/* extends "a.html" */}}`)
	e := p.engine(t)

	r, err := e.RunFullBuild(context.Background())
	require.Error(t, err)
	assert.Equal(t, ferrors.CodeCyclicTemplateGraph, ferrors.Code(err))
	assert.Equal(t, OutcomeFailed, r.Outcome)
	assert.Equal(t, StateIdle, e.State())
	assert.NoFileExists(t, filepath.Join(p.root, "public/index.html"))
}

func TestRunFullBuild_BrokenLinks(t *testing.T) {
	for _, strict := range []bool{false, true} {
		name := "lenient"
		if strict {
			name = "strict"
		}
		t.Run(name, func(t *testing.T) {
			p := newProject(t)
			p.cfg.Strict = strict
			p.write(t, "content/blog/second.md", "---\ntitle: Second\ndate: 2024-01-02\n---\nSee [gone](/nowhere/).\n")
			e := p.engine(t)

			r, err := e.RunFullBuild(context.Background())
			require.Len(t, r.Issues, 1)
			assert.Equal(t, ferrors.CodeBrokenInternalLink, r.Issues[0].Code)
			assert.Equal(t, "blog/second/index.html", r.Issues[0].Entity)
			if strict {
				require.Error(t, err)
				assert.Equal(t, OutcomeFailed, r.Outcome)
			} else {
				require.NoError(t, err)
				assert.Equal(t, OutcomeWarning, r.Outcome)
				assert.Equal(t, 1, r.Warnings)
			}
			assert.FileExists(t, filepath.Join(p.root, "public/blog/second/index.html"))
		})
	}
}

func TestRunFullBuild_FailedPageKeepsOthers(t *testing.T) {
	p := newProject(t)
	p.write(t, "content/blog/third.md", "---\ntitle: Third\ntemplate: missing.html\n---\nx\n")
	e := p.engine(t)

	r, err := e.RunFullBuild(context.Background())
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, r.Outcome)
	assert.Equal(t, 1, r.FailedPages)
	assert.Equal(t, 1, r.Errors)
	assert.Contains(t, issueCodes(r, "blog/third.md"), ferrors.CodeTemplateNotFound)
	assert.FileExists(t, filepath.Join(p.root, "public/blog/first/index.html"))
	assert.NoFileExists(t, filepath.Join(p.root, "public/blog/third/index.html"))

	p.write(t, "templates/missing.html", `{{ .Title }}`)
	r, err = e.RunIncrementalBuild(context.Background(), []string{"templates/missing.html"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, r.Outcome)
	assert.Equal(t, "Third", p.read(t, "blog/third/index.html"))
}

func TestRunFullBuild_ExecutionCachePersists(t *testing.T) {
	cases := []struct {
		lang, interp, src string
	}{
		{lang: "python", interp: "python3", src: "print(1+1)"},
		{lang: "sh", interp: "sh", src: "echo $((1+1))"},
	}
	for _, tc := range cases {
		t.Run(tc.lang, func(t *testing.T) {
			if _, err := exec.LookPath(tc.interp); err != nil {
				t.Skipf("%s not available", tc.interp)
			}
			p := newProject(t)
			p.write(t, "content/blog/second.md", "---\ntitle: Second\n---\n```{"+tc.lang+"}\n"+tc.src+"\n```\n")

			first, err := NewEngine(p.cfg)
			require.NoError(t, err)
			r, err := first.RunFullBuild(context.Background())
			require.NoError(t, err)
			assert.Equal(t, int64(1), r.ExecStats.Executions)
			assert.Equal(t, int64(1), r.ExecStats.Misses)
			require.NoError(t, first.Close())
			out := p.read(t, "blog/second/index.html")
			assert.Contains(t, out, "2")

			second, err := NewEngine(p.cfg)
			require.NoError(t, err)
			defer func() { _ = second.Close() }()
			r, err = second.RunFullBuild(context.Background())
			require.NoError(t, err)
			assert.Zero(t, r.ExecStats.Executions)
			assert.Equal(t, int64(1), r.ExecStats.Hits)
			assert.Equal(t, out, p.read(t, "blog/second/index.html"))
		})
	}
}

func TestRunFullBuild_AliasesAndNotFound(t *testing.T) {
	p := newProject(t)
	p.write(t, "templates/404.html", `<h1>{{ .Title }}</h1>`)
	p.write(t, "content/blog/first.md", "---\ntitle: First\naliases: [/old/first/]\n---\nHi\n")
	e := p.engine(t)

	_, err := e.RunFullBuild(context.Background())
	require.NoError(t, err)
	assert.Contains(t, p.read(t, "old/first/index.html"), `url=https://example.org/blog/first/`)
	assert.Equal(t, "<h1>Page not found</h1>", p.read(t, "404.html"))
	assert.Equal(t, []string{"404.html"}, e.OutputsOf(notFoundID))
}

func TestRunFullBuild_TaxonomyPages(t *testing.T) {
	p := newProject(t)
	p.write(t, "templates/taxonomy.html", `{{ range .Taxonomy.Terms }}{{ .Name }};{{ end }}`)
	p.write(t, "templates/term.html", `{{ .Term.Name }}:{{ range .Pager.Items }}{{ .Title }};{{ end }}`)
	p.write(t, "content/blog/first.md", "---\ntitle: First\ndate: 2024-01-01\ntags: [Go]\n---\nHi\n")
	e := p.engine(t)

	_, err := e.RunFullBuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Go;", p.read(t, "tags/index.html"))
	assert.Equal(t, "Go:First;", p.read(t, "tags/go/index.html"))
}

func TestRunFullBuild_ContentAssetsAndPrune(t *testing.T) {
	p := newProject(t)
	p.write(t, "content/blog/diagram.svg", "<svg/>")
	p.write(t, "public/stale.html", "old")
	e := p.engine(t)

	r, err := e.RunFullBuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "<svg/>", p.read(t, "blog/diagram.svg"))
	assert.NoFileExists(t, filepath.Join(p.root, "public/stale.html"))
	assert.Contains(t, r.ChangedOutputs, "stale.html")
}

func TestRunFullBuild_InProgress(t *testing.T) {
	p := newProject(t)
	e := p.engine(t)

	e.mu.Lock()
	_, err := e.RunFullBuild(context.Background())
	assert.ErrorIs(t, err, ErrBuildInProgress)
	_, err = e.RunIncrementalBuild(context.Background(), nil)
	assert.ErrorIs(t, err, ErrBuildInProgress)
	e.mu.Unlock()
}

func TestRunFullBuild_Canceled(t *testing.T) {
	p := newProject(t)
	e := p.engine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := e.RunFullBuild(ctx)
	require.Error(t, err)
	assert.Equal(t, OutcomeCanceled, r.Outcome)

	r, err = e.RunIncrementalBuild(context.Background(), []string{"content/blog/first.md"})
	require.NoError(t, err)
	assert.Equal(t, KindFull, r.Kind)
}

func TestEngine_PublishesAndRecordsBuilds(t *testing.T) {
	p := newProject(t)
	p.cfg.Build.History = true
	e := p.engine(t)
	ch, cancel := e.Subscribe()
	defer cancel()

	r, err := e.RunFullBuild(context.Background())
	require.NoError(t, err)

	evt := <-ch
	assert.Equal(t, r.BuildID, evt.BuildID)
	assert.True(t, evt.Full)
	assert.False(t, evt.Failed)
	assert.Equal(t, r.ChangedOutputs, evt.Paths)

	require.NotNil(t, e.History())
	recs, err := e.History().List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, r.BuildID, recs[0].BuildID)
	assert.Equal(t, "success", recs[0].Outcome)
}

func TestEngine_MissingContentDirIsFatal(t *testing.T) {
	p := newProject(t)
	require.NoError(t, os.RemoveAll(filepath.Join(p.root, "content")))
	e := p.engine(t)

	r, err := e.RunFullBuild(context.Background())
	require.Error(t, err)
	assert.True(t, ferrors.IsFatal(err))
	assert.Equal(t, OutcomeFailed, r.Outcome)
	assert.True(t, strings.Contains(r.Summary(), "failed"))
}

func issueCodes(r *Report, entity string) []ferrors.ErrorCode {
	var out []ferrors.ErrorCode
	for _, is := range r.Issues {
		if is.Entity == entity {
			out = append(out, is.Code)
		}
	}
	return out
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
