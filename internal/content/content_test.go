package content

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

var tagOpts = ParseOptions{Taxonomies: []string{"tags"}}

func mustParse(t *testing.T, p, src string) *File {
	t.Helper()
	f, err := Parse(p, []byte(src), tagOpts)
	require.NoError(t, err)
	return f
}

func TestParse_KnownKeysAndExtras(t *testing.T) {
	f := mustParse(t, "blog/hello.md", `---
title: Hello World
date: 2024-05-06
draft: true
aliases: [/old/hello/]
tags: [Go, Static Sites]
weight: 3
custom: kept
extra:
  hero: img.png
---
Intro words here.
<!-- more -->
Rest of the post.
`)
	assert.Equal(t, "Hello World", f.Title)
	assert.Equal(t, time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC), f.Date)
	assert.True(t, f.Draft)
	assert.Equal(t, []string{"/old/hello/"}, f.Aliases)
	assert.Equal(t, []string{"Go", "Static Sites"}, f.Terms["tags"])
	assert.Equal(t, 3, f.Weight)
	assert.Equal(t, "hello", f.Slug)
	assert.Equal(t, LanguageMarkdown, f.Language)
	assert.NotEmpty(t, f.Fingerprint)

	custom, ok := f.Front.Get("custom")
	require.True(t, ok)
	assert.Equal(t, "kept", custom.String())

	summary, ok := f.Summary()
	require.True(t, ok)
	assert.Equal(t, "Intro words here.\n", summary)
	assert.Equal(t, 10, f.WordCount())
	assert.Equal(t, 1, f.ReadingTime())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
		src  string
		code ferrors.ErrorCode
	}{
		{"unsupported extension", "notes.txt", "hello", ferrors.CodeUnsupportedExtension},
		{"unterminated", "a.md", "---\ntitle: x\n", ferrors.CodeMalformedFrontMatter},
		{"invalid yaml", "a.md", "---\ntitle: [x\n---\n", ferrors.CodeMalformedFrontMatter},
		{"missing title", "a.md", "---\ndate: 2024-01-01\n---\nbody", ferrors.CodeMalformedFrontMatter},
		{"no front matter", "a.md", "just a body", ferrors.CodeMalformedFrontMatter},
		{"wrong type", "a.md", "---\ntitle: x\ndraft: maybe\n---\n", ferrors.CodeMalformedFrontMatter},
		{"bad sort_by", "s/_index.md", "---\nsort_by: random\n---\n", ferrors.CodeMalformedFrontMatter},
		{"taxonomy not strings", "a.md", "---\ntitle: x\ntags: [{a: 1}]\n---\n", ferrors.CodeMalformedFrontMatter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.path, []byte(tt.src), tagOpts)
			require.Error(t, err)
			assert.Equal(t, tt.code, ferrors.Code(err))
		})
	}
}

func TestParse_SectionIndexDoesNotNeedTitle(t *testing.T) {
	f := mustParse(t, "blog/_index.md", "---\nsort_by: title\npaginate_by: 5\n---\n")
	assert.True(t, f.IsSection)
	assert.Equal(t, SortByTitle, f.SortBy)
	assert.Equal(t, 5, f.PaginateBy)
}

func TestParse_SlugInference(t *testing.T) {
	tests := []struct {
		path, src, slug string
		date            time.Time
	}{
		{"blog/2024-01-02-first-post.md", "---\ntitle: x\n---\n", "first-post", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"blog/trip/index.md", "---\ntitle: x\n---\n", "trip", time.Time{}},
		{"blog/x.md", "---\ntitle: x\nslug: Custom Slug!\n---\n", "custom-slug", time.Time{}},
		{"Café Ünïcode.md", "---\ntitle: x\n---\n", "cafe-unicode", time.Time{}},
	}
	for _, tt := range tests {
		f := mustParse(t, tt.path, tt.src)
		assert.Equal(t, tt.slug, f.Slug, tt.path)
		assert.Equal(t, tt.date, f.Date, tt.path)
	}
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "hello-world", Slugify("  Hello,   World! "))
	assert.Equal(t, "creme-brulee", Slugify("Crème Brûlée"))
	assert.Equal(t, "go-1-22", Slugify("Go 1.22"))
	assert.Equal(t, "", Slugify("---"))
}

func TestAssemble_URLsSectionsAndOrdering(t *testing.T) {
	files := map[string]*File{}
	add := func(p, src string) { files[p] = mustParse(t, p, src) }
	add("_index.md", "---\ntitle: Home\n---\n")
	add("about.md", "---\ntitle: About\n---\n")
	add("blog/_index.md", "---\ntitle: Blog\npage_template: post.html\n---\n")
	add("blog/old.md", "---\ntitle: Old\ndate: 2020-01-01\n---\n")
	add("blog/new.md", "---\ntitle: New\ndate: 2024-01-01\n---\n")
	add("blog/undated.md", "---\ntitle: Undated\n---\n")
	add("blog/draft.md", "---\ntitle: Draft\ndraft: true\n---\n")
	add("blog/trip/index.md", "---\ntitle: Trip\ndate: 2022-01-01\n---\n")
	add("docs/guide/intro.md", "---\ntitle: Intro\n---\n")

	site, issues := Assemble(files, AssembleOptions{})
	require.Empty(t, issues)

	blog, ok := site.Section("blog")
	require.True(t, ok)
	assert.Equal(t, "Blog", blog.Title)
	assert.Equal(t, "/blog/", blog.URL)

	var order []string
	for _, p := range blog.Pages {
		order = append(order, p.Title)
	}
	assert.Equal(t, []string{"New", "Trip", "Old", "Undated"}, order)

	trip, _ := site.Page("blog/trip/index.md")
	assert.Equal(t, "/blog/trip/", trip.URL)
	assert.Equal(t, "blog/trip/index.html", trip.OutputPath)
	assert.Equal(t, "post.html", trip.Template)
	assert.True(t, trip.IsBundle)

	about, _ := site.Page("about.md")
	assert.Equal(t, "/about/", about.URL)
	assert.Equal(t, "page.html", about.Template)

	_, hasDraft := site.Page("blog/draft.md")
	assert.False(t, hasDraft)

	docs, ok := site.Section("docs")
	require.True(t, ok, "intermediate sections are synthesized")
	require.Len(t, docs.Subsections, 1)
	assert.Equal(t, "docs/guide", docs.Subsections[0].Path)
	assert.Equal(t, "index.html", site.Root.Template)

	url, ok := site.ResolveURL("blog/_index.md")
	require.True(t, ok)
	assert.Equal(t, "/blog/", url)

	asset, ok := site.BundleFor("blog/trip/photo.jpg")
	require.True(t, ok)
	assert.Equal(t, trip, asset)
}

func TestAssemble_DraftsIncludedWhenRequested(t *testing.T) {
	files := map[string]*File{"d.md": mustParse(t, "d.md", "---\ntitle: D\ndraft: true\n---\n")}
	site, _ := Assemble(files, AssembleOptions{IncludeDrafts: true})
	_, ok := site.Page("d.md")
	assert.True(t, ok)
}

func TestAssemble_DuplicateURLIsReported(t *testing.T) {
	files := map[string]*File{
		"a/x.md":       mustParse(t, "a/x.md", "---\ntitle: one\n---\n"),
		"a/x/index.md": mustParse(t, "a/x/index.md", "---\ntitle: two\n---\n"),
	}
	site, issues := Assemble(files, AssembleOptions{})
	require.Len(t, issues, 1)
	assert.Len(t, site.Pages, 1)
}

func TestScan_ClassifiesAndSkipsHidden(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{"a.md", "blog/b.markdown", "blog/img.png", ".hidden/c.md", "blog/.draft.md~"} {
		full := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("x"), 0o600))
	}

	inv, err := Scan(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "blog/b.markdown"}, inv.Content)
	assert.Equal(t, []string{"blog/img.png"}, inv.Assets)

	_, err = Scan(filepath.Join(root, "missing"))
	require.Error(t, err)
	assert.True(t, ferrors.IsFatal(err))
}

func TestLoad_ParsesAssemblesAndCollectsIssues(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"_index.md":     "---\nsort_by: date\n---\n",
		"blog/first.md": "---\ntitle: First\ndate: 2024-01-02\n---\nbody\n",
		"blog/draft.md": "---\ntitle: Draft\ndraft: true\n---\n",
		"blog/bad.md":   "---\ndate: 2024-01-02\n---\nno title\n",
	}
	for p, src := range files {
		full := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(src), 0o600))
	}

	site, issues, err := Load(root, LoadOptions{})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Error(), "title")

	page, ok := site.Page("blog/first.md")
	require.True(t, ok)
	assert.Equal(t, "/blog/first/", page.URL)
	_, ok = site.Page("blog/draft.md")
	assert.False(t, ok)

	site, _, err = Load(root, LoadOptions{AssembleOptions: AssembleOptions{IncludeDrafts: true}})
	require.NoError(t, err)
	_, ok = site.Page("blog/draft.md")
	assert.True(t, ok)

	_, _, err = Load(filepath.Join(root, "missing"), LoadOptions{})
	require.Error(t, err)
}

func TestSortPagesByDate(t *testing.T) {
	page := func(p, src string) *Page {
		f := mustParse(t, p, src)
		return &Page{File: f, Title: f.Title}
	}
	undated := page("c.md", "---\ntitle: C\n---\n")
	older := page("a.md", "---\ntitle: A\ndate: 2023-01-01\n---\n")
	newer := page("b.md", "---\ntitle: B\ndate: 2024-01-01\n---\n")

	pages := []*Page{undated, older, newer}
	SortPagesByDate(pages)
	assert.Equal(t, []*Page{newer, older, undated}, pages)
}
