package build

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"git.home.luguber.info/inful/sitegen/internal/config"
)

func TestClassify(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.Root = root
	cfg.File = filepath.Join(root, "sitegen.yaml")
	e := &Engine{cfg: cfg}

	cs := e.classify([]string{
		"content/blog/a.md",
		filepath.Join(root, "content/blog/img.png"),
		"templates/page.html",
		"static/robots.txt",
		"public/index.html",
		".sitegen/cache/exec/ab/cd",
		"content/.a.md.swp",
	})
	assert.False(t, cs.full)
	assert.True(t, cs.content)
	assert.True(t, cs.templates)
	assert.True(t, cs.static)
	assert.False(t, cs.includes)
	assert.False(t, cs.data)
	assert.False(t, cs.styles)
	assert.Equal(t, map[string]bool{"blog/a.md": true}, cs.contentPaths)
	assert.Equal(t, map[string]bool{"blog/img.png": true}, cs.assetPaths)

	cs = e.classify([]string{"sitegen.yaml"})
	assert.True(t, cs.full)

	cs = e.classify([]string{"public/x.html", "README.md"})
	assert.True(t, cs.empty())
}

func TestWithin(t *testing.T) {
	base := filepath.FromSlash("/site/content")
	rel, ok := within(base, filepath.FromSlash("/site/content/a/b.md"))
	assert.True(t, ok)
	assert.Equal(t, "a/b.md", rel)

	_, ok = within(base, filepath.FromSlash("/site/content-old/a.md"))
	assert.False(t, ok)

	rel, ok = within(base, base)
	assert.True(t, ok)
	assert.Empty(t, rel)
}
