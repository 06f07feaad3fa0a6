package build

import (
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/sitegen/internal/content"
)

// changeSet is the classification of the paths handed to an incremental
// build.
type changeSet struct {
	// full is set when the config file changed.
	full      bool
	content   bool
	templates bool
	includes  bool
	data      bool
	static    bool
	styles    bool
	// contentPaths are the content files named explicitly; they are
	// re-parsed even when they were known before.
	contentPaths map[string]bool
	// assetPaths are the other changed files below the content directory.
	assetPaths map[string]bool
}

func (cs changeSet) empty() bool {
	return !cs.full && !cs.content && !cs.templates && !cs.includes && !cs.data && !cs.static && !cs.styles
}

// within returns p relative to base when p is base or below it.
func within(base, p string) (string, bool) {
	rel, err := filepath.Rel(base, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	if rel == "." {
		return "", true
	}
	return filepath.ToSlash(rel), true
}

func (e *Engine) classify(paths []string) changeSet {
	cs := changeSet{contentPaths: map[string]bool{}, assetPaths: map[string]bool{}}
	abs := func(rel string) string {
		p := filepath.Clean(e.cfg.Path(rel))
		if a, err := filepath.Abs(p); err == nil {
			return a
		}
		return p
	}
	configFile := ""
	if e.cfg.File != "" {
		configFile = abs(e.cfg.File)
	}
	outputDir, cacheDir := abs(e.cfg.OutputDir), abs(e.cfg.CacheDir)

	dirs := []struct {
		dir  string
		mark func(rel string)
	}{
		{abs(e.cfg.ContentDir), func(rel string) {
			cs.content = true
			if content.IsContentPath(rel) {
				cs.contentPaths[rel] = true
			} else if rel != "" {
				cs.assetPaths[rel] = true
			}
		}},
		{abs(e.cfg.TemplatesDir), func(string) { cs.templates = true }},
		{abs(e.cfg.IncludesDir), func(string) { cs.includes = true }},
		{abs(e.cfg.DataDir), func(string) { cs.data = true }},
		{abs(e.cfg.StaticDir), func(string) { cs.static = true }},
		{abs(e.cfg.StylesDir), func(string) { cs.styles = true }},
	}

	for _, p := range paths {
		p = abs(p)
		if configFile != "" && p == configFile {
			cs.full = true
			continue
		}
		if content.IsIgnoredName(filepath.Base(p)) {
			continue
		}
		if _, ok := within(outputDir, p); ok {
			continue
		}
		if _, ok := within(cacheDir, p); ok {
			continue
		}
		for _, d := range dirs {
			if rel, ok := within(d.dir, p); ok {
				d.mark(rel)
				break
			}
		}
	}
	return cs
}
