package render

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/sitegen/internal/content"
	"git.home.luguber.info/inful/sitegen/internal/depgraph"
	"git.home.luguber.info/inful/sitegen/internal/markdown"
)

// IsDataFile reports whether rel is a loadable data file.
func IsDataFile(rel string) bool {
	switch strings.ToLower(path.Ext(rel)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// DataName maps a data-dir relative path to the name templates use.
func DataName(rel string) string {
	rel = filepath.ToSlash(rel)
	return strings.TrimSuffix(rel, path.Ext(rel))
}

// DecodeData parses one YAML or JSON data file.
func DecodeData(raw []byte) (any, error) {
	var v any
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// LoadData reads every data file below dir keyed by DataName.
func LoadData(dir string) (map[string]any, error) {
	out := map[string]any{}
	err := walkFiles(dir, func(rel string, raw []byte) error {
		if !IsDataFile(rel) {
			return nil
		}
		v, err := DecodeData(raw)
		if err != nil {
			return fmt.Errorf("data file %s: %w", rel, err)
		}
		out[DataName(rel)] = v
		return nil
	})
	return out, err
}

// LoadIncludes reads every file below dir keyed by slash-separated path.
func LoadIncludes(dir string) (map[string]string, error) {
	out := map[string]string{}
	err := walkFiles(dir, func(rel string, raw []byte) error {
		out[rel] = string(raw)
		return nil
	})
	return out, err
}

func walkFiles(dir string, fn func(rel string, raw []byte) error) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == dir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			if p != dir && content.IsIgnoredName(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if content.IsIgnoredName(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		// #nosec G304 - walking a site directory
		raw, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel), raw)
	})
}

// BodyRefs statically scans a Markdown body for the includes, shortcodes
// and internal links it depends on. Malformed shortcode syntax is ignored
// here and reported when the body is rendered.
func BodyRefs(body string) []depgraph.Ref {
	seen := map[depgraph.Ref]bool{}
	var refs []depgraph.Ref
	add := func(r depgraph.Ref) {
		if !seen[r] {
			seen[r] = true
			refs = append(refs, r)
		}
	}

	var walk func(src string)
	walk = func(src string) {
		calls, err := findCalls(src)
		if err != nil {
			return
		}
		for _, c := range calls {
			if c.Name == IncludeShortcode {
				if p, ok := c.Args["path"].(string); ok {
					add(depgraph.Ref{Producer: depgraph.IncludeID(cleanInclude(p)), Kind: depgraph.KindInclude})
				}
				continue
			}
			add(depgraph.Ref{Producer: depgraph.ShortcodeID(c.Name), Kind: depgraph.KindShortcodeCall})
			if c.Body != nil {
				walk(*c.Body)
			}
		}
	}
	walk(body)

	for _, target := range markdown.InternalTargets([]byte(body)) {
		add(depgraph.Ref{Producer: LinkTargetID(target), Kind: depgraph.KindDataReference})
	}
	return refs
}

// FileRefs returns the files that the executable blocks of the page at
// pagePath load with file="...", as content-relative asset ids.
func FileRefs(pagePath, body string) []depgraph.Ref {
	_, blocks, _ := extractExecBlocks(pagePath, body)
	seen := map[string]bool{}
	var refs []depgraph.Ref
	for _, b := range blocks {
		if b.Options.File == "" {
			continue
		}
		rel := path.Join(path.Dir(pagePath), filepath.ToSlash(b.Options.File))
		if seen[rel] {
			continue
		}
		seen[rel] = true
		refs = append(refs, depgraph.Ref{Producer: depgraph.AssetID(rel), Kind: depgraph.KindFileReference})
	}
	return refs
}

// LinkTargetID maps an "@/" link target to the entity it names.
func LinkTargetID(target string) string {
	target = path.Clean(strings.TrimPrefix(target, "/"))
	if path.Base(target) == content.SectionFile {
		dir := path.Dir(target)
		if dir == "." {
			dir = ""
		}
		return depgraph.SectionID(dir)
	}
	return depgraph.PageID(target)
}

func cleanInclude(p string) string {
	return path.Clean(strings.TrimPrefix(p, "/"))
}
