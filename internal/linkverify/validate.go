package linkverify

import (
	"io/fs"
	"log/slog"
	"net/url"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
)

// BrokenLink is an internal link whose target is not among the outputs.
type BrokenLink struct {
	// Page is the output path (relative to the output dir) containing the link.
	Page string
	URL  string
	Tag  string
	// Target is the output path the link resolved to.
	Target string
}

// Error converts the broken link into a classified BrokenInternalLink issue.
// Strict mode reports it as an error, otherwise as a warning.
func (b BrokenLink) Error(strict bool) error {
	builder := errors.NewError(errors.CategoryLink, "broken internal link").
		WithCode(errors.CodeBrokenInternalLink).
		WithContext("page", b.Page).
		WithContext("url", b.URL).
		WithContext("target", b.Target)
	if !strict {
		builder = builder.Warning()
	}
	return builder.Build()
}

// Validate parses every .html file under outputDir and reports internal
// links whose target is not in known. known holds slash-separated output
// paths; a nil set falls back to the files present on disk.
func Validate(outputDir, baseURL string, known map[string]bool) []BrokenLink {
	var pages []string
	onDisk := map[string]bool{}
	_ = filepath.WalkDir(outputDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(outputDir, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		onDisk[rel] = true
		if strings.HasSuffix(rel, ".html") {
			pages = append(pages, rel)
		}
		return nil
	})
	if known == nil {
		known = onDisk
	}
	sort.Strings(pages)

	basePath := ""
	if u, err := url.Parse(baseURL); err == nil {
		basePath = strings.TrimRight(u.Path, "/")
	}

	var (
		mu     sync.Mutex
		broken []BrokenLink
		wg     sync.WaitGroup
		sem    = make(chan struct{}, runtime.GOMAXPROCS(0))
	)
	for _, rel := range pages {
		sem <- struct{}{}
		wg.Add(1)
		go func(rel string) {
			defer wg.Done()
			defer func() { <-sem }()

			links, err := ExtractLinks(filepath.Join(outputDir, filepath.FromSlash(rel)), baseURL)
			if err != nil {
				slog.Warn("Skipping unparsable output file", logfields.Path(rel), logfields.Error(err))
				return
			}
			var found []BrokenLink
			for _, l := range links {
				if !l.IsInternal {
					continue
				}
				target, ok := resolveTarget(rel, l.URL, basePath)
				if !ok || exists(known, target) {
					continue
				}
				found = append(found, BrokenLink{Page: rel, URL: l.URL, Tag: l.Tag, Target: target})
			}
			if len(found) > 0 {
				mu.Lock()
				broken = append(broken, found...)
				mu.Unlock()
			}
		}(rel)
	}
	wg.Wait()

	sort.Slice(broken, func(i, j int) bool {
		if broken[i].Page != broken[j].Page {
			return broken[i].Page < broken[j].Page
		}
		return broken[i].URL < broken[j].URL
	})
	return broken
}

// resolveTarget maps a link found in page (an output path) to the output
// path it addresses. Same-page fragments and query-only links are not
// checked.
func resolveTarget(page, link, basePath string) (string, bool) {
	if strings.HasPrefix(link, "@/") {
		// unresolved content links are reported by the renderer
		return "", false
	}
	u, err := url.Parse(link)
	if err != nil {
		return "", false
	}
	p := u.Path
	if p == "" {
		return "", false
	}

	if !strings.HasPrefix(p, "/") {
		p = path.Join("/", path.Dir(page), p)
		if strings.HasSuffix(u.Path, "/") {
			p += "/"
		}
	} else if basePath != "" && (p == basePath || strings.HasPrefix(p, basePath+"/")) {
		p = strings.TrimPrefix(p, basePath)
	}
	if strings.HasPrefix(p, "/__") {
		return "", false
	}

	trailing := strings.HasSuffix(p, "/")
	clean := strings.TrimPrefix(path.Clean(p), "/")
	if clean == "" || clean == "." {
		return "index.html", true
	}
	if trailing {
		return clean + "/index.html", true
	}
	return clean, true
}

func exists(known map[string]bool, target string) bool {
	if known[target] {
		return true
	}
	return !strings.HasSuffix(target, ".html") && known[path.Join(target, "index.html")]
}
