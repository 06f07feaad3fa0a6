package build

import (
	"bytes"
	"context"
	"encoding/xml"
	"html"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/content"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

// Output owner prefixes for files that are copied rather than rendered.
const (
	ownerStatic = "static:"
	ownerAsset  = "asset:"
	ownerStyle  = "style:"
)

const (
	sitemapFile = "sitemap.xml"
	feedFile    = "atom.xml"
)

// listFiles returns the slash-separated relative paths of regular files
// under dir, skipping ignored names. A missing dir yields nothing.
func listFiles(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == dir {
				return filepath.SkipDir
			}
			return err
		}
		if p != dir && content.IsIgnoredName(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to list files").
			WithContext("path", dir).
			Build()
	}
	sort.Strings(out)
	return out, nil
}

// syncCopies mirrors files (relative to srcDir) into the output directory
// under owner prefix. Outputs of the prefix whose source disappeared are
// deleted.
func (e *Engine) syncCopies(prefix, srcDir string, files []string, dest func(string) string) (commitResult, error) {
	var res commitResult
	want := make(map[string]bool, len(files))
	for _, rel := range files {
		owner := prefix + rel
		want[owner] = true
		data, err := os.ReadFile(filepath.Join(srcDir, filepath.FromSlash(rel)))
		if err != nil {
			return res, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to read file").
				WithContext("path", rel).
				Build()
		}
		r, err := e.outputs.commit(owner, map[string][]byte{dest(rel): data})
		if err != nil {
			return res, err
		}
		res.merge(r)
	}
	for _, owner := range e.outputs.owners(prefix) {
		if want[owner] {
			continue
		}
		r, err := e.outputs.release(owner)
		if err != nil {
			return res, err
		}
		res.merge(r)
	}
	return res, nil
}

func identity(rel string) string { return rel }

// compileStyles turns styles/*.css and, with a configured compiler,
// styles/*.scss|*.sass into /<name>.css. Partials (leading "_") are skipped.
func (e *Engine) compileStyles(ctx context.Context) (map[string][]byte, []error) {
	dir := e.cfg.Path(e.cfg.StylesDir)
	files, err := listFiles(dir)
	if err != nil {
		return nil, []error{err}
	}
	out := map[string][]byte{}
	var errs []error
	for _, rel := range files {
		base := path.Base(rel)
		if strings.HasPrefix(base, "_") {
			continue
		}
		ext := path.Ext(base)
		name := strings.TrimSuffix(base, ext) + ".css"
		src := filepath.Join(dir, filepath.FromSlash(rel))
		switch {
		case ext == ".css" && len(e.cfg.Styles.Command) == 0:
			data, err := os.ReadFile(src)
			if err != nil {
				errs = append(errs, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to read stylesheet").WithContext("path", rel).Build())
				continue
			}
			out[name] = data
		case ext == ".css" || ((ext == ".scss" || ext == ".sass") && len(e.cfg.Styles.Command) > 0):
			data, err := e.runStyleCompiler(ctx, src)
			if err != nil {
				errs = append(errs, ferrors.BuildError("stylesheet compiler failed").
					WithCause(err).
					WithContext("path", rel).
					Build())
				continue
			}
			out[name] = data
		}
	}
	return out, errs
}

func (e *Engine) runStyleCompiler(ctx context.Context, src string) ([]byte, error) {
	tmp, err := os.CreateTemp("", "sitegen-style-*.css")
	if err != nil {
		return nil, err
	}
	outPath := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(outPath) }()

	argv := make([]string, len(e.cfg.Styles.Command))
	for i, a := range e.cfg.Styles.Command {
		argv[i] = strings.NewReplacer("{in}", src, "{out}", outPath).Replace(a)
	}
	// #nosec G204 -- the compiler command comes from the project config
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = e.cfg.Root
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, ferrors.WrapError(err, ferrors.CategoryBuild, msg).Build()
		}
		return nil, err
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 && len(stdout) > 0 {
		data = stdout
	}
	return data, nil
}

// redirectHTML is the page written at every alias of a page.
func redirectHTML(permalink string) []byte {
	u := html.EscapeString(permalink)
	return []byte(`<!DOCTYPE html><html><head><title>Redirect</title><link rel="canonical" href="` + u +
		`"><meta http-equiv="refresh" content="0; url=` + u + `"></head><body></body></html>`)
}

// aliasPath maps an alias to its output file.
func aliasPath(alias string) string {
	a := strings.Trim(path.Clean("/"+alias), "/")
	if a == "" {
		return ""
	}
	if strings.HasSuffix(a, ".html") {
		return a
	}
	return a + "/index.html"
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

// sitemap lists every section and page, sorted by source path.
func sitemap(site *content.Site, baseURL string) ([]byte, error) {
	set := sitemapURLSet{XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	for _, s := range site.SortedSections() {
		set.URLs = append(set.URLs, sitemapURL{Loc: baseURL + s.URL})
	}
	for _, p := range site.SortedPages() {
		u := sitemapURL{Loc: baseURL + p.URL}
		switch {
		case !p.File.Updated.IsZero():
			u.LastMod = p.File.Updated.Format(time.RFC3339)
		case p.File.HasDate():
			u.LastMod = p.Date().Format(time.RFC3339)
		}
		set.URLs = append(set.URLs, u)
	}
	return encodeXML(set)
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr,omitempty"`
}

type atomPerson struct {
	Name string `xml:"name"`
}

type atomText struct {
	Type string `xml:"type,attr,omitempty"`
	Body string `xml:",chardata"`
}

type atomEntry struct {
	Title   string    `xml:"title"`
	Link    atomLink  `xml:"link"`
	ID      string    `xml:"id"`
	Updated string    `xml:"updated"`
	Summary *atomText `xml:"summary,omitempty"`
}

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	XMLNS   string      `xml:"xmlns,attr"`
	Title   string      `xml:"title"`
	Links   []atomLink  `xml:"link"`
	Updated string      `xml:"updated"`
	ID      string      `xml:"id"`
	Author  *atomPerson `xml:"author,omitempty"`
	Entries []atomEntry `xml:"entry"`
}

// feed renders an Atom feed of the dated pages, newest first. Entries carry
// the page summary as HTML, or the description when there is no summary.
func feed(site *content.Site, title, baseURL string) ([]byte, error) {
	var pages []*content.Page
	for _, p := range site.SortedPages() {
		if p.File.HasDate() {
			pages = append(pages, p)
		}
	}
	content.SortPagesByDate(pages)

	updated := time.Unix(0, 0).UTC()
	if len(pages) > 0 {
		updated = pages[0].Date()
	}
	f := atomFeed{
		XMLNS:   "http://www.w3.org/2005/Atom",
		Title:   title,
		Links:   []atomLink{{Href: baseURL + "/" + feedFile, Rel: "self"}, {Href: baseURL + "/"}},
		Updated: updated.Format(time.RFC3339),
		ID:      baseURL + "/",
	}
	if title != "" {
		f.Author = &atomPerson{Name: title}
	}
	for _, p := range pages {
		permalink := baseURL + p.URL
		entry := atomEntry{
			Title:   p.Title,
			Link:    atomLink{Href: permalink},
			ID:      permalink,
			Updated: p.Date().Format(time.RFC3339),
		}
		switch {
		case p.Summary != "":
			entry.Summary = &atomText{Type: "html", Body: string(p.Summary)}
		case p.File.Description != "":
			entry.Summary = &atomText{Body: p.File.Description}
		}
		f.Entries = append(f.Entries, entry)
	}
	return encodeXML(f)
}

func encodeXML(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
