package render

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"git.home.luguber.info/inful/sitegen/internal/content"
	"git.home.luguber.info/inful/sitegen/internal/depgraph"
)

// ShortcodeDir is the templates subdirectory holding shortcodes.
const ShortcodeDir = "shortcodes"

// ListingsData is a pseudo data entity. Templates that walk other pages
// (site or section listings, pagers, taxonomies) reference it, and the
// scheduler marks it changed whenever any content changes.
const ListingsData = "@listings"

// Template is a page-level template file.
type Template struct {
	Name    string
	Source  string
	Extends string
	// Calls are the template files pulled in with {{ template "x" }}.
	Calls    []string
	DataRefs []string
	// Links are the content paths named literally in urlFor calls.
	Links []string
}

// BodyKind tells whether a shortcode consumes a body.
type BodyKind string

const (
	BodyInline BodyKind = "inline"
	BodyBlock  BodyKind = "block"
)

// Param is one declared shortcode parameter.
type Param struct {
	Name       string
	Required   bool
	Default    string
	HasDefault bool
}

// Shortcode is a template invoked from page bodies.
type Shortcode struct {
	Name     string
	Source   string
	Params   []Param
	Kind     BodyKind
	Calls    []string
	DataRefs []string
	Links    []string
}

var (
	extendsRe  = regexp.MustCompile(`^\s*\{\{-?\s*/\*\s*extends\s+"([^"]+)"\s*\*/\s*-?\}\}`)
	callRe     = regexp.MustCompile(`\{\{-?\s*template\s+"([^"]+)"`)
	dataFuncRe = regexp.MustCompile(`\bdata\s+"([^"]+)"`)
	dataPathRe = regexp.MustCompile(`\.Site\.Data\.([A-Za-z0-9_]+)`)
	urlForRe   = regexp.MustCompile(`\burlFor\s+"([^"]+)"`)
	listingRe  = regexp.MustCompile(`\.Site\.(Pages|Sections|Taxonomies|Root)\b|\.Site(?:[^.\w]|$)|\.Section\b|\.Pager\b|\.Taxonomy\b|\.Term\b|\burlFor\s+[^"\s]`)
	paramRe    = regexp.MustCompile(`\{\{-?\s*/\*\s*param\s+(.*?)\s*\*/\s*-?\}\}`)
	bodyRe     = regexp.MustCompile(`\.Body\b`)
)

func scanCalls(src string) []string {
	var out []string
	for _, m := range callRe.FindAllStringSubmatch(src, -1) {
		if strings.Contains(m[1], ".") {
			out = append(out, m[1])
		}
	}
	return uniqueSorted(out)
}

func scanData(src string) []string {
	var out []string
	for _, m := range dataFuncRe.FindAllStringSubmatch(src, -1) {
		out = append(out, m[1])
	}
	for _, m := range dataPathRe.FindAllStringSubmatch(src, -1) {
		out = append(out, m[1])
	}
	// Listing fields, .Site handed on as a whole and urlFor with a computed
	// target can all reach other pages.
	if listingRe.MatchString(src) {
		out = append(out, ListingsData)
	}
	return uniqueSorted(out)
}

// scanLinks returns the content files named by literal urlFor targets.
func scanLinks(src string) []string {
	var out []string
	for _, m := range urlForRe.FindAllStringSubmatch(src, -1) {
		if content.IsContentPath(m[1]) {
			out = append(out, m[1])
		}
	}
	return uniqueSorted(out)
}

func uniqueSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	sort.Strings(in)
	out := in[:1]
	for _, s := range in[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}

// ParseTemplate extracts the static references of a template.
func ParseTemplate(name, src string) *Template {
	t := &Template{Name: name, Source: src, Calls: scanCalls(src), DataRefs: scanData(src), Links: scanLinks(src)}
	if m := extendsRe.FindStringSubmatch(src); m != nil {
		t.Extends = m[1]
	}
	return t
}

// ParseShortcode extracts the parameter schema and body kind.
func ParseShortcode(name, src string) (*Shortcode, error) {
	sc := &Shortcode{
		Name:     name,
		Source:   src,
		Kind:     BodyInline,
		Calls:    scanCalls(src),
		DataRefs: scanData(src),
		Links:    scanLinks(src),
	}
	if bodyRe.MatchString(src) {
		sc.Kind = BodyBlock
	}
	for _, m := range paramRe.FindAllStringSubmatch(src, -1) {
		p, err := parseParam(m[1])
		if err != nil {
			return nil, fmt.Errorf("shortcode %s: %w", name, err)
		}
		sc.Params = append(sc.Params, p)
	}
	return sc, nil
}

func parseParam(decl string) (Param, error) {
	fields := strings.Fields(decl)
	if len(fields) == 0 {
		return Param{}, fmt.Errorf("empty param declaration")
	}
	p := Param{Name: fields[0]}
	rest := strings.TrimSpace(strings.TrimPrefix(decl, fields[0]))
	for rest != "" {
		switch {
		case strings.HasPrefix(rest, "required"):
			p.Required = true
			rest = strings.TrimSpace(rest[len("required"):])
		case strings.HasPrefix(rest, "default="):
			args, _, err := parseArgs(rest+")", 0)
			if err != nil {
				return Param{}, fmt.Errorf("param %s: %w", p.Name, err)
			}
			p.Default, p.HasDefault = fmt.Sprint(args["default"]), true
			rest = ""
		default:
			return Param{}, fmt.Errorf("param %s: unexpected %q", p.Name, rest)
		}
	}
	return p, nil
}

// Library holds the parsed templates and shortcodes of a site. It outlives
// a single build so that incremental builds only re-read changed files.
type Library struct {
	mu         sync.RWMutex
	templates  map[string]*Template
	shortcodes map[string]*Shortcode
}

// NewLibrary returns an empty library.
func NewLibrary() *Library {
	return &Library{templates: map[string]*Template{}, shortcodes: map[string]*Shortcode{}}
}

// LoadLibrary reads every .html file below dir. A missing dir yields an
// empty library.
func LoadLibrary(dir string) (*Library, error) {
	lib := NewLibrary()
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == dir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".html") {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		// #nosec G304 - walking the site's template directory
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return lib.Set(filepath.ToSlash(rel), string(data))
	})
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	return lib, nil
}

// ShortcodeName returns the shortcode name for a template-relative path.
func ShortcodeName(rel string) (string, bool) {
	rest, ok := strings.CutPrefix(rel, ShortcodeDir+"/")
	if !ok || strings.Contains(rest, "/") {
		return "", false
	}
	return strings.TrimSuffix(rest, path.Ext(rest)), true
}

// Set adds or replaces the file at the template-relative path rel.
func (l *Library) Set(rel, src string) error {
	if name, ok := ShortcodeName(rel); ok {
		sc, err := ParseShortcode(name, src)
		if err != nil {
			return err
		}
		l.mu.Lock()
		l.shortcodes[name] = sc
		l.mu.Unlock()
		return nil
	}
	l.mu.Lock()
	l.templates[rel] = ParseTemplate(rel, src)
	l.mu.Unlock()
	return nil
}

// Remove deletes the file at rel.
func (l *Library) Remove(rel string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if name, ok := ShortcodeName(rel); ok {
		delete(l.shortcodes, name)
		return
	}
	delete(l.templates, rel)
}

func (l *Library) Template(name string) (*Template, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.templates[name]
	return t, ok
}

func (l *Library) Shortcode(name string) (*Shortcode, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.shortcodes[name]
	return s, ok
}

// Has reports whether a page-level template exists.
func (l *Library) Has(name string) bool {
	_, ok := l.Template(name)
	return ok
}

// Sources returns the source of every template and shortcode keyed by
// entity id.
func (l *Library) Sources() map[string]string {
	if l == nil {
		return map[string]string{}
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]string, len(l.templates)+len(l.shortcodes))
	for name, t := range l.templates {
		out[depgraph.TemplateID(name)] = t.Source
	}
	for name, s := range l.shortcodes {
		out[depgraph.ShortcodeID(name)] = s.Source
	}
	return out
}

// Nodes returns dependency graph nodes for every template and shortcode.
func (l *Library) Nodes() []depgraph.Node {
	l.mu.RLock()
	defer l.mu.RUnlock()
	nodes := make([]depgraph.Node, 0, len(l.templates)+len(l.shortcodes))
	for _, t := range l.templates {
		nodes = append(nodes, depgraph.Node{ID: depgraph.TemplateID(t.Name), Refs: TemplateRefs(t)})
	}
	for _, s := range l.shortcodes {
		nodes = append(nodes, depgraph.Node{ID: depgraph.ShortcodeID(s.Name), Refs: ShortcodeRefs(s)})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// TemplateRefs returns the producers a template depends on.
func TemplateRefs(t *Template) []depgraph.Ref {
	var refs []depgraph.Ref
	if t.Extends != "" {
		refs = append(refs, depgraph.Ref{Producer: depgraph.TemplateID(t.Extends), Kind: depgraph.KindTemplateUse})
	}
	for _, c := range t.Calls {
		refs = append(refs, depgraph.Ref{Producer: depgraph.TemplateID(c), Kind: depgraph.KindTemplateUse})
	}
	for _, d := range t.DataRefs {
		refs = append(refs, depgraph.Ref{Producer: depgraph.DataID(d), Kind: depgraph.KindDataReference})
	}
	for _, l := range t.Links {
		refs = append(refs, depgraph.Ref{Producer: LinkTargetID(l), Kind: depgraph.KindDataReference})
	}
	return refs
}

// ShortcodeRefs returns the producers a shortcode depends on.
func ShortcodeRefs(s *Shortcode) []depgraph.Ref {
	var refs []depgraph.Ref
	for _, c := range s.Calls {
		refs = append(refs, depgraph.Ref{Producer: depgraph.TemplateID(c), Kind: depgraph.KindTemplateUse})
	}
	for _, d := range s.DataRefs {
		refs = append(refs, depgraph.Ref{Producer: depgraph.DataID(d), Kind: depgraph.KindDataReference})
	}
	for _, l := range s.Links {
		refs = append(refs, depgraph.Ref{Producer: LinkTargetID(l), Kind: depgraph.KindDataReference})
	}
	return refs
}
