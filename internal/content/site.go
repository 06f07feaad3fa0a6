package content

import (
	"html/template"
	"path"
	"sort"
	"strings"
	"time"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

// Page is a renderable page derived from a File.
type Page struct {
	File *File

	Title       string
	Description string
	// Template is the resolved template name.
	Template   string
	URL        string
	OutputPath string
	// Section is the path of the owning section ("" for the root).
	Section string
	// Dir is the source directory, used for co-located assets and file="" blocks.
	Dir      string
	IsBundle bool
	Terms    map[string][]string
	Aliases  []string

	WordCount   int
	ReadingTime int

	// Content and Summary are filled in by the renderer.
	Content template.HTML
	Summary template.HTML
}

// Path returns the source path of the page.
func (p *Page) Path() string { return p.File.Path }

// Date returns the page's publish date (zero if undated).
func (p *Page) Date() time.Time { return p.File.Date }

// Section groups the pages and subsections of one content directory.
type Section struct {
	// Path is the slash-separated directory ("" for the root).
	Path string
	// File is nil when the directory has no _index.md.
	File *File

	Title        string
	Description  string
	Template     string
	PageTemplate string
	SortBy       string
	PaginateBy   int
	Weight       int
	URL          string
	OutputPath   string

	Pages       []*Page
	Subsections []*Section

	Content template.HTML
}

// ID is the source path identifying the section: its _index.md path.
func (s *Section) ID() string {
	return path.Join(s.Path, SectionFile)
}

// IsRoot reports whether this is the top-level section.
func (s *Section) IsRoot() bool { return s.Path == "" }

// Site is the assembled content model.
type Site struct {
	Root     *Section
	Sections map[string]*Section
	// Pages is keyed by source path.
	Pages map[string]*Page
	// byURL indexes pages and sections by URL.
	byURL map[string]string
}

// AssembleOptions controls page selection and defaults.
type AssembleOptions struct {
	IncludeDrafts bool
	PaginateBy    int
}

// Assemble builds a Site from parsed files keyed by path. It returns
// non-fatal issues such as two files mapping to the same URL; the file that
// sorts later is dropped.
func Assemble(files map[string]*File, opts AssembleOptions) (*Site, []error) {
	site := &Site{
		Sections: map[string]*Section{},
		Pages:    map[string]*Page{},
		byURL:    map[string]string{},
	}
	var issues []error

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	site.Root = site.ensureSection("", opts)
	for _, p := range paths {
		f := files[p]
		if f.IsSection {
			s := site.ensureSection(path.Dir(p), opts)
			s.applyFile(f, opts)
		}
	}

	for _, p := range paths {
		f := files[p]
		if f.IsSection || (f.Draft && !opts.IncludeDrafts) {
			continue
		}
		page := newPage(f)
		sec := site.ensureSection(page.Section, opts)
		if page.Template == "" {
			page.Template = sec.PageTemplate
		}
		if owner, dup := site.byURL[page.URL]; dup {
			issues = append(issues, ferrors.ContentError(ferrors.CodeMalformedFrontMatter, "two content files map to the same URL").
				WithContext("path", p).
				WithContext("conflicts_with", owner).
				WithContext("url", page.URL).
				Build())
			continue
		}
		site.byURL[page.URL] = p
		site.Pages[p] = page
		sec.Pages = append(sec.Pages, page)
	}

	for _, s := range site.Sections {
		if !s.IsRoot() {
			if _, taken := site.byURL[s.URL]; !taken {
				site.byURL[s.URL] = s.ID()
			}
		}
		sortPages(s.Pages, s.SortBy)
		sort.Slice(s.Subsections, func(i, j int) bool {
			a, b := s.Subsections[i], s.Subsections[j]
			if a.Weight != b.Weight {
				return a.Weight < b.Weight
			}
			return a.Path < b.Path
		})
	}
	site.byURL["/"] = site.Root.ID()
	return site, issues
}

func (site *Site) ensureSection(dir string, opts AssembleOptions) *Section {
	if dir == "." || dir == "/" {
		dir = ""
	}
	if s, ok := site.Sections[dir]; ok {
		return s
	}
	s := &Section{
		Path:         dir,
		Title:        titleFromDir(dir),
		Template:     "section.html",
		PageTemplate: "page.html",
		SortBy:       SortByDate,
		PaginateBy:   opts.PaginateBy,
		URL:          urlFor(dir),
		OutputPath:   outputFor(dir),
	}
	if dir == "" {
		s.Template = "index.html"
	}
	site.Sections[dir] = s
	if dir != "" {
		parent := site.ensureSection(path.Dir(dir), opts)
		parent.Subsections = append(parent.Subsections, s)
	}
	return s
}

func (s *Section) applyFile(f *File, _ AssembleOptions) {
	s.File = f
	if f.Title != "" {
		s.Title = f.Title
	}
	s.Description = f.Description
	if f.Template != "" {
		s.Template = f.Template
	}
	if f.PageTemplate != "" {
		s.PageTemplate = f.PageTemplate
	}
	s.SortBy = f.SortBy
	if f.PaginateBy > 0 {
		s.PaginateBy = f.PaginateBy
	}
	s.Weight = f.Weight
}

func newPage(f *File) *Page {
	dir := path.Dir(f.Path)
	if dir == "." {
		dir = ""
	}
	bundle := path.Base(f.Path) == BundleFile
	section := dir
	if bundle {
		section = path.Dir(dir)
		if section == "." {
			section = ""
		}
	}
	urlPath := path.Join(section, f.Slug)

	terms := make(map[string][]string, len(f.Terms))
	for k, v := range f.Terms {
		terms[k] = append([]string(nil), v...)
	}
	return &Page{
		File:        f,
		Title:       f.Title,
		Description: f.Description,
		Template:    f.Template,
		URL:         urlFor(urlPath),
		OutputPath:  outputFor(urlPath),
		Section:     section,
		Dir:         dir,
		IsBundle:    bundle,
		Terms:       terms,
		Aliases:     f.Aliases,
		WordCount:   f.WordCount(),
		ReadingTime: f.ReadingTime(),
	}
}

func urlFor(p string) string {
	if p == "" {
		return "/"
	}
	return "/" + strings.Trim(p, "/") + "/"
}

func outputFor(p string) string {
	if p == "" {
		return "index.html"
	}
	return strings.Trim(p, "/") + "/index.html"
}

func titleFromDir(dir string) string {
	if dir == "" {
		return ""
	}
	return path.Base(dir)
}

// sortPages orders pages in place according to a section's sort_by.
func sortPages(pages []*Page, by string) {
	sort.SliceStable(pages, func(i, j int) bool {
		a, b := pages[i], pages[j]
		switch by {
		case SortByTitle:
			if ta, tb := strings.ToLower(a.Title), strings.ToLower(b.Title); ta != tb {
				return ta < tb
			}
		case SortByWeight:
			if a.File.Weight != b.File.Weight {
				return a.File.Weight < b.File.Weight
			}
		default:
			if a.File.HasDate() != b.File.HasDate() {
				return a.File.HasDate()
			}
			if !a.Date().Equal(b.Date()) {
				return a.Date().After(b.Date())
			}
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.Path() < b.Path()
	})
}

// SortPagesByDate orders pages newest first with undated pages last.
func SortPagesByDate(pages []*Page) {
	sortPages(pages, SortByDate)
}

// Page returns the page for a source path.
func (site *Site) Page(p string) (*Page, bool) {
	page, ok := site.Pages[p]
	return page, ok
}

// Section returns the section for a directory path.
func (site *Site) Section(dir string) (*Section, bool) {
	s, ok := site.Sections[dir]
	return s, ok
}

// ResolveURL maps a content path (as used by "@/" links) to its URL.
// Both pages and section index files resolve.
func (site *Site) ResolveURL(target string) (string, bool) {
	target = path.Clean(strings.TrimPrefix(target, "/"))
	if p, ok := site.Pages[target]; ok {
		return p.URL, true
	}
	if path.Base(target) == SectionFile {
		dir := path.Dir(target)
		if dir == "." {
			dir = ""
		}
		if s, ok := site.Sections[dir]; ok {
			return s.URL, true
		}
	}
	return "", false
}

// SortedPages returns all pages ordered by source path.
func (site *Site) SortedPages() []*Page {
	out := make([]*Page, 0, len(site.Pages))
	for _, p := range site.Pages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path() < out[j].Path() })
	return out
}

// SortedSections returns all sections ordered by path.
func (site *Site) SortedSections() []*Section {
	out := make([]*Section, 0, len(site.Sections))
	for _, s := range site.Sections {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// BundleFor returns the bundle page owning a co-located asset path, if any.
func (site *Site) BundleFor(assetPath string) (*Page, bool) {
	dir := path.Dir(assetPath)
	p, ok := site.Pages[path.Join(dir, BundleFile)]
	return p, ok && p.IsBundle
}
