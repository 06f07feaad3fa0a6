package content

import (
	"path"
	"strings"
	"time"

	"github.com/inful/mdfp"

	"git.home.luguber.info/inful/sitegen/internal/frontmatter"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

const (
	// SectionFile marks a directory as a section and carries its front matter.
	SectionFile = "_index.md"
	// BundleFile makes its directory a page with co-located assets.
	BundleFile = "index.md"
	// MoreMarker separates the summary from the rest of the body.
	MoreMarker = "<!-- more -->"

	LanguageMarkdown = "markdown"
)

// Known front matter keys.
const (
	KeyTitle        = "title"
	KeyDescription  = "description"
	KeyDate         = "date"
	KeyUpdated      = "updated"
	KeyDraft        = "draft"
	KeySlug         = "slug"
	KeyTemplate     = "template"
	KeyAliases      = "aliases"
	KeyWeight       = "weight"
	KeySortBy       = "sort_by"
	KeyPaginateBy   = "paginate_by"
	KeyPageTemplate = "page_template"
	KeyExtra        = "extra"
)

// Sort orders accepted by sort_by.
const (
	SortByDate   = "date"
	SortByTitle  = "title"
	SortByWeight = "weight"
)

// File is a parsed content file. It is immutable after Parse.
type File struct {
	// Path is slash-separated and relative to the content directory.
	Path        string
	Raw         []byte
	Front       *frontmatter.Map
	Body        string
	Language    string
	Fingerprint string

	Title       string
	Description string
	Template    string
	Slug        string
	Draft       bool
	Date        time.Time
	Updated     time.Time
	Weight      int
	Aliases     []string

	// Section-only settings from _index.md.
	IsSection    bool
	SortBy       string
	PaginateBy   int
	PageTemplate string

	// Terms maps taxonomy name to the raw term names declared by the file.
	Terms map[string][]string
}

// HasDate reports whether the file has an explicit or inferred date.
func (f *File) HasDate() bool { return !f.Date.IsZero() }

// ParseOptions controls which front matter keys are taxonomies.
type ParseOptions struct {
	Taxonomies []string
}

// IsContentPath reports whether p has a supported content extension.
func IsContentPath(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// Parse turns raw file bytes into a File. It fails with UnsupportedExtension
// or MalformedFrontMatter classified errors.
func Parse(relPath string, raw []byte, opts ParseOptions) (*File, error) {
	relPath = path.Clean(strings.TrimPrefix(relPath, "/"))
	if !IsContentPath(relPath) {
		return nil, ferrors.ContentError(ferrors.CodeUnsupportedExtension, "unsupported content file extension").
			WithContext("path", relPath).
			WithContext("extension", path.Ext(relPath)).
			Build()
	}

	fmRaw, body, _, _, err := frontmatter.Split(raw)
	if err != nil {
		return nil, malformed(relPath, "front matter is not terminated", err)
	}
	front, err := frontmatter.Parse(fmRaw)
	if err != nil {
		return nil, malformed(relPath, "front matter is not valid YAML", err)
	}

	f := &File{
		Path:        relPath,
		Raw:         raw,
		Front:       front,
		Body:        string(body),
		Language:    LanguageMarkdown,
		IsSection:   path.Base(relPath) == SectionFile,
		Fingerprint: mdfp.CalculateFingerprintFromParts(string(fmRaw), string(body)),
		SortBy:      SortByDate,
		Terms:       map[string][]string{},
	}
	if err := f.decodeKnown(opts); err != nil {
		return nil, err
	}
	f.inferSlugAndDate()
	return f, nil
}

func (f *File) decodeKnown(opts ParseOptions) error {
	d := decoder{file: f}

	f.Title = d.str(KeyTitle)
	if f.Title == "" && !f.IsSection && d.err == nil {
		return malformed(f.Path, "missing required key \"title\"", nil)
	}
	f.Description = d.str(KeyDescription)
	f.Template = d.str(KeyTemplate)
	f.Slug = d.str(KeySlug)
	f.Draft = d.boolean(KeyDraft)
	f.Date = d.date(KeyDate)
	f.Updated = d.date(KeyUpdated)
	f.Weight = d.integer(KeyWeight)
	f.Aliases = d.strings(KeyAliases)
	f.PageTemplate = d.str(KeyPageTemplate)
	f.PaginateBy = d.integer(KeyPaginateBy)
	if f.PaginateBy < 0 && d.err == nil {
		d.fail(KeyPaginateBy, "must not be negative")
	}
	if v := d.str(KeySortBy); v != "" {
		switch v {
		case SortByDate, SortByTitle, SortByWeight:
			f.SortBy = v
		default:
			d.fail(KeySortBy, "must be one of date, title, weight")
		}
	}
	if v, ok := f.Front.Get(KeyExtra); ok && !v.IsNull() && v.Kind() != frontmatter.KindMap {
		d.fail(KeyExtra, "must be a mapping")
	}
	for _, tax := range opts.Taxonomies {
		if terms := d.strings(tax); len(terms) > 0 {
			f.Terms[tax] = terms
		}
	}
	return d.err
}

func (f *File) inferSlugAndDate() {
	dir, base := path.Split(f.Path)
	stem := strings.TrimSuffix(base, path.Ext(base))
	if base == BundleFile {
		stem = path.Base(strings.TrimSuffix(dir, "/"))
	}
	if date, rest, ok := splitDatePrefix(stem); ok {
		if f.Date.IsZero() {
			f.Date = date
		}
		stem = rest
	}
	if f.Slug == "" {
		f.Slug = Slugify(stem)
	} else {
		f.Slug = Slugify(f.Slug)
	}
}

// Summary returns the body text before the more marker, if present.
func (f *File) Summary() (string, bool) {
	before, _, found := strings.Cut(f.Body, MoreMarker)
	return before, found
}

// WordCount counts whitespace-separated words in the body.
func (f *File) WordCount() int {
	return len(strings.Fields(f.Body))
}

// ReadingTime estimates minutes at 200 words per minute, minimum one.
func (f *File) ReadingTime() int {
	return max(1, f.WordCount()/200)
}

func malformed(p, msg string, cause error) error {
	b := ferrors.ContentError(ferrors.CodeMalformedFrontMatter, msg).WithContext("path", p)
	if cause != nil {
		b = b.WithCause(cause)
	}
	return b.Build()
}

// decoder reads typed known keys and remembers the first type mismatch.
type decoder struct {
	file *File
	err  error
}

func (d *decoder) fail(key, want string) {
	if d.err == nil {
		d.err = ferrors.ContentError(ferrors.CodeMalformedFrontMatter, "invalid front matter key \""+key+"\": "+want).
			WithContext("path", d.file.Path).
			WithContext("key", key).
			Build()
	}
}

func (d *decoder) get(key string) (frontmatter.Value, bool) {
	v, ok := d.file.Front.Get(key)
	if !ok || v.IsNull() {
		return frontmatter.Value{}, false
	}
	return v, true
}

func (d *decoder) str(key string) string {
	v, ok := d.get(key)
	if !ok {
		return ""
	}
	s, ok := v.AsString()
	if !ok {
		d.fail(key, "must be a string")
	}
	return strings.TrimSpace(s)
}

func (d *decoder) boolean(key string) bool {
	v, ok := d.get(key)
	if !ok {
		return false
	}
	b, ok := v.AsBool()
	if !ok {
		d.fail(key, "must be a boolean")
	}
	return b
}

func (d *decoder) integer(key string) int {
	v, ok := d.get(key)
	if !ok {
		return 0
	}
	n, ok := v.AsInt()
	if !ok {
		d.fail(key, "must be an integer")
	}
	return int(n)
}

func (d *decoder) date(key string) time.Time {
	v, ok := d.get(key)
	if !ok {
		return time.Time{}
	}
	t, ok := v.AsTime()
	if !ok {
		d.fail(key, "must be a date (YYYY-MM-DD or RFC 3339)")
	}
	return t
}

func (d *decoder) strings(key string) []string {
	v, ok := d.get(key)
	if !ok {
		return nil
	}
	list, ok := v.Strings()
	if !ok {
		d.fail(key, "must be a list of strings")
	}
	return list
}
