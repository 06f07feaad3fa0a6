// Package taxonomy groups pages by their taxonomy terms and splits listings
// into pagers.
package taxonomy

import (
	"sort"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/sitegen/internal/content"
)

// Taxonomy is one classification such as "tags".
type Taxonomy struct {
	Name  string
	URL   string
	Terms []*Term
}

// Term is one value of a taxonomy together with its pages.
type Term struct {
	Taxonomy string
	// Name is the display form; pages may spell a term differently, the
	// lexically smallest spelling wins.
	Name  string
	Slug  string
	URL   string
	Pages []*content.Page
	// Pagers is never empty.
	Pagers []Pager
}

// Pager is one page of a paginated listing. Index starts at 1.
type Pager struct {
	Index int
	Total int
	Items []*content.Page
	URL   string
	Prev  string
	Next  string
	First string
	Last  string
}

// OutputPath maps a listing URL to its file below the output dir.
func OutputPath(url string) string {
	return strings.TrimPrefix(url, "/") + "index.html"
}

// PagerURL returns the URL of pager n of a listing rooted at base.
func PagerURL(base string, n int) string {
	if n <= 1 {
		return base
	}
	return strings.TrimSuffix(base, "/") + "/page/" + strconv.Itoa(n) + "/"
}

// Paginate splits items into pagers of size items. A non-positive size
// yields one pager; an empty listing still yields one empty pager.
func Paginate(items []*content.Page, size int, baseURL string) []Pager {
	if size <= 0 || size > len(items) {
		size = len(items)
	}
	total := 1
	if size > 0 {
		total = (len(items) + size - 1) / size
	}
	pagers := make([]Pager, total)
	for i := range pagers {
		n := i + 1
		p := Pager{
			Index: n,
			Total: total,
			URL:   PagerURL(baseURL, n),
			First: PagerURL(baseURL, 1),
			Last:  PagerURL(baseURL, total),
		}
		if size > 0 {
			end := min((i+1)*size, len(items))
			p.Items = items[i*size : end]
		}
		if n > 1 {
			p.Prev = PagerURL(baseURL, n-1)
		}
		if n < total {
			p.Next = PagerURL(baseURL, n+1)
		}
		pagers[i] = p
	}
	return pagers
}

// Resolve builds every configured taxonomy from pages. Terms are sorted by
// slug and their pages newest first. The result is recomputed wholesale on
// each build.
func Resolve(pages []*content.Page, taxonomies []string, pageSize int) []*Taxonomy {
	sorted := append([]*content.Page(nil), pages...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path() < sorted[j].Path() })

	out := make([]*Taxonomy, 0, len(taxonomies))
	for _, name := range taxonomies {
		tax := &Taxonomy{Name: name, URL: "/" + content.Slugify(name) + "/"}
		bySlug := map[string]*Term{}
		for _, p := range sorted {
			seen := map[string]bool{}
			for _, raw := range p.Terms[name] {
				slug := content.Slugify(raw)
				if slug == "" || seen[slug] {
					continue
				}
				seen[slug] = true
				t, ok := bySlug[slug]
				if !ok {
					t = &Term{Taxonomy: name, Name: raw, Slug: slug, URL: tax.URL + slug + "/"}
					bySlug[slug] = t
				} else if raw < t.Name {
					t.Name = raw
				}
				t.Pages = append(t.Pages, p)
			}
		}
		for _, t := range bySlug {
			content.SortPagesByDate(t.Pages)
			t.Pagers = Paginate(t.Pages, pageSize, t.URL)
			tax.Terms = append(tax.Terms, t)
		}
		sort.Slice(tax.Terms, func(i, j int) bool { return tax.Terms[i].Slug < tax.Terms[j].Slug })
		out = append(out, tax)
	}
	return out
}

// Find returns the taxonomy with the given name.
func Find(taxonomies []*Taxonomy, name string) (*Taxonomy, bool) {
	for _, t := range taxonomies {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}
