package render

import (
	"html/template"

	"git.home.luguber.info/inful/sitegen/internal/content"
	"git.home.luguber.info/inful/sitegen/internal/taxonomy"
)

// SiteInfo is the configuration-derived part of the template context.
type SiteInfo struct {
	Title       string
	Description string
	BaseURL     string
	Language    string
	Extra       map[string]any
}

// SiteContext is available to every template as .Site.
type SiteContext struct {
	SiteInfo
	Data       map[string]any
	Root       *content.Section
	Pages      []*content.Page
	Sections   []*content.Section
	Taxonomies []*taxonomy.Taxonomy
}

// PageContext is the data passed to page, section, taxonomy and term
// templates. Fields that do not apply to the rendered entity are nil.
type PageContext struct {
	Site      *SiteContext
	Title     string
	URL       string
	Permalink string
	Params    map[string]any
	Content   template.HTML
	Summary   template.HTML

	Page     *content.Page
	Section  *content.Section
	Pager    *taxonomy.Pager
	Taxonomy *taxonomy.Taxonomy
	Term     *taxonomy.Term
}

func paramsOf(f *content.File) map[string]any {
	if f == nil || f.Front == nil {
		return map[string]any{}
	}
	return f.Front.Interface()
}
