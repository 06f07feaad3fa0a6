package build

import (
	"path"
	"reflect"
	"sort"

	"git.home.luguber.info/inful/sitegen/internal/content"
	"git.home.luguber.info/inful/sitegen/internal/depgraph"
	"git.home.luguber.info/inful/sitegen/internal/render"
	"git.home.luguber.info/inful/sitegen/internal/taxonomy"
)

// Template names for generated listings.
const (
	taxonomyTemplate = "taxonomy.html"
	termTemplate     = "term.html"
	notFoundTemplate = "404.html"
)

var (
	// listingsID is marked changed whenever any content changes. Templates
	// that walk listings reference it, and it owns the sitemap and feed.
	listingsID = depgraph.DataID(render.ListingsData)
	notFoundID = depgraph.TemplateID(notFoundTemplate)
)

// contentID maps a content path to its page or section entity.
func contentID(rel string) string {
	if path.Base(rel) == content.SectionFile {
		dir := path.Dir(rel)
		if dir == "." {
			dir = ""
		}
		return depgraph.SectionID(dir)
	}
	return depgraph.PageID(rel)
}

func templateRef(name string) depgraph.Ref {
	return depgraph.Ref{Producer: depgraph.TemplateID(name), Kind: depgraph.KindTemplateUse}
}

func memberRef(id string) depgraph.Ref {
	return depgraph.Ref{Producer: id, Kind: depgraph.KindDataReference}
}

// graphNodes computes the dependency node of every entity from the current
// sources and content.
func (e *Engine) graphNodes(site *content.Site, taxes []*taxonomy.Taxonomy) []depgraph.Node {
	nodes := e.lib.Nodes()

	for rel, src := range e.includes {
		nodes = append(nodes, depgraph.Node{ID: depgraph.IncludeID(rel), Refs: render.BodyRefs(src)})
	}
	for name := range e.data {
		nodes = append(nodes, depgraph.Node{ID: depgraph.DataID(name)})
	}
	nodes = append(nodes, depgraph.Node{ID: listingsID})

	for _, p := range site.SortedPages() {
		refs := append([]depgraph.Ref{templateRef(p.Template)}, render.BodyRefs(p.File.Body)...)
		refs = append(refs, render.FileRefs(p.Path(), p.File.Body)...)
		nodes = append(nodes, depgraph.Node{ID: depgraph.PageID(p.Path()), Refs: refs})
	}
	for _, s := range site.SortedSections() {
		refs := []depgraph.Ref{templateRef(s.Template)}
		if s.File != nil {
			refs = append(refs, render.BodyRefs(s.File.Body)...)
			refs = append(refs, render.FileRefs(s.File.Path, s.File.Body)...)
		}
		for _, p := range s.Pages {
			refs = append(refs, memberRef(depgraph.PageID(p.Path())))
		}
		for _, sub := range s.Subsections {
			refs = append(refs, memberRef(depgraph.SectionID(sub.Path)))
		}
		nodes = append(nodes, depgraph.Node{ID: depgraph.SectionID(s.Path), Refs: refs})
	}
	for _, t := range taxes {
		nodes = append(nodes, depgraph.Node{
			ID:   depgraph.TaxonomyID(t.Name),
			Refs: []depgraph.Ref{templateRef(taxonomyTemplate), memberRef(listingsID)},
		})
		for _, term := range t.Terms {
			refs := []depgraph.Ref{templateRef(termTemplate)}
			for _, p := range term.Pages {
				refs = append(refs, memberRef(depgraph.PageID(p.Path())))
			}
			nodes = append(nodes, depgraph.Node{ID: depgraph.TermID(t.Name, term.Slug), Refs: refs})
		}
	}
	return nodes
}

// syncGraph makes the graph hold exactly nodes.
func (e *Engine) syncGraph(nodes []depgraph.Node) error {
	want := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		want[n.ID] = true
	}
	for _, id := range e.graph.Nodes() {
		if !want[id] {
			if err := e.graph.Remove(id); err != nil {
				return err
			}
		}
	}
	for _, n := range nodes {
		if err := e.graph.AddOrReplace(n); err != nil {
			return err
		}
	}
	return nil
}

// targetKind is what a renderable entity produces.
type targetKind int

const (
	targetPage targetKind = iota
	targetSection
	targetTaxonomy
	targetTerm
	targetSiteFiles
	targetNotFound
)

// target is an entity that owns outputs.
type target struct {
	id      string
	kind    targetKind
	page    *content.Page
	section *content.Section
	tax     *taxonomy.Taxonomy
	term    *taxonomy.Term
}

// targets returns every renderable entity of the current build, keyed by id.
func (e *Engine) targets(site *content.Site, taxes []*taxonomy.Taxonomy) map[string]target {
	out := map[string]target{}
	for _, p := range site.Pages {
		id := depgraph.PageID(p.Path())
		out[id] = target{id: id, kind: targetPage, page: p}
	}
	for _, s := range site.Sections {
		id := depgraph.SectionID(s.Path)
		out[id] = target{id: id, kind: targetSection, section: s}
	}
	if e.lib.Has(taxonomyTemplate) {
		for _, t := range taxes {
			id := depgraph.TaxonomyID(t.Name)
			out[id] = target{id: id, kind: targetTaxonomy, tax: t}
		}
	}
	if e.lib.Has(termTemplate) {
		for _, t := range taxes {
			for _, term := range t.Terms {
				id := depgraph.TermID(t.Name, term.Slug)
				out[id] = target{id: id, kind: targetTerm, tax: t, term: term}
			}
		}
	}
	if e.cfg.Build.Sitemap || e.cfg.Build.Feed {
		out[listingsID] = target{id: listingsID, kind: targetSiteFiles}
	}
	if e.cfg.Build.NotFound && e.lib.Has(notFoundTemplate) {
		out[notFoundID] = target{id: notFoundID, kind: targetNotFound}
	}
	return out
}

// diffSources returns the ids whose source differs between old and new,
// including additions and removals.
func diffSources[V any](old, cur map[string]V, id func(string) string) []string {
	var out []string
	for k, v := range cur {
		if ov, ok := old[k]; !ok || !reflect.DeepEqual(ov, v) {
			out = append(out, id(k))
		}
	}
	for k := range old {
		if _, ok := cur[k]; !ok {
			out = append(out, id(k))
		}
	}
	sort.Strings(out)
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
