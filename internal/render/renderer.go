package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"sync"

	"git.home.luguber.info/inful/sitegen/internal/content"
	"git.home.luguber.info/inful/sitegen/internal/execute"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/markdown"
	"git.home.luguber.info/inful/sitegen/internal/taxonomy"
)

const (
	// MaxShortcodeDepth bounds nested and recursive shortcode expansion.
	MaxShortcodeDepth = 16
	// MaxIncludeDepth bounds nested includes.
	MaxIncludeDepth = 16
	// IncludeShortcode is the reserved name of the include directive.
	IncludeShortcode = "include"
)

// Options configures a Renderer for one build.
type Options struct {
	Library  *Library
	Includes map[string]string
	Data     map[string]any
	Site     *content.Site
	// Taxonomies are exposed as .Site.Taxonomies.
	Taxonomies []*taxonomy.Taxonomy
	Info       SiteInfo
	// Exec runs executable blocks; nil leaves them unexecuted.
	Exec      *execute.Engine
	Converter *markdown.Converter
	// Strict turns undefined variables, broken "@/" links and execution
	// failures into errors.
	Strict bool
}

// Renderer is safe for concurrent use by page workers.
type Renderer struct {
	lib      *Library
	includes map[string]string
	data     map[string]any
	content  *content.Site
	site     SiteInfo
	siteCtx  *SiteContext
	exec     *execute.Engine
	conv     *markdown.Converter
	strict   bool
	funcs    template.FuncMap

	mu       sync.Mutex
	compiled map[string]*template.Template
}

// New creates a Renderer.
func New(opts Options) *Renderer {
	if opts.Library == nil {
		opts.Library = NewLibrary()
	}
	if opts.Converter == nil {
		opts.Converter = markdown.New(markdown.Options{})
	}
	r := &Renderer{
		lib:      opts.Library,
		includes: opts.Includes,
		data:     opts.Data,
		content:  opts.Site,
		site:     opts.Info,
		exec:     opts.Exec,
		conv:     opts.Converter,
		strict:   opts.Strict,
		compiled: map[string]*template.Template{},
	}
	r.siteCtx = &SiteContext{SiteInfo: opts.Info, Data: opts.Data, Taxonomies: opts.Taxonomies}
	if opts.Site != nil {
		r.siteCtx.Root = opts.Site.Root
		r.siteCtx.Pages = opts.Site.SortedPages()
		r.siteCtx.Sections = opts.Site.SortedSections()
	}
	r.funcs = r.funcMap()
	return r
}

// Site returns the shared .Site context.
func (r *Renderer) Site() *SiteContext { return r.siteCtx }

func (r *Renderer) resolve(target string) (string, bool) {
	if r.content == nil {
		return "", false
	}
	return r.content.ResolveURL(target)
}

// Body is a rendered page or section body.
type Body struct {
	Content template.HTML
	Summary template.HTML
	Exec    []execute.Result
	// Issues are non-fatal problems found while rendering.
	Issues []error
}

// RenderContent runs the body pipeline for a page.
func (r *Renderer) RenderContent(ctx context.Context, page *content.Page) (*Body, error) {
	pc := r.pageContext(page)
	return r.renderBody(ctx, page.Path(), page.File.Body, pc)
}

// RenderSectionContent runs the body pipeline for a section's _index.md.
func (r *Renderer) RenderSectionContent(ctx context.Context, s *content.Section) (*Body, error) {
	if s.File == nil {
		return &Body{}, nil
	}
	pc := r.sectionContext(s, nil)
	return r.renderBody(ctx, s.ID(), s.File.Body, pc)
}

func (r *Renderer) renderBody(ctx context.Context, src, body string, pc *PageContext) (*Body, error) {
	out := &Body{}

	text, err := r.expandIncludes(src, body, 0)
	if err != nil {
		return nil, err
	}

	text, blocks, issues := extractExecBlocks(src, text)
	out.Issues = append(out.Issues, issues...)

	text, scIssues, err := r.expandShortcodes(src, text, pc, 0)
	if err != nil {
		return nil, err
	}
	out.Issues = append(out.Issues, scIssues...)

	if len(blocks) > 0 {
		out.Exec = r.runBlocks(ctx, blocks)
		for _, res := range out.Exec {
			if res.Err == nil {
				continue
			}
			if r.strict {
				return nil, ferrors.WrapError(res.Err, ferrors.CategoryExecution, "code block failed in strict mode").
					WithCode(ferrors.CodeExecutionFailure).
					WithContext("page", src).
					Fatal().
					Build()
			}
			out.Issues = append(out.Issues, res.Err)
		}
	}

	res, err := r.conv.Convert([]byte(text), r.resolve)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryContent, "markdown conversion failed").
			WithContext("path", src).Build()
	}
	for _, dest := range res.Unresolved {
		b := ferrors.NewError(ferrors.CategoryLink, "unresolved internal link").
			WithCode(ferrors.CodeBrokenInternalLink).
			WithContext("page", src).
			WithContext("target", dest)
		if !r.strict {
			b = b.Warning()
		}
		out.Issues = append(out.Issues, b.Build())
	}

	html := res.HTML
	for i, er := range out.Exec {
		html = strings.Replace(html, placeholder(i), execFragment(er), 1)
	}

	// #nosec G203 - rendered site content
	out.Content = template.HTML(html)
	if before, _, ok := strings.Cut(html, content.MoreMarker); ok {
		// #nosec G203 - rendered site content
		out.Summary = template.HTML(strings.TrimSpace(before))
	}
	return out, nil
}

func (r *Renderer) runBlocks(ctx context.Context, blocks []execute.Block) []execute.Result {
	if r.exec == nil {
		results := make([]execute.Result, len(blocks))
		for i, b := range blocks {
			results[i] = execute.Result{Block: b, Skipped: true}
		}
		return results
	}
	return r.exec.ExecutePage(ctx, blocks[0].Page, blocks)
}

func (r *Renderer) expandIncludes(src, text string, depth int) (string, error) {
	if depth > MaxIncludeDepth {
		return "", ferrors.TemplateError(ferrors.CodeCyclicTemplateGraph, "includes nested too deeply").
			WithContext("page", src).Build()
	}
	if !strings.Contains(text, IncludeShortcode) {
		return text, nil
	}
	calls, err := findCalls(text)
	if err != nil {
		return "", shortcodeSyntax(src, err)
	}
	var b strings.Builder
	pos := 0
	for _, c := range calls {
		if c.Name != IncludeShortcode {
			continue
		}
		p, _ := c.Args["path"].(string)
		inc, ok := r.includes[cleanInclude(p)]
		if !ok {
			return "", ferrors.TemplateError(ferrors.CodeTemplateNotFound, "include not found").
				WithContext("page", src).WithContext("include", p).Build()
		}
		inc, err = r.expandIncludes(src, inc, depth+1)
		if err != nil {
			return "", err
		}
		b.WriteString(text[pos:c.Start])
		b.WriteString(inc)
		pos = c.End
	}
	b.WriteString(text[pos:])
	return b.String(), nil
}

func shortcodeSyntax(src string, err error) error {
	return ferrors.NewError(ferrors.CategoryShortcode, "malformed shortcode").
		WithCause(err).WithContext("page", src).Build()
}

// expandShortcodes expands calls depth-first and left to right. A
// shortcode's body is expanded before the shortcode runs, and its output is
// expanded again one level deeper.
func (r *Renderer) expandShortcodes(src, text string, pc *PageContext, depth int) (string, []error, error) {
	if depth > MaxShortcodeDepth {
		return "", nil, ferrors.NewError(ferrors.CategoryShortcode, "shortcode recursion limit exceeded").
			WithCode(ferrors.CodeShortcodeRecursionLimit).
			WithContext("page", src).
			WithContext("limit", MaxShortcodeDepth).
			Build()
	}
	if !strings.Contains(text, "{{") && !strings.Contains(text, "{%") {
		return text, nil, nil
	}
	calls, err := findCalls(text)
	if err != nil {
		return "", nil, shortcodeSyntax(src, err)
	}

	var (
		b      strings.Builder
		issues []error
	)
	pos := 0
	for _, c := range calls {
		if c.Name == IncludeShortcode {
			// Includes inside shortcode bodies surface only here.
			inc, err := r.expandIncludes(src, text[c.Start:c.End], 0)
			if err != nil {
				return "", nil, err
			}
			inc, sub, err := r.expandShortcodes(src, inc, pc, depth+1)
			if err != nil {
				return "", nil, err
			}
			issues = append(issues, sub...)
			b.WriteString(text[pos:c.Start])
			b.WriteString(inc)
			pos = c.End
			continue
		}
		body := ""
		if c.Body != nil {
			var sub []error
			body, sub, err = r.expandShortcodes(src, *c.Body, pc, depth+1)
			if err != nil {
				return "", nil, err
			}
			issues = append(issues, sub...)
		}
		out, sub, err := r.callShortcode(src, c, body, pc)
		if err != nil {
			return "", nil, err
		}
		issues = append(issues, sub...)
		out, sub, err = r.expandShortcodes(src, out, pc, depth+1)
		if err != nil {
			return "", nil, err
		}
		issues = append(issues, sub...)

		b.WriteString(text[pos:c.Start])
		b.WriteString(out)
		pos = c.End
	}
	b.WriteString(text[pos:])
	return b.String(), issues, nil
}

func (r *Renderer) callShortcode(src string, c call, body string, pc *PageContext) (string, []error, error) {
	sc, ok := r.lib.Shortcode(c.Name)
	if !ok {
		return "", nil, ferrors.TemplateError(ferrors.CodeTemplateNotFound, "shortcode not found").
			WithContext("page", src).WithContext("shortcode", c.Name).Build()
	}
	if c.Body != nil && sc.Kind == BodyInline {
		return "", nil, ferrors.NewError(ferrors.CategoryShortcode, "shortcode does not take a body").
			WithContext("page", src).WithContext("shortcode", c.Name).Build()
	}

	data := make(map[string]any, len(c.Args)+len(sc.Params)+3)
	for k, v := range c.Args {
		data[k] = v
	}
	for _, p := range sc.Params {
		if _, set := data[p.Name]; set {
			continue
		}
		switch {
		case p.HasDefault:
			data[p.Name] = p.Default
		case p.Required:
			return "", nil, ferrors.NewError(ferrors.CategoryShortcode, "missing required shortcode parameter").
				WithContext("page", src).
				WithContext("shortcode", c.Name).
				WithContext("param", p.Name).
				Build()
		}
	}
	data["Body"] = body
	data["Page"] = pc
	data["Site"] = r.siteCtx

	key := "shortcode:" + c.Name
	return r.run(key, func(lenient bool) (*template.Template, error) {
		return r.compileShortcode(sc, lenient)
	}, data, src)
}

func (r *Renderer) pageContext(p *content.Page) *PageContext {
	sec, _ := r.sectionOf(p.Section)
	return &PageContext{
		Site:      r.siteCtx,
		Title:     p.Title,
		URL:       p.URL,
		Permalink: r.site.BaseURL + p.URL,
		Params:    paramsOf(p.File),
		Content:   p.Content,
		Summary:   p.Summary,
		Page:      p,
		Section:   sec,
	}
}

func (r *Renderer) sectionOf(dir string) (*content.Section, bool) {
	if r.content == nil {
		return nil, false
	}
	return r.content.Section(dir)
}

func (r *Renderer) sectionContext(s *content.Section, pager *taxonomy.Pager) *PageContext {
	url := s.URL
	if pager != nil {
		url = pager.URL
	}
	return &PageContext{
		Site:      r.siteCtx,
		Title:     s.Title,
		URL:       url,
		Permalink: r.site.BaseURL + url,
		Params:    paramsOf(s.File),
		Content:   s.Content,
		Section:   s,
		Pager:     pager,
	}
}

// Rendered is a fully rendered page.
type Rendered struct {
	HTML []byte
	Body *Body
}

// RenderPage runs the body pipeline and wraps the result in the page's
// template. The page's Content and Summary are updated.
func (r *Renderer) RenderPage(ctx context.Context, page *content.Page) (*Rendered, error) {
	body, err := r.RenderContent(ctx, page)
	if err != nil {
		return nil, err
	}
	page.Content, page.Summary = body.Content, body.Summary
	html, issues, err := r.RenderPageTemplate(page)
	if err != nil {
		return nil, err
	}
	body.Issues = append(body.Issues, issues...)
	return &Rendered{HTML: html, Body: body}, nil
}

// RenderPageTemplate executes the page's template around its already
// rendered Content.
func (r *Renderer) RenderPageTemplate(page *content.Page) ([]byte, []error, error) {
	return r.ExecuteTemplate(page.Template, r.pageContext(page), page.Path())
}

// RenderSection renders one pager of a section listing.
func (r *Renderer) RenderSection(s *content.Section, pager *taxonomy.Pager) ([]byte, []error, error) {
	return r.ExecuteTemplate(s.Template, r.sectionContext(s, pager), s.ID())
}

// RenderTaxonomy renders the term list of a taxonomy.
func (r *Renderer) RenderTaxonomy(t *taxonomy.Taxonomy) ([]byte, []error, error) {
	pc := &PageContext{Site: r.siteCtx, Title: t.Name, URL: t.URL, Permalink: r.site.BaseURL + t.URL, Params: map[string]any{}, Taxonomy: t}
	return r.ExecuteTemplate("taxonomy.html", pc, "taxonomy:"+t.Name)
}

// RenderTerm renders one pager of a taxonomy term.
func (r *Renderer) RenderTerm(t *taxonomy.Taxonomy, term *taxonomy.Term, pager *taxonomy.Pager) ([]byte, []error, error) {
	pc := &PageContext{
		Site: r.siteCtx, Title: term.Name, URL: pager.URL, Permalink: r.site.BaseURL + pager.URL,
		Params: map[string]any{}, Taxonomy: t, Term: term, Pager: pager,
	}
	return r.ExecuteTemplate("term.html", pc, "term:"+t.Name+"/"+term.Slug)
}

// ExecuteTemplate runs a named page-level template with data. owner names
// the entity in reported issues.
func (r *Renderer) ExecuteTemplate(name string, data any, owner string) ([]byte, []error, error) {
	out, issues, err := r.run("template:"+name, func(lenient bool) (*template.Template, error) {
		return r.compile(name, lenient)
	}, data, owner)
	if err != nil {
		return nil, nil, err
	}
	return []byte(out), issues, nil
}

// run executes with missingkey=error. In lenient mode an undefined
// variable is reported as a warning and the template is re-run with
// missing keys rendering empty.
func (r *Renderer) run(key string, compile func(lenient bool) (*template.Template, error), data any, owner string) (string, []error, error) {
	t, err := r.cached(key, false, compile)
	if err != nil {
		return "", nil, err
	}
	var buf bytes.Buffer
	err = t.Execute(&buf, data)
	if err == nil {
		return buf.String(), nil, nil
	}
	if !isUndefined(err) {
		return "", nil, ferrors.WrapError(err, ferrors.CategoryTemplate, "template execution failed").
			WithContext("template", t.Name()).WithContext("page", owner).Build()
	}

	undefined := ferrors.WrapError(err, ferrors.CategoryTemplate, "undefined variable").
		WithCode(ferrors.CodeUndefinedVariable).
		WithContext("template", t.Name()).
		WithContext("page", owner)
	if r.strict {
		return "", nil, undefined.Build()
	}

	lenientT, err := r.cached(key, true, compile)
	if err != nil {
		return "", nil, err
	}
	buf.Reset()
	if err := lenientT.Execute(&buf, data); err != nil {
		return "", nil, ferrors.WrapError(err, ferrors.CategoryTemplate, "undefined variable").
			WithCode(ferrors.CodeUndefinedVariable).
			WithContext("template", t.Name()).
			WithContext("page", owner).
			Build()
	}
	return buf.String(), []error{undefined.Warning().Build()}, nil
}

func isUndefined(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "map has no entry for key") ||
		strings.Contains(msg, "can't evaluate field") ||
		strings.Contains(msg, "nil pointer evaluating")
}

func (r *Renderer) cached(key string, lenient bool, compile func(bool) (*template.Template, error)) (*template.Template, error) {
	k := fmt.Sprintf("%s|%t", key, lenient)
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.compiled[k]; ok {
		return t, nil
	}
	t, err := compile(lenient)
	if err != nil {
		return nil, err
	}
	r.compiled[k] = t
	return t, nil
}
