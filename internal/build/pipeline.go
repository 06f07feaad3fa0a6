package build

import (
	"context"
	"html/template"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/sitegen/internal/content"
	"git.home.luguber.info/inful/sitegen/internal/depgraph"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/linkverify"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
	"git.home.luguber.info/inful/sitegen/internal/preview/events"
	"git.home.luguber.info/inful/sitegen/internal/render"
	"git.home.luguber.info/inful/sitegen/internal/taxonomy"
)

const publishTimeout = 2 * time.Second

// run executes one build and finalizes its report. The caller holds e.mu.
func (e *Engine) run(ctx context.Context, kind Kind, cs changeSet) (*Report, error) {
	r := newReport(uuid.NewString(), kind)
	logger := e.logger.With(logfields.BuildID(r.BuildID))
	before := e.exec.Stats()
	logger.Info("Build started", slog.String("kind", string(kind)))

	if err := e.pipeline(ctx, r, cs, logger); err != nil {
		r.abort(err)
	}
	e.state.finish()

	canceled := ctx.Err() != nil
	r.ExecStats = e.exec.Stats().Sub(before)
	r.End = time.Now()
	r.sortIssues()
	sort.Strings(r.ChangedOutputs)
	sort.Strings(r.Affected)
	r.deriveOutcome(canceled)

	e.observe(r)
	bg := context.WithoutCancel(ctx)
	if e.history != nil {
		if err := e.history.Append(bg, r.Record()); err != nil {
			logger.Warn("Failed to record build history", logfields.Error(err))
		}
	}
	pubCtx, cancel := context.WithTimeout(bg, publishTimeout)
	err := e.bus.Publish(pubCtx, events.OutputsChanged{
		BuildID: r.BuildID,
		Paths:   append([]string(nil), r.ChangedOutputs...),
		Full:    kind == KindFull,
		Failed:  r.Outcome == OutcomeFailed,
		Summary: r.Summary(),
	})
	cancel()
	if err != nil {
		logger.Warn("Failed to publish build result", logfields.Error(err))
	}

	if r.fatal == nil && !canceled {
		e.built = true
	}

	level := slog.LevelInfo
	switch r.Outcome {
	case OutcomeWarning, OutcomeCanceled:
		level = slog.LevelWarn
	case OutcomeFailed:
		level = slog.LevelError
	}
	logger.Log(ctx, level, "Build finished",
		slog.String("outcome", string(r.Outcome)),
		logfields.Duration(r.Duration()),
		slog.Int("rendered", r.Rendered),
		slog.Int("written", r.Written),
		slog.Int("warnings", r.Warnings),
		slog.Int("errors", r.Errors))
	return r, r.Err()
}

func (e *Engine) observe(r *Report) {
	e.recorder.ObserveBuildDuration(string(r.Kind), r.Duration())
	e.recorder.IncBuildOutcome(string(r.Outcome))
	e.recorder.AddPagesRendered(r.Rendered)
	e.recorder.AddCacheLookups(int(r.ExecStats.Hits), int(r.ExecStats.Misses))
	e.recorder.AddExecutions(int(r.ExecStats.Executions), int(r.ExecStats.Failures))
	label := metrics.ResultSuccess
	switch r.Outcome {
	case OutcomeWarning:
		label = metrics.ResultWarning
	case OutcomeFailed:
		label = metrics.ResultFatal
	case OutcomeCanceled:
		label = metrics.ResultCanceled
	}
	for stage, d := range r.StageDurations {
		e.recorder.ObserveStageDuration(stage, d)
		e.recorder.IncStageResult(stage, label)
	}
}

func canceledError(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "build canceled").Build()
	}
	return nil
}

func (r *Report) timeStage(stage string, start time.Time, logger *slog.Logger) {
	d := time.Since(start)
	r.StageDurations[stage] += d
	logger.Debug("Stage complete", logfields.Stage(stage), logfields.Duration(d))
}

// pipeline runs the build stages. A returned error aborts the build; page
// level problems are recorded on r instead.
func (e *Engine) pipeline(ctx context.Context, r *Report, cs changeSet, logger *slog.Logger) error {
	full := r.Kind == KindFull

	if err := e.state.transition(StateScanning); err != nil {
		return err
	}
	start := time.Now()
	changed, err := e.loadSources(full, cs)
	if err != nil {
		return err
	}
	var inv *content.Inventory
	if full || cs.content {
		scanned, err := content.Scan(e.cfg.Path(e.cfg.ContentDir))
		if err != nil {
			return err
		}
		inv = &scanned
		e.assets = scanned.Assets
	}
	r.timeStage(StageScan, start, logger)
	if err := canceledError(ctx); err != nil {
		return err
	}

	if err := e.state.transition(StateParsing); err != nil {
		return err
	}
	start = time.Now()
	contentChanged := e.parseContent(ctx, r, full, inv, cs)
	changed = append(changed, contentChanged...)
	for _, rel := range sortedKeys(cs.assetPaths) {
		changed = append(changed, depgraph.AssetID(rel))
	}
	if full || len(contentChanged) > 0 {
		changed = append(changed, listingsID)
	}
	site, issues := content.Assemble(e.files, content.AssembleOptions{
		IncludeDrafts: e.cfg.IncludeDrafts,
		PaginateBy:    e.cfg.PaginateBy,
	})
	for _, is := range issues {
		r.AddIssue("", is)
	}
	taxes := taxonomy.Resolve(site.SortedPages(), e.cfg.Taxonomies, e.cfg.PaginateBy)
	r.timeStage(StageParse, start, logger)
	if err := canceledError(ctx); err != nil {
		return err
	}

	start = time.Now()
	oldAffected := e.graph.AffectedByAll(changed)
	if err := e.syncGraph(e.graphNodes(site, taxes)); err != nil {
		return err
	}
	newAffected := e.graph.AffectedByAll(changed)
	if err := e.graph.DetectTemplateCycles(); err != nil {
		return err
	}

	targets := e.targets(site, taxes)
	set := make(map[string]bool)
	if full {
		for id := range targets {
			set[id] = true
		}
	} else {
		for _, ids := range [][]string{oldAffected, newAffected, changed} {
			for _, id := range ids {
				if _, ok := targets[id]; ok {
					set[id] = true
				}
			}
		}
		for id := range targets {
			if !e.rendered[id] || e.failed[id] {
				set[id] = true
			}
		}
	}
	var removed []string
	for id := range e.rendered {
		if _, ok := targets[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	r.timeStage(StageGraph, start, logger)
	logger.Debug("Render set computed", logfields.Count(len(set)), slog.Int("removed", len(removed)))

	if err := e.state.transition(StateRendering); err != nil {
		return err
	}
	start = time.Now()
	e.graph.Freeze()
	out, err := e.renderTargets(ctx, r, site, taxes, targets, set)
	e.graph.Unfreeze()
	if err != nil {
		return err
	}
	r.timeStage(StageRender, start, logger)
	if err := canceledError(ctx); err != nil {
		return err
	}

	if err := e.state.transition(StateWriting); err != nil {
		return err
	}
	start = time.Now()
	var res commitResult
	for _, id := range removed {
		c, err := e.outputs.release(id)
		if err != nil {
			return err
		}
		res.merge(c)
		delete(e.rendered, id)
		delete(e.failed, id)
		delete(e.bodies, id)
		r.Affected = append(r.Affected, id)
	}
	for _, id := range sortedKeys(out) {
		c, err := e.outputs.commit(id, out[id])
		if err != nil {
			return err
		}
		res.merge(c)
	}
	r.timeStage(StageWrite, start, logger)

	start = time.Now()
	assets, err := e.writeAssets(ctx, r, full, cs)
	if err != nil {
		return err
	}
	res.merge(assets)
	if full {
		pruned, err := e.outputs.pruneOrphans()
		if err != nil {
			return err
		}
		res.Deleted = append(res.Deleted, pruned...)
	}
	r.timeStage(StageAssets, start, logger)

	r.Written, r.Skipped, r.Deleted = len(res.Written), len(res.Skipped), len(res.Deleted)
	r.ChangedOutputs = append(append(r.ChangedOutputs, res.Written...), res.Deleted...)

	start = time.Now()
	for _, b := range linkverify.Validate(e.cfg.Path(e.cfg.OutputDir), e.cfg.BaseURL, e.outputs.known()) {
		r.AddIssue(b.Page, b.Error(e.cfg.Strict))
	}
	r.timeStage(StageValidate, start, logger)

	e.snapshot.Lock()
	e.snapshot.site = site
	e.snapshot.Unlock()
	return nil
}

// loadSources reloads templates, includes and data when needed and returns
// the entity ids whose source changed.
func (e *Engine) loadSources(full bool, cs changeSet) ([]string, error) {
	var changed []string
	if full || cs.templates {
		lib, err := render.LoadLibrary(e.cfg.Path(e.cfg.TemplatesDir))
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryTemplate, "failed to load templates").Fatal().Build()
		}
		changed = append(changed, diffSources(e.lib.Sources(), lib.Sources(), identity)...)
		e.lib = lib
	}
	if full || cs.includes {
		inc, err := render.LoadIncludes(e.cfg.Path(e.cfg.IncludesDir))
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to load includes").Fatal().Build()
		}
		changed = append(changed, diffSources(e.includes, inc, depgraph.IncludeID)...)
		e.includes = inc
	}
	if full || cs.data {
		data, err := render.LoadData(e.cfg.Path(e.cfg.DataDir))
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to load data files").Fatal().Build()
		}
		changed = append(changed, diffSources(e.data, data, depgraph.DataID)...)
		e.data = data
	}
	return changed, nil
}

// parseContent re-parses new, named or (on full builds) all content files
// and returns the entity ids whose content changed, appeared or vanished.
// A file that fails to parse keeps its previous version on incremental
// builds and is left out on full builds.
func (e *Engine) parseContent(ctx context.Context, r *Report, full bool, inv *content.Inventory, cs changeSet) []string {
	if inv == nil {
		return nil
	}
	root := e.cfg.Path(e.cfg.ContentDir)
	opts := content.ParseOptions{Taxonomies: e.cfg.Taxonomies}

	present := make(map[string]bool, len(inv.Content))
	var todo []string
	for _, rel := range inv.Content {
		present[rel] = true
		if full || e.files[rel] == nil || cs.contentPaths[rel] {
			todo = append(todo, rel)
		}
	}

	next := make(map[string]*content.File, len(present))
	var changed []string
	for rel, f := range e.files {
		if !present[rel] {
			changed = append(changed, contentID(rel))
			continue
		}
		if !full {
			next[rel] = f
		}
	}

	results := runOrdered(ctx, todo, e.workers, func(_ context.Context, rel string) (*content.File, error) {
		return content.ReadAndParse(root, rel, opts)
	})
	for i, res := range results {
		rel := todo[i]
		if res.Err != nil {
			if ctx.Err() == nil {
				r.AddIssue(rel, res.Err)
				r.FailedPages++
			}
			continue
		}
		old := e.files[rel]
		next[rel] = res.Value
		if old == nil || old.Fingerprint != res.Value.Fingerprint {
			changed = append(changed, contentID(rel))
		}
	}
	e.files = next
	return changed
}

// renderTargets renders the entities in set and returns their outputs keyed
// by owner. Entities that fail keep their previous outputs.
func (e *Engine) renderTargets(ctx context.Context, r *Report, site *content.Site, taxes []*taxonomy.Taxonomy, targets map[string]target, set map[string]bool) (map[string]map[string][]byte, error) {
	rd := render.New(render.Options{
		Library:    e.lib,
		Includes:   e.includes,
		Data:       e.data,
		Site:       site,
		Taxonomies: taxes,
		Info: render.SiteInfo{
			Title:       e.cfg.Title,
			Description: e.cfg.Description,
			BaseURL:     e.cfg.BaseURL,
			Language:    e.cfg.Language,
			Extra:       e.cfg.Extra,
		},
		Exec:      e.exec,
		Converter: e.conv,
		Strict:    e.cfg.Strict,
	})

	var pageIDs, sectionIDs, listingIDs []string
	for _, id := range sortedKeys(targets) {
		t := targets[id]
		switch t.kind {
		case targetPage:
			if set[id] {
				pageIDs = append(pageIDs, id)
			} else {
				e.restoreBody(id, &t.page.Content, &t.page.Summary)
			}
		case targetSection:
			if set[id] {
				sectionIDs = append(sectionIDs, id)
			} else {
				e.restoreBody(id, &t.section.Content, nil)
			}
		default:
			if set[id] {
				listingIDs = append(listingIDs, id)
			}
		}
	}

	out := make(map[string]map[string][]byte)
	succeed := func(id string, files map[string][]byte) {
		out[id] = files
		e.rendered[id] = true
		delete(e.failed, id)
		r.Rendered++
		r.Affected = append(r.Affected, id)
	}
	fail := func(id, entity string, err error) {
		r.AddIssue(entity, err)
		r.FailedPages++
		e.failed[id] = true
	}

	// Page bodies first: section and term listings show them.
	bodies := runOrdered(ctx, pageIDs, e.workers, func(ctx context.Context, id string) (*render.Body, error) {
		return rd.RenderContent(ctx, targets[id].page)
	})
	var okPages []string
	for i, res := range bodies {
		id := pageIDs[i]
		p := targets[id].page
		if res.Err != nil {
			if ctx.Err() != nil {
				return nil, canceledError(ctx)
			}
			if ferrors.IsFatal(res.Err) {
				return nil, res.Err
			}
			fail(id, p.Path(), res.Err)
			e.restoreBody(id, &p.Content, &p.Summary)
			continue
		}
		p.Content, p.Summary = res.Value.Content, res.Value.Summary
		e.bodies[id] = renderedBody{content: string(res.Value.Content), summary: string(res.Value.Summary)}
		for _, is := range res.Value.Issues {
			r.AddIssue(p.Path(), is)
		}
		okPages = append(okPages, id)
	}

	sectionBodies := runOrdered(ctx, sectionIDs, e.workers, func(ctx context.Context, id string) (*render.Body, error) {
		return rd.RenderSectionContent(ctx, targets[id].section)
	})
	var okSections []string
	for i, res := range sectionBodies {
		id := sectionIDs[i]
		s := targets[id].section
		if res.Err != nil {
			if ctx.Err() != nil {
				return nil, canceledError(ctx)
			}
			if ferrors.IsFatal(res.Err) {
				return nil, res.Err
			}
			fail(id, s.ID(), res.Err)
			e.restoreBody(id, &s.Content, nil)
			continue
		}
		s.Content = res.Value.Content
		e.bodies[id] = renderedBody{content: string(res.Value.Content)}
		for _, is := range res.Value.Issues {
			r.AddIssue(s.ID(), is)
		}
		okSections = append(okSections, id)
	}

	wrapped := append(append(okPages, okSections...), listingIDs...)
	type rendered struct {
		files  map[string][]byte
		issues []error
	}
	results := runOrdered(ctx, wrapped, e.workers, func(_ context.Context, id string) (rendered, error) {
		files, issues, err := e.renderTarget(rd, site, targets[id])
		return rendered{files: files, issues: issues}, err
	})
	for i, res := range results {
		id := wrapped[i]
		entity := targetEntity(targets[id])
		for _, is := range res.Value.issues {
			r.AddIssue(entity, is)
		}
		if res.Err != nil {
			if ctx.Err() != nil {
				return nil, canceledError(ctx)
			}
			fail(id, entity, res.Err)
			continue
		}
		succeed(id, res.Value.files)
	}
	return out, nil
}

func (e *Engine) restoreBody(id string, body, summary *template.HTML) {
	b, ok := e.bodies[id]
	if !ok {
		return
	}
	*body = template.HTML(b.content) // #nosec G203 -- previously rendered output
	if summary != nil {
		*summary = template.HTML(b.summary) // #nosec G203 -- previously rendered output
	}
}

func targetEntity(t target) string {
	switch t.kind {
	case targetPage:
		return t.page.Path()
	case targetSection:
		return t.section.ID()
	default:
		return t.id
	}
}

// renderTarget produces the complete output set of one entity.
func (e *Engine) renderTarget(rd *render.Renderer, site *content.Site, t target) (map[string][]byte, []error, error) {
	files := map[string][]byte{}
	var issues []error
	add := func(path string, html []byte, is []error, err error) error {
		if err != nil {
			return err
		}
		files[path] = html
		issues = append(issues, is...)
		return nil
	}

	switch t.kind {
	case targetPage:
		p := t.page
		html, is, err := rd.RenderPageTemplate(p)
		if err := add(p.OutputPath, html, is, err); err != nil {
			return nil, issues, err
		}
		permalink := e.cfg.BaseURL + p.URL
		for _, alias := range p.Aliases {
			if ap := aliasPath(alias); ap != "" && ap != p.OutputPath {
				files[ap] = redirectHTML(permalink)
			}
		}

	case targetSection:
		s := t.section
		if s.File == nil && !e.lib.Has(s.Template) {
			return files, nil, nil
		}
		pagers := taxonomy.Paginate(s.Pages, s.PaginateBy, s.URL)
		for i := range pagers {
			html, is, err := rd.RenderSection(s, &pagers[i])
			if err := add(taxonomy.OutputPath(pagers[i].URL), html, is, err); err != nil {
				return nil, issues, err
			}
		}

	case targetTaxonomy:
		html, is, err := rd.RenderTaxonomy(t.tax)
		if err := add(taxonomy.OutputPath(t.tax.URL), html, is, err); err != nil {
			return nil, issues, err
		}

	case targetTerm:
		for i := range t.term.Pagers {
			pager := &t.term.Pagers[i]
			html, is, err := rd.RenderTerm(t.tax, t.term, pager)
			if err := add(taxonomy.OutputPath(pager.URL), html, is, err); err != nil {
				return nil, issues, err
			}
		}

	case targetSiteFiles:
		if e.cfg.Build.Sitemap {
			data, err := sitemap(site, e.cfg.BaseURL)
			if err != nil {
				return nil, nil, ferrors.WrapError(err, ferrors.CategoryBuild, "failed to encode sitemap").Build()
			}
			files[sitemapFile] = data
		}
		if e.cfg.Build.Feed {
			data, err := feed(site, e.cfg.Title, e.cfg.BaseURL)
			if err != nil {
				return nil, nil, ferrors.WrapError(err, ferrors.CategoryBuild, "failed to encode feed").Build()
			}
			files[feedFile] = data
		}

	case targetNotFound:
		pc := &render.PageContext{
			Site:      rd.Site(),
			Title:     "Page not found",
			URL:       "/404.html",
			Permalink: e.cfg.BaseURL + "/404.html",
			Params:    map[string]any{},
		}
		html, is, err := rd.ExecuteTemplate(notFoundTemplate, pc, notFoundTemplate)
		if err := add("404.html", html, is, err); err != nil {
			return nil, issues, err
		}
	}
	return files, issues, nil
}

// writeAssets mirrors static files and co-located content assets and
// compiles stylesheets.
func (e *Engine) writeAssets(ctx context.Context, r *Report, full bool, cs changeSet) (commitResult, error) {
	var res commitResult
	if full || cs.static {
		dir := e.cfg.Path(e.cfg.StaticDir)
		files, err := listFiles(dir)
		if err != nil {
			return res, err
		}
		c, err := e.syncCopies(ownerStatic, dir, files, identity)
		if err != nil {
			return res, err
		}
		res.merge(c)
	}
	if full || cs.content {
		c, err := e.syncCopies(ownerAsset, e.cfg.Path(e.cfg.ContentDir), e.assets, identity)
		if err != nil {
			return res, err
		}
		res.merge(c)
	}
	if full || cs.styles {
		css, errs := e.compileStyles(ctx)
		for _, err := range errs {
			r.AddIssue(e.cfg.StylesDir, err)
		}
		for _, name := range sortedKeys(css) {
			c, err := e.outputs.commit(ownerStyle+name, map[string][]byte{name: css[name]})
			if err != nil {
				return res, err
			}
			res.merge(c)
		}
		if len(errs) == 0 {
			for _, owner := range e.outputs.owners(ownerStyle) {
				if _, ok := css[owner[len(ownerStyle):]]; ok {
					continue
				}
				c, err := e.outputs.release(owner)
				if err != nil {
					return res, err
				}
				res.merge(c)
			}
		}
	}
	return res, nil
}
