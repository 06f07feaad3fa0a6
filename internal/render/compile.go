package render

import (
	"html/template"
	"slices"

	"git.home.luguber.info/inful/sitegen/internal/depgraph"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

func missingKey(lenient bool) string {
	if lenient {
		return "missingkey=default"
	}
	return "missingkey=error"
}

func notFound(name, referrer string) error {
	b := ferrors.TemplateError(ferrors.CodeTemplateNotFound, "template not found").WithContext("template", name)
	if referrer != "" {
		b = b.WithContext("referenced_by", referrer)
	}
	return b.Build()
}

// compile builds the template set for root: the extends chain from the
// outermost parent down to root, plus every template those files include.
// Children are parsed after their parents so their defines win.
func (r *Renderer) compile(root string, lenient bool) (*template.Template, error) {
	chain, err := r.chain(root)
	if err != nil {
		return nil, err
	}
	base := chain[len(chain)-1]
	t, err := template.New(base.Name).Funcs(r.funcs).Option(missingKey(lenient)).Parse(base.Source)
	if err != nil {
		return nil, parseFailure(base.Name, err)
	}

	parsed := map[string]bool{}
	for _, c := range chain {
		parsed[c.Name] = true
	}
	var calls []string
	for _, c := range chain {
		calls = append(calls, c.Calls...)
	}
	if err := r.parseCalls(t, calls, parsed, root); err != nil {
		return nil, err
	}

	for i := len(chain) - 2; i >= 0; i-- {
		if _, err := t.New(chain[i].Name).Parse(chain[i].Source); err != nil {
			return nil, parseFailure(chain[i].Name, err)
		}
	}
	return t, nil
}

func (r *Renderer) chain(root string) ([]*Template, error) {
	var chain []*Template
	seen := []string{}
	name, referrer := root, ""
	for name != "" {
		if slices.Contains(seen, name) {
			cycle := append(seen[slices.Index(seen, name):], name)
			return nil, ferrors.TemplateError(ferrors.CodeCyclicTemplateGraph, "template inheritance cycle").
				WithContext("cycle", cycle).Fatal().Build()
		}
		t, ok := r.lib.Template(name)
		if !ok {
			return nil, notFound(name, referrer)
		}
		seen = append(seen, name)
		chain = append(chain, t)
		name, referrer = t.Extends, name
	}
	return chain, nil
}

// parseCalls adds included templates, transitively, to t.
func (r *Renderer) parseCalls(t *template.Template, calls []string, parsed map[string]bool, referrer string) error {
	for _, name := range calls {
		if parsed[name] {
			continue
		}
		inc, ok := r.lib.Template(name)
		if !ok {
			return notFound(name, referrer)
		}
		parsed[name] = true
		if _, err := t.New(name).Parse(inc.Source); err != nil {
			return parseFailure(name, err)
		}
		if err := r.parseCalls(t, inc.Calls, parsed, name); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) compileShortcode(sc *Shortcode, lenient bool) (*template.Template, error) {
	name := ShortcodeDir + "/" + sc.Name + ".html"
	t, err := template.New(name).Funcs(r.funcs).Option(missingKey(lenient)).Parse(sc.Source)
	if err != nil {
		return nil, parseFailure(name, err)
	}
	if err := r.parseCalls(t, sc.Calls, map[string]bool{}, name); err != nil {
		return nil, err
	}
	return t, nil
}

func parseFailure(name string, err error) error {
	return ferrors.WrapError(err, ferrors.CategoryTemplate, "template parse failed").
		WithContext("template", name).
		WithContext("entity", depgraph.TemplateID(name)).
		Build()
}
