package render

import (
	"fmt"
	"html/template"
	"reflect"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"git.home.luguber.info/inful/sitegen/internal/content"
)

func (r *Renderer) funcMap() template.FuncMap {
	tag, err := language.Parse(r.site.Language)
	if err != nil {
		tag = language.Und
	}
	titler := cases.Title(tag)

	return template.FuncMap{
		"urlFor": func(target string) string {
			if u, ok := r.resolve(target); ok {
				return u
			}
			return "/" + strings.TrimPrefix(target, "/")
		},
		"absURL": func(u string) string {
			if strings.Contains(u, "://") {
				return u
			}
			return r.site.BaseURL + "/" + strings.TrimPrefix(u, "/")
		},
		"data": func(name string) (any, error) {
			v, ok := r.data[name]
			if !ok {
				return nil, fmt.Errorf("no data file named %q", name)
			}
			return v, nil
		},
		"markdown": func(s string) (template.HTML, error) {
			res, err := r.conv.Convert([]byte(s), r.resolve)
			if err != nil {
				return "", err
			}
			// #nosec G203 - Markdown output is trusted site content
			return template.HTML(res.HTML), nil
		},
		"safeHTML": func(s string) template.HTML {
			// #nosec G203 - explicit opt-in by the template author
			return template.HTML(s)
		},
		"slugify": content.Slugify,
		"title":   titler.String,
		"upper":   strings.ToUpper,
		"lower":   strings.ToLower,
		"dateFormat": func(layout string, v any) (string, error) {
			switch t := v.(type) {
			case time.Time:
				if t.IsZero() {
					return "", nil
				}
				return t.Format(layout), nil
			case string:
				parsed, err := time.Parse(time.RFC3339, t)
				if err != nil {
					parsed, err = time.Parse("2006-01-02", t)
				}
				if err != nil {
					return "", fmt.Errorf("dateFormat: %w", err)
				}
				return parsed.Format(layout), nil
			case nil:
				return "", nil
			}
			return "", fmt.Errorf("dateFormat: unsupported type %T", v)
		},
		"join": func(sep string, items any) (string, error) {
			switch list := items.(type) {
			case []string:
				return strings.Join(list, sep), nil
			case nil:
				return "", nil
			}
			rv := reflect.ValueOf(items)
			if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
				return "", fmt.Errorf("join: unsupported type %T", items)
			}
			parts := make([]string, rv.Len())
			for i := range parts {
				parts[i] = fmt.Sprint(rv.Index(i).Interface())
			}
			return strings.Join(parts, sep), nil
		},
		"default": func(def, v any) any {
			if isEmpty(v) {
				return def
			}
			return v
		},
	}
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return rv.IsZero()
}
