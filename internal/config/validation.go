package config

import (
	"net/url"
	"path/filepath"
	"regexp"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

var taxonomyName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || (u.Scheme != "" && u.Host == "") {
			return invalid("base_url is not a valid URL", "base_url", c.BaseURL)
		}
	}
	if c.ContentDir == "" || c.TemplatesDir == "" || c.OutputDir == "" || c.CacheDir == "" {
		return invalid("content_dir, templates_dir, output_dir and cache_dir are required", "", nil)
	}
	if filepath.Clean(c.OutputDir) == filepath.Clean(c.ContentDir) {
		return invalid("output_dir must differ from content_dir", "output_dir", c.OutputDir)
	}
	if c.PaginateBy < 0 {
		return invalid("paginate_by must not be negative", "paginate_by", c.PaginateBy)
	}
	if c.Build.Workers < 0 {
		return invalid("build.workers must not be negative", "build.workers", c.Build.Workers)
	}

	seen := make(map[string]bool, len(c.Taxonomies))
	for _, t := range c.Taxonomies {
		if !taxonomyName.MatchString(t) {
			return invalid("taxonomy names must be lowercase identifiers", "taxonomies", t)
		}
		if seen[t] {
			return invalid("duplicate taxonomy", "taxonomies", t)
		}
		seen[t] = true
	}

	if c.Execute.Timeout <= 0 {
		return invalid("execute.timeout must be positive", "execute.timeout", c.Execute.Timeout.String())
	}
	for lang, interp := range c.Execute.Interpreters {
		if len(interp.Command) == 0 {
			return invalid("interpreter command must not be empty", "execute.interpreters", lang)
		}
	}
	switch c.Execute.Cache.Backend {
	case CacheBackendFS:
	case CacheBackendNATS:
		if c.Execute.Cache.NATSURL == "" {
			return invalid("execute.cache.nats_url is required for the nats backend", "execute.cache.nats_url", "")
		}
	default:
		return invalid("unknown execute.cache.backend", "execute.cache.backend", c.Execute.Cache.Backend)
	}
	if c.Execute.Cache.Retention < 0 {
		return invalid("execute.cache.retention must not be negative", "execute.cache.retention", c.Execute.Cache.Retention.String())
	}

	if c.Preview.Port < 0 || c.Preview.Port > 65535 {
		return invalid("preview.port out of range", "preview.port", c.Preview.Port)
	}
	if c.Preview.Debounce < 0 || c.Preview.MaxDelay < 0 {
		return invalid("preview debounce settings must not be negative", "preview", nil)
	}
	return nil
}

func invalid(msg, field string, value any) error {
	b := ferrors.ConfigError(msg)
	if field != "" {
		b = b.WithContext("field", field).WithContext("value", value)
	}
	return b.Build()
}
