package config

import "time"

const (
	CacheBackendFS   = "fs"
	CacheBackendNATS = "nats"
)

const (
	DefaultPort           = 1111
	DefaultDebounce       = 300 * time.Millisecond
	DefaultMaxDelay       = 2 * time.Second
	DefaultExecTimeout    = 30 * time.Second
	DefaultSweepInterval  = time.Hour
	DefaultNATSBucket     = "sitegen-exec-cache"
	DefaultTaxonomy       = "tags"
	DefaultOutputDir      = "public"
	DefaultCacheDir       = ".sitegen/cache"
	DefaultPreviewAddress = "127.0.0.1"
)

// Default returns a configuration populated with default values.
func Default() *Config {
	return &Config{
		Title:        "Untitled",
		Language:     "en",
		ContentDir:   "content",
		TemplatesDir: "templates",
		IncludesDir:  "includes",
		DataDir:      "data",
		StaticDir:    "static",
		StylesDir:    "styles",
		OutputDir:    DefaultOutputDir,
		CacheDir:     DefaultCacheDir,
		Taxonomies:   []string{DefaultTaxonomy},
		Build: BuildConfig{
			Sitemap:  true,
			NotFound: true,
			History:  true,
		},
		Execute: ExecuteConfig{
			Timeout: DefaultExecTimeout,
			Cache: CacheConfig{
				Backend:       CacheBackendFS,
				SweepInterval: DefaultSweepInterval,
				NATSBucket:    DefaultNATSBucket,
			},
		},
		Preview: PreviewConfig{
			Host:     DefaultPreviewAddress,
			Port:     DefaultPort,
			Debounce: DefaultDebounce,
			MaxDelay: DefaultMaxDelay,
		},
	}
}
