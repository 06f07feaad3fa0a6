package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

// DefaultFilename is the config file looked up in the project root.
const DefaultFilename = "sitegen.yaml"

// Config represents the site configuration.
type Config struct {
	BaseURL     string `yaml:"base_url"`
	Title       string `yaml:"title"`
	Description string `yaml:"description,omitempty"`
	Language    string `yaml:"language,omitempty"`

	ContentDir   string `yaml:"content_dir"`
	TemplatesDir string `yaml:"templates_dir"`
	IncludesDir  string `yaml:"includes_dir"`
	DataDir      string `yaml:"data_dir"`
	StaticDir    string `yaml:"static_dir"`
	StylesDir    string `yaml:"styles_dir"`
	OutputDir    string `yaml:"output_dir"`
	CacheDir     string `yaml:"cache_dir"`

	IncludeDrafts bool     `yaml:"include_drafts,omitempty"`
	Strict        bool     `yaml:"strict,omitempty"`
	Taxonomies    []string `yaml:"taxonomies"`
	PaginateBy    int      `yaml:"paginate_by,omitempty"`

	Build   BuildConfig    `yaml:"build"`
	Execute ExecuteConfig  `yaml:"execute"`
	Preview PreviewConfig  `yaml:"preview"`
	Styles  StylesConfig   `yaml:"styles,omitempty"`
	Extra   map[string]any `yaml:"extra,omitempty"`

	// Root is the directory relative paths are resolved against (the
	// directory containing the config file).
	Root string `yaml:"-"`
	// File is the path the config was loaded from, empty for defaults.
	File string `yaml:"-"`
}

// BuildConfig tunes the build scheduler.
type BuildConfig struct {
	Workers  int  `yaml:"workers,omitempty"`
	Sitemap  bool `yaml:"sitemap"`
	Feed     bool `yaml:"feed"`
	NotFound bool `yaml:"not_found"`
	// History records build reports in the cache dir's sqlite database.
	History bool `yaml:"history"`
}

// ExecuteConfig configures the code execution engine.
type ExecuteConfig struct {
	NoExec       bool                   `yaml:"no_exec,omitempty"`
	Timeout      time.Duration          `yaml:"timeout"`
	Interpreters map[string]Interpreter `yaml:"interpreters,omitempty"`
	Cache        CacheConfig            `yaml:"cache"`
}

// Interpreter describes an external process that runs code blocks.
type Interpreter struct {
	Command     []string `yaml:"command"`
	VersionArgs []string `yaml:"version_args,omitempty"`
	// Session keeps one interpreter per page; only python supports it.
	Session bool `yaml:"session,omitempty"`
}

// CacheConfig selects and tunes the execution cache backend.
type CacheConfig struct {
	Backend string `yaml:"backend"` // "fs" or "nats"
	// Retention removes entries not read for this long; 0 keeps them forever.
	Retention     time.Duration `yaml:"retention,omitempty"`
	SweepInterval time.Duration `yaml:"sweep_interval,omitempty"`
	NATSURL       string        `yaml:"nats_url,omitempty"`
	NATSBucket    string        `yaml:"nats_bucket,omitempty"`
}

// PreviewConfig configures the live-reload preview server.
type PreviewConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Debounce time.Duration `yaml:"debounce"`
	MaxDelay time.Duration `yaml:"max_delay"`
	Open     bool          `yaml:"open,omitempty"`
}

// StylesConfig configures the external stylesheet compiler. Command entries
// may use {in} and {out} placeholders.
type StylesConfig struct {
	Command []string `yaml:"command,omitempty"`
}

// Load reads configuration from configPath, expanding environment variables
// and applying defaults. A missing file is a config error.
func Load(configPath string) (*Config, error) {
	root := filepath.Dir(configPath)
	LoadEnvFiles(root)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.ConfigError("configuration file not found").
				WithContext("path", configPath).
				Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read config file").
			WithContext("path", configPath).
			Fatal().
			Build()
	}

	cfg, err := Parse([]byte(os.ExpandEnv(string(data))))
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	cfg.Root = abs
	cfg.File = configPath
	return cfg, nil
}

// Parse decodes YAML configuration over the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to unmarshal config").
			Fatal().
			Build()
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	for i, t := range c.Taxonomies {
		c.Taxonomies[i] = strings.TrimSpace(t)
	}
	c.Execute.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Execute.Cache.Backend))
	if c.Execute.Cache.Backend == "" {
		c.Execute.Cache.Backend = CacheBackendFS
	}
}

// Path resolves a project-relative path against Root.
func (c *Config) Path(rel string) string {
	if filepath.IsAbs(rel) || c.Root == "" {
		return rel
	}
	return filepath.Join(c.Root, rel)
}

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return ferrors.ValidationError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).
			Build()
	}

	cfg := Default()
	cfg.Title = "My Site"
	cfg.BaseURL = "https://example.com"
	cfg.Description = "A site built with sitegen"
	cfg.Build.Feed = true

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to write config file").
			WithContext("path", configPath).
			Build()
	}
	return nil
}
