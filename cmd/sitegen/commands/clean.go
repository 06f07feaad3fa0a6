package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/sitegen/internal/config"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

// CleanCmd removes generated files.
type CleanCmd struct {
	Cache bool `name:"cache" help:"Also remove the cache directory (execution cache and build history)"`
}

func (c *CleanCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	dirs := []string{cfg.OutputDir}
	if c.Cache {
		dirs = append(dirs, cfg.CacheDir)
	}
	for _, rel := range dirs {
		dir, err := removable(cfg, rel)
		if err != nil {
			return err
		}
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return ferrors.FileSystemError("failed to remove directory").
				WithCause(err).
				WithContext("path", dir).
				Build()
		}
		_, _ = fmt.Fprintf(g.out(), "Removed %s\n", dir)
	}
	return nil
}

// removable resolves rel and refuses paths that would take the project
// or one of its source directories with them.
func removable(cfg *config.Config, rel string) (string, error) {
	dir, err := filepath.Abs(cfg.Path(rel))
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to resolve path").Build()
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		root = cfg.Root
	}
	protected := []string{root}
	for _, src := range []string{cfg.ContentDir, cfg.TemplatesDir, cfg.IncludesDir, cfg.DataDir, cfg.StaticDir, cfg.StylesDir} {
		if p, err := filepath.Abs(cfg.Path(src)); err == nil {
			protected = append(protected, p)
		}
	}
	for _, p := range protected {
		if isWithin(p, dir) {
			return "", ferrors.ValidationError("refusing to remove a directory that contains project sources").
				WithContext("path", dir).
				Build()
		}
	}
	return dir, nil
}

// isWithin reports whether child is dir or below it.
func isWithin(child, dir string) bool {
	rel, err := filepath.Rel(dir, child)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
