package content

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

// Inventory lists the files found under a content directory.
type Inventory struct {
	// Content holds slash-separated paths of content files.
	Content []string
	// Assets holds every other regular file (images, downloads, ...).
	Assets []string
}

// Scan walks root and classifies its files. Hidden files and directories
// are skipped. An unreadable root is a fatal error.
func Scan(root string) (Inventory, error) {
	var inv Inventory
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		if err == nil {
			err = fs.ErrInvalid
		}
		return inv, ferrors.WrapError(err, ferrors.CategoryFileSystem, "content directory is not readable").
			WithContext("path", root).
			Fatal().
			Build()
	}

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		name := d.Name()
		if p != root && IsIgnoredName(name) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if IsContentPath(rel) {
			inv.Content = append(inv.Content, rel)
		} else {
			inv.Assets = append(inv.Assets, rel)
		}
		return nil
	})
	if err != nil {
		return inv, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to scan content directory").
			WithContext("path", root).
			Fatal().
			Build()
	}
	sort.Strings(inv.Content)
	sort.Strings(inv.Assets)
	return inv, nil
}

// IsIgnoredName reports names skipped while scanning: dotfiles and editor
// temporaries.
func IsIgnoredName(name string) bool {
	return strings.HasPrefix(name, ".") ||
		strings.HasSuffix(name, "~") ||
		strings.HasSuffix(name, ".swp") ||
		strings.HasSuffix(name, ".tmp") ||
		strings.HasPrefix(name, "#")
}

// ReadAndParse reads one content file relative to root and parses it.
func ReadAndParse(root, rel string, opts ParseOptions) (*File, error) {
	raw, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to read content file").
			WithContext("path", rel).
			Build()
	}
	return Parse(rel, raw, opts)
}

// LoadOptions combines the parse and assemble settings used by Load.
type LoadOptions struct {
	ParseOptions
	AssembleOptions
}

// Load scans root, parses every content file and assembles the site. Files
// that fail to parse are left out and returned as issues together with the
// assembly issues; only an unreadable root is returned as an error.
func Load(root string, opts LoadOptions) (*Site, []error, error) {
	inv, err := Scan(root)
	if err != nil {
		return nil, nil, err
	}
	var issues []error
	files := make(map[string]*File, len(inv.Content))
	for _, rel := range inv.Content {
		f, err := ReadAndParse(root, rel, opts.ParseOptions)
		if err != nil {
			issues = append(issues, err)
			continue
		}
		files[rel] = f
	}
	site, assembleIssues := Assemble(files, opts.AssembleOptions)
	return site, append(issues, assembleIssues...), nil
}
