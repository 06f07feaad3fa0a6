package preview

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/content"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/preview/events"
)

// Watcher publishes a ChangeDetected event for every relevant change below
// the project's source directories and for the config file.
type Watcher struct {
	fs  *fsnotify.Watcher
	bus *events.Bus

	dirs []string
	// files are watched through their parent directory.
	files   map[string]bool
	exclude []string
}

// NewWatcher watches the source directories of cfg. Directories that do
// not exist are skipped.
func NewWatcher(cfg *config.Config, bus *events.Bus) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to create file watcher").Build()
	}
	w := &Watcher{
		fs:    fw,
		bus:   bus,
		files: map[string]bool{},
		exclude: []string{
			absPath(cfg.Path(cfg.OutputDir)),
			absPath(cfg.Path(cfg.CacheDir)),
		},
	}
	for _, rel := range []string{cfg.ContentDir, cfg.TemplatesDir, cfg.IncludesDir, cfg.DataDir, cfg.StaticDir, cfg.StylesDir} {
		dir := absPath(cfg.Path(rel))
		if st, err := os.Stat(dir); err != nil || !st.IsDir() {
			continue
		}
		w.dirs = append(w.dirs, dir)
		w.addRecursive(dir)
	}
	if cfg.File != "" {
		file := absPath(cfg.File)
		w.files[file] = true
		if err := fw.Add(filepath.Dir(file)); err != nil {
			slog.Warn("Failed to watch config directory", logfields.Path(filepath.Dir(file)), logfields.Error(err))
		}
	}
	return w, nil
}

func absPath(p string) string {
	if a, err := filepath.Abs(p); err == nil {
		return a
	}
	return filepath.Clean(p)
}

func (w *Watcher) addRecursive(root string) {
	_ = filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && (content.IsIgnoredName(d.Name()) || w.excluded(p)) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(p); err != nil {
			slog.Warn("Failed to watch directory", logfields.Path(p), logfields.Error(err))
		}
		return nil
	})
}

func (w *Watcher) excluded(p string) bool {
	for _, ex := range w.exclude {
		if p == ex || strings.HasPrefix(p, ex+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// relevant reports whether an event on p should trigger a build.
func (w *Watcher) relevant(p string) bool {
	if w.files[p] {
		return true
	}
	if shouldIgnore(p) || w.excluded(p) {
		return false
	}
	for _, dir := range w.dirs {
		if p == dir || strings.HasPrefix(p, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Run forwards filesystem events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.fs.Close() }()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			slog.Warn("File watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	p := absPath(ev.Name)
	if !w.relevant(p) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if st, err := os.Stat(p); err == nil && st.IsDir() {
			w.addRecursive(p)
		}
	}
	if ev.Op == fsnotify.Chmod {
		return
	}
	slog.Debug("File change detected", logfields.Path(p), slog.String("op", ev.Op.String()))
	if err := w.bus.Publish(ctx, events.ChangeDetected{Paths: []string{p}, DetectedAt: time.Now()}); err != nil {
		slog.Debug("Dropped change event", logfields.Error(err))
	}
}

// shouldIgnore drops editor temporaries and OS metadata files.
func shouldIgnore(p string) bool {
	base := filepath.Base(p)
	if content.IsIgnoredName(base) {
		return true
	}
	switch {
	case strings.HasSuffix(base, ".swx"),
		strings.HasPrefix(base, ".#"),
		base == "4913",
		base == "Thumbs.db":
		return true
	}
	return false
}
