package build

import (
	"context"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/content"
	"git.home.luguber.info/inful/sitegen/internal/depgraph"
	"git.home.luguber.info/inful/sitegen/internal/eventstore"
	"git.home.luguber.info/inful/sitegen/internal/execute"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/markdown"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
	"git.home.luguber.info/inful/sitegen/internal/preview/events"
	"git.home.luguber.info/inful/sitegen/internal/render"
	"git.home.luguber.info/inful/sitegen/internal/storage"
)

// ExecCacheDir is the execution cache directory inside cache_dir for the
// fs backend.
const ExecCacheDir = "exec"

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder injects a metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithLogger sets the logger used for build progress.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithHistory sets the build history store. The engine does not close it.
func WithHistory(h eventstore.Store) Option {
	return func(e *Engine) {
		e.history = h
		e.historySet = true
	}
}

// WithObjectStore replaces the configured execution cache backend.
func WithObjectStore(s storage.ObjectStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// Engine runs full and incremental builds of one project. It owns the
// execution cache and the dependency graph; create one per invocation.
type Engine struct {
	cfg      *config.Config
	logger   *slog.Logger
	recorder metrics.Recorder
	workers  int

	store      storage.ObjectStore
	ownStore   bool
	history    eventstore.Store
	historySet bool
	ownHistory bool

	exec  *execute.Engine
	conv  *markdown.Converter
	bus   *events.Bus
	state *stateMachine

	// mu serializes builds; everything below is only touched while held.
	mu       sync.Mutex
	built    bool
	files    map[string]*content.File
	assets   []string
	lib      *render.Library
	includes map[string]string
	data     map[string]any
	graph    *depgraph.Graph
	outputs  *outputs
	// bodies keeps rendered page and section bodies for listings built
	// while the page itself is not re-rendered.
	bodies map[string]renderedBody
	// rendered holds every renderable entity id that has been rendered.
	rendered map[string]bool
	// failed entities are retried by the next build.
	failed map[string]bool

	snapshot struct {
		sync.RWMutex
		site *content.Site
	}
}

type renderedBody struct {
	content, summary string
}

// NewEngine creates a build engine for cfg. The execution cache backend is
// selected by execute.cache.backend unless WithObjectStore is given.
func NewEngine(cfg *config.Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:      cfg,
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
		conv:     markdown.New(markdown.Options{}),
		bus:      events.NewBus(),
		state:    newStateMachine(),
		files:    make(map[string]*content.File),
		lib:      render.NewLibrary(),
		includes: map[string]string{},
		data:     map[string]any{},
		graph:    depgraph.New(),
		outputs:  newOutputs(cfg.Path(cfg.OutputDir)),
		bodies:   make(map[string]renderedBody),
		rendered: make(map[string]bool),
		failed:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.workers = cfg.Build.Workers
	if e.workers <= 0 {
		e.workers = runtime.GOMAXPROCS(0)
	}

	if e.store == nil {
		store, err := openStore(cfg)
		if err != nil {
			return nil, err
		}
		e.store, e.ownStore = store, true
	}

	if !e.historySet && cfg.Build.History {
		h, err := eventstore.Open(cfg.Path(cfg.CacheDir))
		if err != nil {
			e.logger.Warn("Build history disabled", logfields.Error(err))
		} else {
			e.history, e.ownHistory = h, true
		}
	}

	interps := make(map[string]execute.Interpreter, len(cfg.Execute.Interpreters))
	for lang, in := range cfg.Execute.Interpreters {
		interps[lang] = execute.Interpreter{
			Name:        lang,
			Command:     in.Command,
			VersionArgs: in.VersionArgs,
			Session:     in.Session,
		}
	}
	e.exec = execute.New(execute.EngineOptions{
		Root:         cfg.Path(cfg.ContentDir),
		Timeout:      cfg.Execute.Timeout,
		NoExec:       cfg.Execute.NoExec,
		Interpreters: interps,
		Cache:        execute.NewCache(e.store),
	})
	return e, nil
}

func openStore(cfg *config.Config) (storage.ObjectStore, error) {
	switch cfg.Execute.Cache.Backend {
	case config.CacheBackendNATS:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return storage.NewNATSStore(ctx, storage.NATSOptions{
			URL:    cfg.Execute.Cache.NATSURL,
			Bucket: cfg.Execute.Cache.NATSBucket,
			TTL:    cfg.Execute.Cache.Retention,
		})
	default:
		store, err := storage.NewFSStore(filepath.Join(cfg.Path(cfg.CacheDir), ExecCacheDir))
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryCache, "failed to open execution cache").
				WithContext("path", cfg.CacheDir).
				Build()
		}
		return store, nil
	}
}

// Config returns the engine's configuration.
func (e *Engine) Config() *config.Config { return e.cfg }

// Store returns the execution cache backend.
func (e *Engine) Store() storage.ObjectStore { return e.store }

// ExecStats returns the cumulative execution counters.
func (e *Engine) ExecStats() execute.Stats { return e.exec.Stats() }

// State returns the current build phase.
func (e *Engine) State() State { return e.state.get() }

// SetWatching marks the engine as driven by a watcher: between builds it
// rests in Watching instead of Idle.
func (e *Engine) SetWatching(on bool) { e.state.setWatching(on) }

// Graph returns the dependency graph.
func (e *Engine) Graph() *depgraph.Graph { return e.graph }

// Site returns the content model of the last build.
func (e *Engine) Site() *content.Site {
	e.snapshot.RLock()
	defer e.snapshot.RUnlock()
	return e.snapshot.site
}

// Outputs returns every output file the engine has produced, sorted.
func (e *Engine) Outputs() []Output { return e.outputs.list() }

// OutputsOf returns the output paths owned by an entity.
func (e *Engine) OutputsOf(entityID string) []string { return e.outputs.owned(entityID) }

// Subscribe returns a channel receiving one event per completed build and
// a function that cancels the subscription.
func (e *Engine) Subscribe() (<-chan events.OutputsChanged, func()) {
	return events.Subscribe[events.OutputsChanged](e.bus, 16)
}

// History returns the build history store, nil when disabled.
func (e *Engine) History() eventstore.Store { return e.history }

// Close releases the cache backend, the history and all subscriptions.
func (e *Engine) Close() error {
	e.bus.Close()
	var first error
	if e.ownHistory && e.history != nil {
		first = e.history.Close()
	}
	if e.ownStore && e.store != nil {
		if err := e.store.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// RunFullBuild builds the whole project.
func (e *Engine) RunFullBuild(ctx context.Context) (*Report, error) {
	if !e.mu.TryLock() {
		return nil, ErrBuildInProgress
	}
	defer e.mu.Unlock()
	return e.run(ctx, KindFull, changeSet{})
}

// RunIncrementalBuild rebuilds what the changed paths affect. Paths may be
// absolute or relative to the project root. A config change, or an engine
// that has not built yet, falls back to a full build.
func (e *Engine) RunIncrementalBuild(ctx context.Context, changed []string) (*Report, error) {
	if !e.mu.TryLock() {
		return nil, ErrBuildInProgress
	}
	defer e.mu.Unlock()
	cs := e.classify(changed)
	if cs.full || !e.built {
		return e.run(ctx, KindFull, changeSet{})
	}
	return e.run(ctx, KindIncremental, cs)
}
