package preview

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/sitegen/internal/build"
	"git.home.luguber.info/inful/sitegen/internal/config"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
	"git.home.luguber.info/inful/sitegen/internal/preview/events"
	"git.home.luguber.info/inful/sitegen/internal/storage"
)

const shutdownTimeout = 5 * time.Second

// Options tunes a preview session.
type Options struct {
	// Override is applied after every configuration (re)load so command
	// line flags survive an edit of the config file.
	Override func(*config.Config)
	// Open launches the system browser once the server listens.
	Open bool
	// Ready is called with the listen address once the server accepts
	// connections.
	Ready func(addr string)
}

// session is the state shared between the build loop and the HTTP side.
type session struct {
	opts     Options
	bus      *events.Bus
	hub      *LiveReloadHub
	status   *Status
	recorder metrics.Recorder
	building atomic.Bool

	mu          sync.RWMutex
	cfg         *config.Config
	engine      *build.Engine
	stopForward func()
}

// Run performs an initial full build, serves the output directory with
// live reload and rebuilds incrementally on every debounced batch of source
// changes until ctx is canceled. A failed build keeps the server running;
// the failure is shown in the browser and cleared by the next good build.
func Run(ctx context.Context, cfg *config.Config, opts Options) error {
	if opts.Override != nil {
		opts.Override(cfg)
	}
	reg := prometheus.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)
	s := &session{
		opts:     opts,
		bus:      events.NewBus(),
		hub:      NewLiveReloadHub(rec),
		status:   &Status{},
		recorder: rec,
	}
	defer s.bus.Close()

	engine, err := s.newEngine(cfg)
	if err != nil {
		return err
	}
	s.setEngine(cfg, engine)
	defer s.closeEngine()

	s.building.Store(true)
	s.record(engine.RunFullBuild(ctx))
	s.building.Store(false)

	srv, serveErr, err := s.startHTTPServer(cfg, reg)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup

	if err := s.startWatching(runCtx, &wg, cfg); err != nil {
		cancel()
		s.shutdownHTTP(srv)
		return err
	}

	if sweeper := s.startSweeper(cfg); sweeper != nil {
		defer func() { _ = sweeper.Stop() }()
	}

	buildReq, unsubscribe := events.Subscribe[events.BuildNow](s.bus, 4)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Shutting down preview server")
			s.shutdownHTTP(srv)
			cancel()
			wg.Wait()
			return nil
		case err := <-serveErr:
			cancel()
			wg.Wait()
			return ferrors.WrapError(err, ferrors.CategoryRuntime, "preview server failed").Build()
		case evt, ok := <-buildReq:
			if !ok {
				return nil
			}
			s.rebuild(runCtx, evt)
		}
	}
}

func (s *session) newEngine(cfg *config.Config) (*build.Engine, error) {
	engine, err := build.NewEngine(cfg,
		build.WithRecorder(s.recorder),
		build.WithLogger(slog.Default()))
	if err != nil {
		return nil, err
	}
	engine.SetWatching(true)
	return engine, nil
}

// setEngine installs engine as the current one and forwards its output
// notifications to the live-reload hub.
func (s *session) setEngine(cfg *config.Config, engine *build.Engine) {
	changes, unsubscribe := engine.Subscribe()
	go func() {
		for evt := range changes {
			s.hub.Notify(evt)
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.engine = engine
	s.stopForward = unsubscribe
}

func (s *session) closeEngine() {
	s.mu.Lock()
	engine, stop := s.engine, s.stopForward
	s.engine, s.stopForward = nil, nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	if engine != nil {
		if err := engine.Close(); err != nil {
			slog.Warn("Failed to close build engine", logfields.Error(err))
		}
	}
}

func (s *session) current() (*config.Config, *build.Engine) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg, s.engine
}

func (s *session) state() build.State {
	_, engine := s.current()
	if engine == nil {
		return build.StateIdle
	}
	return engine.State()
}

func (s *session) store() storage.ObjectStore {
	_, engine := s.current()
	if engine == nil {
		return nil
	}
	return engine.Store()
}

// record publishes a build result to the status page. Failures that never
// produced a report (the engine refused to start) are pushed to the browser
// directly since no OutputsChanged event follows them.
func (s *session) record(r *build.Report, err error) {
	s.status.Update(r, err)
	if r == nil && err != nil {
		slog.Error("Build failed", logfields.Error(err))
		s.hub.Broadcast(Message{Error: err.Error()})
	}
}

func (s *session) startHTTPServer(cfg *config.Config, reg *prometheus.Registry) (*http.Server, <-chan error, error) {
	ln, err := Listen(cfg.Preview.Host, cfg.Preview.Port, PortAttempts)
	if err != nil {
		return nil, nil, err
	}

	handler := NewHandler(cfg.Path(cfg.OutputDir), s.hub, s.status, s.state, metrics.HTTPHandler(reg))
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	addr := ln.Addr().String()
	url := "http://" + addr + "/"
	slog.Info("Preview server listening", logfields.URL(url))
	if s.opts.Ready != nil {
		s.opts.Ready(addr)
	}
	if s.opts.Open || cfg.Preview.Open {
		if err := openBrowser(url); err != nil {
			slog.Warn("Failed to open browser", logfields.Error(err))
		}
	}
	return srv, serveErr, nil
}

// shutdownHTTP closes live-reload streams first; they never go idle on
// their own and would hold http.Server.Shutdown until its deadline.
func (s *session) shutdownHTTP(srv *http.Server) {
	s.hub.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("Preview server shutdown", logfields.Error(err))
	}
}

func (s *session) startWatching(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config) error {
	watcher, err := NewWatcher(cfg, s.bus)
	if err != nil {
		return err
	}

	quiet, maxDelay := cfg.Preview.Debounce, cfg.Preview.MaxDelay
	if quiet <= 0 {
		quiet = config.DefaultDebounce
	}
	if maxDelay < quiet {
		maxDelay = max(quiet, config.DefaultMaxDelay)
	}
	debouncer, err := NewBuildDebouncer(s.bus, BuildDebouncerConfig{
		QuietWindow:       quiet,
		MaxDelay:          maxDelay,
		CheckBuildRunning: s.building.Load,
	})
	if err != nil {
		return err
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := watcher.Run(ctx); err != nil {
			slog.Warn("File watcher stopped", logfields.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		_ = debouncer.Run(ctx)
	}()

	select {
	case <-debouncer.Ready():
	case <-ctx.Done():
	}
	return nil
}

func (s *session) startSweeper(cfg *config.Config) *CacheSweeper {
	cacheCfg := cfg.Execute.Cache
	if cacheCfg.Retention <= 0 {
		return nil
	}
	interval := cacheCfg.SweepInterval
	if interval <= 0 {
		interval = config.DefaultSweepInterval
	}
	sweeper, err := NewCacheSweeper(cacheCfg.Retention, interval, s.store)
	if err != nil {
		slog.Warn("Execution cache sweeping disabled", logfields.Error(err))
		return nil
	}
	sweeper.Start()
	return sweeper
}

// rebuild runs one build for a debounced batch. An edit of the config file
// reloads it and replaces the engine before building everything.
func (s *session) rebuild(ctx context.Context, evt events.BuildNow) {
	s.building.Store(true)
	defer s.building.Store(false)

	slog.Info("Change detected; rebuilding site",
		logfields.Count(len(evt.Paths)),
		slog.String("cause", evt.DebounceCause))

	cfg, engine := s.current()
	if touchesConfig(cfg, evt.Paths) {
		reloaded, err := s.reload(cfg)
		if err != nil {
			slog.Error("Configuration reload failed", logfields.Error(err))
			s.status.Update(nil, err)
			s.hub.Broadcast(Message{Error: err.Error()})
			return
		}
		s.record(reloaded.RunFullBuild(ctx))
		return
	}
	s.record(engine.RunIncrementalBuild(ctx, evt.Paths))
}

func touchesConfig(cfg *config.Config, paths []string) bool {
	if cfg.File == "" {
		return false
	}
	file := absPath(cfg.File)
	for _, p := range paths {
		if filepath.Clean(p) == file {
			return true
		}
	}
	return false
}

// reload re-reads the config file and swaps in a fresh engine. The old
// engine stays in place when the new configuration is invalid.
func (s *session) reload(old *config.Config) (*build.Engine, error) {
	cfg, err := config.Load(old.File)
	if err != nil {
		return nil, err
	}
	if s.opts.Override != nil {
		s.opts.Override(cfg)
	}
	engine, err := s.newEngine(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Path(cfg.OutputDir) != old.Path(old.OutputDir) {
		slog.Warn("output_dir changed; restart preview to serve the new location",
			logfields.Path(cfg.Path(cfg.OutputDir)))
	}
	s.closeEngine()
	s.setEngine(cfg, engine)
	slog.Info("Configuration reloaded", logfields.Path(cfg.File))
	return engine, nil
}
