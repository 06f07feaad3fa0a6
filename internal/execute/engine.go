package execute

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/storage"
)

// DefaultTimeout bounds a single block.
const DefaultTimeout = 30 * time.Second

// EngineOptions configures an Engine.
type EngineOptions struct {
	// Root is the content directory; blocks run in their page's directory.
	Root    string
	Timeout time.Duration
	// NoExec renders sources without running anything.
	NoExec bool
	// Interpreters override or extend DefaultInterpreters by language tag.
	Interpreters map[string]Interpreter
	// Cache defaults to an in-memory store.
	Cache *Cache
}

// Stats are cumulative engine counters.
type Stats struct {
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Executions int64 `json:"executions"`
	Failures   int64 `json:"failures"`
}

// Sub returns the counters accumulated since prev.
func (s Stats) Sub(prev Stats) Stats {
	return Stats{
		Hits:       s.Hits - prev.Hits,
		Misses:     s.Misses - prev.Misses,
		Executions: s.Executions - prev.Executions,
		Failures:   s.Failures - prev.Failures,
	}
}

// Engine executes blocks with caching. It is safe for concurrent use across
// pages.
type Engine struct {
	root         string
	timeout      time.Duration
	noExec       bool
	interpreters map[string]Interpreter
	cache        *Cache
	hasher       Hasher
	versions     versionCache

	hits, misses, executions, failures atomic.Int64
}

// New creates an Engine.
func New(opts EngineOptions) *Engine {
	interps := DefaultInterpreters()
	for lang, in := range opts.Interpreters {
		if in.Name == "" {
			in.Name = lang
		}
		interps[lang] = in
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Cache == nil {
		opts.Cache = NewCache(storage.NewMemoryStore())
	}
	return &Engine{
		root:         opts.Root,
		timeout:      opts.Timeout,
		noExec:       opts.NoExec,
		interpreters: interps,
		cache:        opts.Cache,
	}
}

// Supports reports whether lang has an interpreter.
func (e *Engine) Supports(lang string) bool {
	_, ok := e.interpreters[lang]
	return ok
}

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Hits:       e.hits.Load(),
		Misses:     e.misses.Load(),
		Executions: e.executions.Load(),
		Failures:   e.failures.Load(),
	}
}

// Cache returns the result cache.
func (e *Engine) Cache() *Cache {
	return e.cache
}

// ExecutePage runs the executable blocks of one page and returns one result
// per block, in order. Session languages share one interpreter per page;
// everything else runs one process per block.
func (e *Engine) ExecutePage(ctx context.Context, page string, blocks []Block) []Result {
	results := make([]Result, len(blocks))
	dir := filepath.Join(e.root, filepath.FromSlash(path.Dir(page)))

	sessions := make(map[string][]int)
	var order []string
	for i, b := range blocks {
		results[i].Block = b
		src, err := e.loadSource(dir, b)
		if err != nil {
			results[i].Err = e.failure(b, "cannot read block source", err)
			continue
		}
		results[i].Block.Source = src

		in, ok := e.interpreters[b.Language]
		switch {
		case !ok:
			results[i].Err = e.failure(b, "no interpreter for language "+b.Language, nil)
		case e.noExec:
			results[i].Skipped = true
		case in.Session:
			if _, seen := sessions[b.Language]; !seen {
				order = append(order, b.Language)
			}
			sessions[b.Language] = append(sessions[b.Language], i)
		default:
			results[i] = e.runSingle(ctx, dir, in, results[i].Block)
		}
	}
	for _, lang := range order {
		e.runSessionBlocks(ctx, dir, e.interpreters[lang], sessions[lang], results)
	}
	return results
}

func (e *Engine) loadSource(dir string, b Block) (string, error) {
	if b.Options.File == "" {
		return b.Source, nil
	}
	p := filepath.Join(dir, filepath.FromSlash(b.Options.File))
	// #nosec G304 - file= paths are authored alongside the page
	data, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (e *Engine) key(ctx context.Context, in Interpreter, b Block, prefix []string) string {
	return e.hasher.Key(HashInput{
		Language:           b.Language,
		Interpreter:        strings.Join(in.Command, " "),
		InterpreterVersion: e.versions.get(ctx, in),
		Options:            b.Options,
		Source:             b.Source,
		SessionPrefix:      prefix,
	})
}

func (e *Engine) lookup(ctx context.Context, b Block, key string) (Result, bool) {
	r, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("Execution cache read failed", logfields.CacheKey(key), logfields.Error(err))
		return Result{}, false
	}
	if !ok {
		return Result{}, false
	}
	e.hits.Add(1)
	r.Block = b
	return e.finish(r), true
}

func (e *Engine) store(ctx context.Context, r Result) {
	if r.TimedOut || r.Key == "" {
		return
	}
	if err := e.cache.Put(ctx, r); err != nil {
		slog.Warn("Execution cache write failed", logfields.CacheKey(r.Key), logfields.Error(err))
	}
}

func (e *Engine) runSingle(ctx context.Context, dir string, in Interpreter, b Block) Result {
	key := e.key(ctx, in, b, nil)
	if r, ok := e.lookup(ctx, b, key); ok {
		return r
	}
	e.misses.Add(1)
	e.executions.Add(1)

	slog.Debug("Executing block", logfields.Page(b.Page), logfields.Language(b.Language), logfields.CacheKey(key))
	res, err := runProcess(ctx, in.Command, dir, strings.NewReader(b.Source), e.timeout)
	if res == nil {
		e.failures.Add(1)
		return Result{Block: b, Key: key, Err: e.failure(b, "interpreter failed to run", err)}
	}

	r := Result{
		Block:    b,
		Key:      key,
		Stderr:   string(res.Stderr),
		ExitCode: res.ExitCode,
		Duration: res.Duration,
		TimedOut: res.TimedOut,
	}
	r.Stdout, r.Artifacts = splitRich(string(res.Stdout))
	if err != nil {
		e.failures.Add(1)
		r.Err = e.failure(b, "execution interrupted", err)
		return r
	}
	e.store(ctx, r)
	return e.finish(r)
}

func (e *Engine) runSessionBlocks(ctx context.Context, dir string, in Interpreter, idx []int, results []Result) {
	keys := make([]string, len(idx))
	sources := make([]string, len(idx))
	missed := false
	for n, i := range idx {
		b := results[i].Block
		sources[n] = b.Source
		keys[n] = e.key(ctx, in, b, sources[:n])
		if r, ok := e.lookup(ctx, b, keys[n]); ok {
			results[i] = r
			continue
		}
		missed = true
	}
	if !missed {
		return
	}

	page := results[idx[0]].Block.Page
	slog.Debug("Replaying session", logfields.Page(page), logfields.Language(in.Name), logfields.Count(len(idx)))
	e.executions.Add(1)
	outcome, err := runSession(ctx, in, dir, sources, e.timeout*time.Duration(len(idx)))

	for n, i := range idx {
		if results[i].Cached {
			continue
		}
		e.misses.Add(1)
		b := results[i].Block
		r := Result{Block: b, Key: keys[n]}

		if outcome == nil || n >= len(outcome.Blocks) {
			e.failures.Add(1)
			switch {
			case outcome != nil && outcome.TimedOut:
				r.TimedOut = true
				r.Err = e.failure(b, fmt.Sprintf("session timed out after %s", e.timeout*time.Duration(len(idx))), nil)
			case err != nil:
				r.Err = e.failure(b, "session interrupted", err)
			default:
				if outcome != nil {
					r.Stderr = outcome.Stderr
				}
				r.ExitCode = -1
				r.Err = e.failure(b, "interpreter exited before the block ran", nil)
			}
			results[i] = r
			continue
		}

		line := outcome.Blocks[n]
		r.Stdout, r.Artifacts = splitRich(line.Stdout)
		r.Stderr = line.Stderr
		r.ExitCode = line.ExitCode
		r.Duration = time.Duration(line.DurationMS) * time.Millisecond
		e.store(ctx, r)
		results[i] = e.finish(r)
	}
}

// finish attaches the classified failure for non-zero exits and timeouts.
func (e *Engine) finish(r Result) Result {
	switch {
	case r.TimedOut:
		r.Err = e.failure(r.Block, fmt.Sprintf("timed out after %s", e.timeout), nil)
	case r.ExitCode != 0:
		r.Err = e.failure(r.Block, fmt.Sprintf("exited with status %d", r.ExitCode), nil)
	}
	if r.Err != nil && !r.Cached {
		e.failures.Add(1)
	}
	return r
}

func (e *Engine) failure(b Block, msg string, cause error) error {
	builder := ferrors.ExecutionError(fmt.Sprintf("%s block %d: %s", b.Language, b.Index, msg)).
		WithContext("page", b.Page).
		WithContext("index", b.Index).
		WithContext("language", b.Language)
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	return builder.Build()
}
