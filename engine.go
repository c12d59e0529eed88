package kiln

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jward/kiln/internal/compiler"
	"github.com/jward/kiln/internal/config"
	"github.com/jward/kiln/internal/discover"
	"github.com/jward/kiln/internal/runtime"
	"github.com/jward/kiln/internal/store"
)

// Engine runs the build pipeline for one project: discovery, change
// detection, reference closure expansion, and manifest reconciliation.
type Engine struct {
	root       string // project directory
	cfg        *config.Config
	registry   *compiler.Registry
	overrides  map[string]compiler.Compiler
	store      *store.Store
	log        *slog.Logger
	workers    int
	history    bool
	scriptsFS  fs.FS
	scriptsDir string
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig supplies a configuration instead of loading kiln.yaml from the
// project directory.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithCompiler binds an extension to a compiler, overriding any script
// compiler the config would route that extension to.
func WithCompiler(ext string, c compiler.Compiler) Option {
	return func(e *Engine) {
		e.overrides[ext] = c
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithWorkers sets the worker count for parallel closure expansion.
// Zero or one means serial.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithHistory controls build-history recording. Enabled by default.
func WithHistory(enabled bool) Option {
	return func(e *Engine) {
		e.history = enabled
	}
}

// WithScriptsFS loads compile scripts from the given filesystem (typically
// the embedded scripts.FS) instead of from a directory on disk.
func WithScriptsFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.scriptsFS = fsys
	}
}

// WithScriptsDir loads compile scripts from a directory on disk.
func WithScriptsDir(dir string) Option {
	return func(e *Engine) {
		e.scriptsDir = dir
	}
}

// New creates an Engine rooted at a project directory. Configuration load
// order: WithConfig, then kiln.yaml, then a migrated legacy build.yaml,
// then defaults.
func New(root string, opts ...Option) (*Engine, error) {
	e := &Engine{
		root:      root,
		overrides: make(map[string]compiler.Compiler),
		history:   true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = slog.Default()
	}

	if e.cfg == nil {
		cfg, err := config.Load(root)
		if err != nil {
			return nil, fmt.Errorf("kiln: load config: %w", err)
		}
		e.cfg = cfg
	}

	if err := os.MkdirAll(e.cacheDir(), 0o755); err != nil {
		return nil, fmt.Errorf("kiln: create cache dir: %w", err)
	}

	e.registry = e.buildRegistry()

	if e.history {
		s, err := store.NewStore(filepath.Join(e.cacheDir(), "history.db"))
		if err != nil {
			return nil, fmt.Errorf("kiln: open history store: %w", err)
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, fmt.Errorf("kiln: migrate history store: %w", err)
		}
		e.store = s
	}

	return e, nil
}

// buildRegistry wires script compilers from the config routing, then lays
// explicit overrides on top.
func (e *Engine) buildRegistry() *compiler.Registry {
	reg := compiler.NewRegistry()

	var rtOpts []runtime.Option
	if e.scriptsFS != nil {
		rtOpts = append(rtOpts, runtime.WithFS(e.scriptsFS))
	}
	rt := runtime.New(e.scriptsDir, rtOpts...)

	for ext, script := range e.cfg.Compilers {
		reg.Register(ext, runtime.NewScriptCompiler(rt, script, e.sourceRoot()))
	}
	for ext, c := range e.overrides {
		reg.Register(ext, c)
	}
	return reg
}

// Close releases the Engine's resources.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// History returns the build-history store, or nil when recording is
// disabled.
func (e *Engine) History() *store.Store {
	return e.store
}

func (e *Engine) sourceRoot() string {
	return filepath.Join(e.root, e.cfg.SourcesFolder)
}

func (e *Engine) cacheDir() string {
	return filepath.Join(e.root, e.cfg.CacheFolder)
}

// ManifestPath returns the on-disk location of the project manifest.
func (e *Engine) ManifestPath() string {
	return filepath.Join(e.cacheDir(), "manifest.json")
}

// BuildResult summarizes one build invocation.
type BuildResult struct {
	ActiveSources  int
	CompilationSet []string
	Failed         map[string]error
	Duration       time.Duration
}

// Build runs one pass of the pipeline and persists the updated manifest.
//
// When some sources fail to compile, the manifest is still saved in a
// consistent state (failed sources are absent, so the next build retries
// them) and Build returns both the result and the compile error.
func (e *Engine) Build(ctx context.Context) (*BuildResult, error) {
	start := time.Now()

	manifest, err := LoadManifest(e.ManifestPath())
	if err != nil {
		return nil, err
	}

	active, err := discover.Sources(e.sourceRoot(), e.registry.Extensions(), e.cfg.Exclude)
	if err != nil {
		return nil, err
	}

	detector := &ChangeDetector{Manifest: manifest, Root: e.sourceRoot()}
	changed, err := detector.Changed(active)
	if err != nil {
		return nil, err
	}

	expander := &Expander{Manifest: manifest, Root: e.sourceRoot(), Workers: e.workers}
	compSet := expander.Expand(changed)
	e.log.Debug("compilation set computed",
		"active", len(active), "changed", len(changed), "compile", len(compSet))

	reconciler := &Reconciler{
		Root:       e.sourceRoot(),
		Cache:      &ArtifactCache{Dir: filepath.Join(e.cacheDir(), "artifacts")},
		Compile:    e.registry.Compile,
		References: e.registry.References,
		Algorithm:  e.cfg.Algorithm,
	}
	updated, err := reconciler.Reconcile(ctx, manifest, compSet, active)
	var compileErr *compiler.CompileError
	if err != nil && !errors.As(err, &compileErr) {
		return nil, err
	}

	if err := updated.Save(e.ManifestPath()); err != nil {
		return nil, err
	}

	result := &BuildResult{
		ActiveSources:  len(active),
		CompilationSet: compSet,
		Duration:       time.Since(start),
	}
	if compileErr != nil {
		result.Failed = compileErr.Failures
	}

	e.recordHistory(start, result)
	e.log.Info("build finished",
		"compiled", len(compSet)-len(result.Failed),
		"failed", len(result.Failed),
		"duration", result.Duration)

	if compileErr != nil {
		return result, compileErr
	}
	return result, nil
}

// recordHistory writes one build row; failures to record are logged, never
// fatal.
func (e *Engine) recordHistory(start time.Time, res *BuildResult) {
	if e.store == nil {
		return
	}

	files := make([]store.BuildFile, 0, len(res.CompilationSet))
	for _, path := range res.CompilationSet {
		f := store.BuildFile{Path: path, Status: "compiled"}
		if err, ok := res.Failed[path]; ok {
			f.Status = "failed"
			f.Error = err.Error()
		}
		files = append(files, f)
	}

	_, err := e.store.RecordBuild(&store.Build{
		Root:      e.root,
		StartedAt: start,
		Duration:  res.Duration,
		Total:     res.ActiveSources,
		Compiled:  len(res.CompilationSet) - len(res.Failed),
		Failed:    len(res.Failed),
	}, files)
	if err != nil {
		e.log.Warn("recording build history failed", "error", err)
	}
}
