// Package runtime embeds a Risor VM and exposes host functions that let
// compile scripts read sources and emit artifacts, reference edges, and
// per-source failures. Scripts are the pluggable half of the compile
// collaborator: Go routes and collects, scripts decide what a compilation
// produces.
package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
)

// Runtime loads and evaluates Risor compile scripts.
type Runtime struct {
	scriptsDir string
	fsys       fs.FS
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithFS loads scripts from an fs.FS (typically go:embed) instead of from
// disk. Also wires the Risor importer so script import statements resolve
// inside the same FS.
func WithFS(fsys fs.FS) Option {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// New creates a Runtime reading scripts from scriptsDir, unless WithFS
// overrides the source.
func New(scriptsDir string, opts ...Option) *Runtime {
	r := &Runtime{scriptsDir: scriptsDir}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CompileScriptPath returns the path of a named compile script relative to
// the scripts root.
func CompileScriptPath(name string) string {
	return filepath.Join("compile", name+".risor")
}

// RunScript loads and evaluates a script with the given globals.
func (r *Runtime) RunScript(ctx context.Context, scriptPath string, globals map[string]any) error {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return err
	}
	return r.eval(ctx, src, scriptPath, globals)
}

// RunSource evaluates Risor source directly. Useful for testing without
// script files.
func (r *Runtime) RunSource(ctx context.Context, source string, globals map[string]any) error {
	return r.eval(ctx, source, "<inline>", globals)
}

func (r *Runtime) eval(ctx context.Context, source, label string, globals map[string]any) error {
	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	if _, err := risor.Eval(ctx, source, opts...); err != nil {
		return fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return nil
}

// buildImporter returns a Risor importer for the configured script source,
// or nil when neither an FS nor a directory is set.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript reads a .risor file from the configured source and returns its
// text.
func (r *Runtime) LoadScript(path string) (string, error) {
	if r.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := path
	if !filepath.IsAbs(path) {
		fullPath = filepath.Join(r.scriptsDir, path)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}
