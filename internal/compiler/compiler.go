// Package compiler defines the compile collaborator boundary: a Compiler
// receives file paths and returns named artifacts, nothing else. The
// interface deliberately has no way to hand a compiler a manifest or a
// manifest-producing callback, so compilation can never re-enter manifest
// generation.
package compiler

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Artifact is one named compiled output reported by a compiler. Payload is
// opaque compiler output.
type Artifact struct {
	Name     string
	SourceID string
	Payload  json.RawMessage
}

// Compiler turns a batch of source file paths into artifacts keyed by
// artifact name. It must accept an empty batch and return an empty map.
// Partial failure is first-class: a compiler may return the artifacts that
// did compile together with a *CompileError naming the paths that did not.
type Compiler interface {
	Compile(ctx context.Context, paths []string) (map[string]Artifact, error)
}

// Referencer is optionally implemented by compilers that can report which
// source ids each compiled source referenced. Compilers without it simply
// produce sources with no outgoing reference edges.
type Referencer interface {
	References(ctx context.Context, paths []string) (map[string][]string, error)
}

// CompileError reports per-path compile failures. Sources named here must
// not be recorded as cached; the rest of the batch still commits.
type CompileError struct {
	Failures map[string]error
}

func (e *CompileError) Error() string {
	paths := make([]string, 0, len(e.Failures))
	for path := range e.Failures {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return fmt.Sprintf("compile failed for %d source(s): %s",
		len(paths), strings.Join(paths, ", "))
}

// merge folds another CompileError's failures into e.
func (e *CompileError) merge(other *CompileError) {
	for path, err := range other.Failures {
		e.Failures[path] = err
	}
}

// orNil returns nil when no failures were recorded, so callers can compare
// the result against nil directly.
func (e *CompileError) orNil() error {
	if len(e.Failures) == 0 {
		return nil
	}
	return e
}

// Registry routes source files to compilers by file extension.
type Registry struct {
	byExt map[string]Compiler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]Compiler)}
}

// Register binds an extension (".sol", ".vy", ...) to a compiler,
// replacing any previous binding.
func (r *Registry) Register(ext string, c Compiler) {
	r.byExt[ext] = c
}

// For returns the compiler registered for an extension.
func (r *Registry) For(ext string) (Compiler, bool) {
	c, ok := r.byExt[ext]
	return c, ok
}

// Extensions returns the registered extensions, sorted.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Compile groups paths by extension and invokes each compiler once with its
// group. Artifacts from all groups are merged. Failures — unroutable
// extensions, whole-group errors, and per-path failures reported by
// compilers — accumulate into a single *CompileError returned alongside
// whatever did compile.
func (r *Registry) Compile(ctx context.Context, paths []string) (map[string]Artifact, error) {
	artifacts := make(map[string]Artifact)
	failure := &CompileError{Failures: make(map[string]error)}

	for ext, group := range r.groupByExt(paths) {
		c, ok := r.byExt[ext]
		if !ok {
			for _, path := range group {
				failure.Failures[path] = fmt.Errorf("no compiler registered for %q", ext)
			}
			continue
		}

		arts, err := c.Compile(ctx, group)
		if partial, ok := err.(*CompileError); ok {
			failure.merge(partial)
		} else if err != nil {
			for _, path := range group {
				failure.Failures[path] = err
			}
			continue
		}
		for name, art := range arts {
			artifacts[name] = art
		}
	}

	return artifacts, failure.orNil()
}

// References collects reference edges from every compiler in the routing
// that implements Referencer. Compilers that do not are skipped.
func (r *Registry) References(ctx context.Context, paths []string) (map[string][]string, error) {
	refs := make(map[string][]string)
	for ext, group := range r.groupByExt(paths) {
		c, ok := r.byExt[ext]
		if !ok {
			continue
		}
		ref, ok := c.(Referencer)
		if !ok {
			continue
		}
		m, err := ref.References(ctx, group)
		if err != nil {
			return nil, fmt.Errorf("references for %q: %w", ext, err)
		}
		for id, ids := range m {
			refs[id] = ids
		}
	}
	return refs, nil
}

// groupByExt splits paths into per-extension groups, preserving order
// within each group.
func (r *Registry) groupByExt(paths []string) map[string][]string {
	groups := make(map[string][]string)
	for _, path := range paths {
		ext := filepath.Ext(path)
		groups[ext] = append(groups[ext], path)
	}
	return groups
}
