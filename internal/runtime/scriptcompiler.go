package runtime

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/risor-io/risor/object"

	"github.com/jward/kiln/internal/compiler"
)

// ScriptCompiler adapts one Risor compile script to the compiler.Compiler
// and compiler.Referencer interfaces. The script runs once per Compile
// batch; reference edges emitted during that run are memoized so
// References can answer without re-running the script.
type ScriptCompiler struct {
	rt     *Runtime
	script string // script name under compile/
	root   string // source root, for path → source id projection

	mu       sync.Mutex
	lastRefs map[string][]string
}

// NewScriptCompiler binds a script name to a runtime and source root.
func NewScriptCompiler(rt *Runtime, script, root string) *ScriptCompiler {
	return &ScriptCompiler{rt: rt, script: script, root: root}
}

// sourceID mirrors the projection the rest of the pipeline uses.
func (c *ScriptCompiler) sourceID(path string) string {
	rel, err := filepath.Rel(c.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// Compile evaluates the script over the batch. The script sees a "sources"
// list of {path, id} maps plus the emission host functions; whatever it
// emits becomes the result. A script-level error fails the whole batch;
// per-source failures reported via fail_source become a
// *compiler.CompileError alongside the successful artifacts.
func (c *ScriptCompiler) Compile(ctx context.Context, paths []string) (map[string]compiler.Artifact, error) {
	em := newEmissions()
	if len(paths) == 0 {
		c.setLastRefs(em.refs)
		return em.artifacts, nil
	}

	sources := make([]object.Object, 0, len(paths))
	for _, path := range paths {
		sources = append(sources, object.NewMap(map[string]object.Object{
			"path": object.NewString(path),
			"id":   object.NewString(c.sourceID(path)),
		}))
	}

	globals := map[string]any{
		"sources":        object.NewList(sources),
		"read_source":    makeReadSourceFn(),
		"emit_artifact":  makeEmitArtifactFn(em),
		"emit_reference": makeEmitReferenceFn(em),
		"fail_source":    makeFailSourceFn(em),
		"log":            mustProxy(&logObject{prefix: c.script}),
	}

	if err := c.rt.RunScript(ctx, CompileScriptPath(c.script), globals); err != nil {
		return nil, err
	}

	c.setLastRefs(em.refs)
	return em.artifacts, em.compileError()
}

// References returns the edges emitted during the last Compile run,
// filtered to the requested paths.
func (c *ScriptCompiler) References(ctx context.Context, paths []string) (map[string][]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string][]string, len(paths))
	for _, path := range paths {
		id := c.sourceID(path)
		if refs, ok := c.lastRefs[id]; ok {
			out[id] = append([]string(nil), refs...)
		}
	}
	return out, nil
}

func (c *ScriptCompiler) setLastRefs(refs map[string][]string) {
	c.mu.Lock()
	c.lastRefs = refs
	c.mu.Unlock()
}
