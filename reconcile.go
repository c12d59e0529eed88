package kiln

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jward/kiln/internal/checksum"
	"github.com/jward/kiln/internal/compiler"
)

// CompileFunc is the compile collaborator: paths in, artifacts out. It must
// accept an empty set. By taking only paths it is structurally unable to
// trigger manifest generation while a manifest is being built.
type CompileFunc func(ctx context.Context, paths []string) (map[string]compiler.Artifact, error)

// ReferenceFunc reports fresh reference edges (source id → referenced
// source ids) for compiled paths. It runs after CompileFunc, so
// implementations may answer from state recorded during compilation.
type ReferenceFunc func(ctx context.Context, paths []string) (map[string][]string, error)

// Reconciler merges the outcome of one compilation pass into a new
// manifest: stale artifacts are pruned, the compile collaborator runs over
// the compilation set, and fresh results are combined with whatever
// survived from the cache.
type Reconciler struct {
	Root       string
	Cache      *ArtifactCache // nil disables per-artifact cache files
	Compile    CompileFunc
	References ReferenceFunc // nil means compiled sources record no edges
	Algorithm  string        // checksum algorithm for fresh records
}

// Reconcile builds the updated manifest for one build invocation. The input
// manifest is read-only; a new Manifest is always allocated.
//
// When some sources fail to compile, Reconcile still returns a complete,
// consistent manifest — failed sources are simply absent from it, so the
// next build picks them up again — together with the *compiler.CompileError
// describing the failures. Callers must treat that error as a failed build
// while still persisting the returned manifest.
func (r *Reconciler) Reconcile(ctx context.Context, m *Manifest, compSet, active []string) (*Manifest, error) {
	activeIDs := make(map[string]bool, len(active))
	for _, path := range active {
		activeIDs[SourceID(r.Root, path)] = true
	}
	compIDs := make(map[string]bool, len(compSet))
	for _, path := range compSet {
		compIDs[SourceID(r.Root, path)] = true
	}

	// Step 1: drop every artifact whose source was deleted — cached source
	// ids no longer present among the active sources. This runs before
	// recompile pruning so artifacts of deleted files can never survive
	// into the new manifest.
	deletedIDs := make(map[string]bool)
	for id := range m.Sources {
		if !activeIDs[id] {
			deletedIDs[id] = true
		}
	}
	surviving := make(map[string]ArtifactRecord, len(m.Artifacts))
	for name, art := range m.Artifacts {
		if deletedIDs[art.SourceID] {
			continue
		}
		surviving[name] = art
	}

	// Step 2: drop artifacts about to be superseded, and their cache files.
	for name, art := range surviving {
		if !compIDs[art.SourceID] {
			continue
		}
		if r.Cache != nil {
			if err := r.Cache.Remove(name); err != nil {
				return nil, err
			}
		}
		delete(surviving, name)
	}

	// Step 3: compile. Pruning is complete at this point; the compiler's
	// view of the artifact cache has no entry for anything it is about to
	// produce.
	fresh, err := r.Compile(ctx, compSet)
	var compileErr *compiler.CompileError
	if err != nil && !errors.As(err, &compileErr) {
		return nil, fmt.Errorf("compile: %w", err)
	}

	failedIDs := make(map[string]bool)
	if compileErr != nil {
		for path := range compileErr.Failures {
			failedIDs[SourceID(r.Root, path)] = true
		}
	}

	// Steps 4–5: merge fresh artifacts over surviving ones (fresh wins on
	// name collision) and persist each fresh record individually.
	for name, art := range fresh {
		if failedIDs[art.SourceID] {
			continue
		}
		rec := ArtifactRecord{Name: name, SourceID: art.SourceID, Payload: art.Payload}
		surviving[name] = rec
		if r.Cache != nil {
			if err := r.Cache.Write(rec); err != nil {
				return nil, err
			}
		}
	}

	// Step 6: rebuild the source map over active ∪ compilation set. Failed
	// sources get no entry, so the next build retries exactly them.
	refs := make(map[string][]string)
	if r.References != nil {
		refs, err = r.References(ctx, compSet)
		if err != nil {
			return nil, fmt.Errorf("collect references: %w", err)
		}
	}

	sources := make(map[string]SourceRecord, len(active))
	seen := make(map[string]bool, len(active)+len(compSet))
	for _, path := range append(append([]string(nil), active...), compSet...) {
		id := SourceID(r.Root, path)
		if seen[id] {
			continue
		}
		seen[id] = true

		if failedIDs[id] {
			continue
		}
		if !compIDs[id] {
			// Untouched source: carry the cached record, old algorithm and
			// all.
			if cached, ok := m.Source(id); ok {
				sources[id] = cached
			}
			continue
		}

		rec, err := r.freshRecord(path, refs[id])
		if err != nil {
			return nil, err
		}
		sources[id] = rec
	}

	out := &Manifest{Sources: sources, Artifacts: surviving}
	if compileErr != nil {
		return out, compileErr
	}
	return out, nil
}

// freshRecord builds the source record for a just-compiled path: normalized
// content hashed with the reconciler's algorithm, plus fresh edges.
func (r *Reconciler) freshRecord(path string, references []string) (SourceRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return SourceRecord{}, fmt.Errorf("read source %s: %w", path, err)
	}
	alg := r.Algorithm
	if alg == "" {
		alg = checksum.DefaultAlgorithm
	}
	sum, err := checksum.Compute(alg, NormalizeSource(raw))
	if err != nil {
		return SourceRecord{}, fmt.Errorf("checksum %s: %w", path, err)
	}
	return SourceRecord{
		Checksum:   Checksum{Algorithm: alg, Hash: sum},
		References: references,
	}, nil
}
