package kiln

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Expander grows an initial set of changed paths into the full compilation
// set by walking the reference edges recorded in the cached manifest.
//
// Propagation runs from a changed file to the files it references (its
// dependencies), transitively — not to its dependents. That direction is
// what joint-compilation-unit compilers need: recompiling a file can
// invalidate the outputs of everything compiled together with it.
type Expander struct {
	Manifest *Manifest
	Root     string

	// Workers > 1 expands each breadth-first layer concurrently. The result
	// is identical to the serial walk.
	Workers int
}

// Expand returns the union of initial and the reference closure over it,
// as a sorted, duplicate-free list of absolute paths. Referenced ids that
// no longer resolve to a file on disk are skipped (dangling references are
// not errors). A visited set keyed by resolved path makes the walk
// cycle-safe.
func (x *Expander) Expand(initial []string) []string {
	visited := make(map[string]bool, len(initial))
	result := make(map[string]bool, len(initial))

	queue := make([]string, 0, len(initial))
	for _, path := range initial {
		if visited[path] {
			continue
		}
		visited[path] = true
		result[path] = true
		queue = append(queue, path)
	}

	for len(queue) > 0 {
		var next []string
		if x.Workers > 1 {
			next = x.expandLayerParallel(queue, visited, result)
		} else {
			next = x.expandLayer(queue, visited, result)
		}
		queue = next
	}

	out := make([]string, 0, len(result))
	for path := range result {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// expandLayer processes one BFS layer serially, returning the next layer.
func (x *Expander) expandLayer(layer []string, visited, result map[string]bool) []string {
	var next []string
	for _, path := range layer {
		for _, ref := range x.referencePaths(path) {
			result[ref] = true
			if !visited[ref] {
				visited[ref] = true
				next = append(next, ref)
			}
		}
	}
	return next
}

// expandLayerParallel fans the layer out over a worker pool. Reference
// resolution stats the filesystem, so layers with many edges benefit from
// concurrency; visited-set membership is checked and set under one mutex so
// no path is enqueued twice or dropped.
func (x *Expander) expandLayerParallel(layer []string, visited, result map[string]bool) []string {
	workCh := make(chan string, len(layer))
	for _, path := range layer {
		workCh <- path
	}
	close(workCh)

	var mu sync.Mutex
	var next []string
	var wg sync.WaitGroup
	for range min(x.Workers, len(layer)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range workCh {
				refs := x.referencePaths(path)
				mu.Lock()
				for _, ref := range refs {
					result[ref] = true
					if !visited[ref] {
						visited[ref] = true
						next = append(next, ref)
					}
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return next
}

// referencePaths resolves the cached reference edges of one path to the
// absolute paths that still exist on disk.
func (x *Expander) referencePaths(path string) []string {
	cached, ok := x.Manifest.Source(SourceID(x.Root, path))
	if !ok {
		return nil
	}
	var refs []string
	for _, refID := range cached.References {
		refPath := filepath.Join(x.Root, filepath.FromSlash(refID))
		if info, err := os.Stat(refPath); err != nil || info.IsDir() {
			continue // dangling reference
		}
		refs = append(refs, refPath)
	}
	return refs
}
