package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/risor-io/risor/object"

	"github.com/jward/kiln/internal/compiler"
)

// emissions collects everything a compile script reports during one run.
// Host functions append under a mutex because scripts may be evaluated
// concurrently by different compiler groups.
type emissions struct {
	mu        sync.Mutex
	artifacts map[string]compiler.Artifact
	refs      map[string][]string
	failures  map[string]error
}

func newEmissions() *emissions {
	return &emissions{
		artifacts: make(map[string]compiler.Artifact),
		refs:      make(map[string][]string),
		failures:  make(map[string]error),
	}
}

// compileError returns the accumulated per-source failures as a
// *compiler.CompileError, or nil when every source succeeded.
func (em *emissions) compileError() error {
	em.mu.Lock()
	defer em.mu.Unlock()
	if len(em.failures) == 0 {
		return nil
	}
	failures := make(map[string]error, len(em.failures))
	for path, err := range em.failures {
		failures[path] = err
	}
	return &compiler.CompileError{Failures: failures}
}

// makeReadSourceFn creates the "read_source" host function.
//
// read_source(path) → string
func makeReadSourceFn() *object.Builtin {
	return object.NewBuiltin("read_source", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("read_source", 1, len(args))
		}
		pathStr, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("read_source: path must be a string, got %s", args[0].Type())
		}
		data, err := os.ReadFile(pathStr.Value())
		if err != nil {
			return object.Errorf("read_source: reading %s: %v", pathStr.Value(), err)
		}
		return object.NewString(string(data))
	})
}

// makeEmitArtifactFn creates the "emit_artifact" host function. Risor
// scripts cannot construct Go struct values, so it accepts a map and builds
// the Artifact on the Go side; the payload value is serialized to JSON
// as-is.
//
// emit_artifact({"name": ..., "source_id": ..., "payload": ...})
func makeEmitArtifactFn(em *emissions) *object.Builtin {
	return object.NewBuiltin("emit_artifact", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("emit_artifact", 1, len(args))
		}
		m, err := extractMap(args[0])
		if err != nil {
			return object.Errorf("emit_artifact: %v", err)
		}

		name := getString(m, "name")
		if name == "" {
			return object.Errorf("emit_artifact: missing artifact name")
		}
		art := compiler.Artifact{
			Name:     name,
			SourceID: getString(m, "source_id"),
		}
		if payload, ok := m["payload"]; ok {
			data, err := json.Marshal(payload.Interface())
			if err != nil {
				return object.Errorf("emit_artifact: encoding payload for %s: %v", name, err)
			}
			art.Payload = data
		}

		em.mu.Lock()
		em.artifacts[name] = art
		em.mu.Unlock()
		return object.Nil
	})
}

// makeEmitReferenceFn creates the "emit_reference" host function.
//
// emit_reference(source_id, referenced_id)
func makeEmitReferenceFn(em *emissions) *object.Builtin {
	return object.NewBuiltin("emit_reference", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("emit_reference", 2, len(args))
		}
		id, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("emit_reference: source_id must be a string, got %s", args[0].Type())
		}
		ref, ok := args[1].(*object.String)
		if !ok {
			return object.Errorf("emit_reference: referenced_id must be a string, got %s", args[1].Type())
		}

		em.mu.Lock()
		em.refs[id.Value()] = append(em.refs[id.Value()], ref.Value())
		em.mu.Unlock()
		return object.Nil
	})
}

// makeFailSourceFn creates the "fail_source" host function, which marks one
// source as failed without aborting the rest of the batch.
//
// fail_source(path, message)
func makeFailSourceFn(em *emissions) *object.Builtin {
	return object.NewBuiltin("fail_source", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("fail_source", 2, len(args))
		}
		pathStr, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("fail_source: path must be a string, got %s", args[0].Type())
		}
		msgStr, ok := args[1].(*object.String)
		if !ok {
			return object.Errorf("fail_source: message must be a string, got %s", args[1].Type())
		}

		em.mu.Lock()
		em.failures[pathStr.Value()] = fmt.Errorf("%s", msgStr.Value())
		em.mu.Unlock()
		return object.Nil
	})
}

// extractMap unwraps a Risor map argument.
func extractMap(obj object.Object) (map[string]object.Object, error) {
	m, ok := obj.(*object.Map)
	if !ok {
		return nil, fmt.Errorf("expected map, got %s", obj.Type())
	}
	return m.Value(), nil
}

func getString(m map[string]object.Object, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	if s, ok := v.(*object.String); ok {
		return s.Value()
	}
	return ""
}

// logObject provides log.info/warn/error methods for compile scripts.
type logObject struct {
	prefix string
}

func (l *logObject) Info(msg string) {
	fmt.Fprintf(os.Stderr, "[%s] INFO: %s\n", l.prefix, msg)
}

func (l *logObject) Warn(msg string) {
	fmt.Fprintf(os.Stderr, "[%s] WARN: %s\n", l.prefix, msg)
}

func (l *logObject) Error(msg string) {
	fmt.Fprintf(os.Stderr, "[%s] ERROR: %s\n", l.prefix, msg)
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
