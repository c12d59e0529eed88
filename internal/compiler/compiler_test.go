package compiler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapCompiler compiles every path into one artifact named after its base,
// failing paths listed in fail. It optionally reports references.
type mapCompiler struct {
	prefix string
	fail   map[string]string
	refs   map[string][]string

	batches [][]string
}

func (c *mapCompiler) Compile(ctx context.Context, paths []string) (map[string]Artifact, error) {
	c.batches = append(c.batches, paths)
	arts := make(map[string]Artifact)
	failures := make(map[string]error)
	for _, path := range paths {
		if msg, ok := c.fail[path]; ok {
			failures[path] = errors.New(msg)
			continue
		}
		name := c.prefix + path
		arts[name] = Artifact{Name: name, SourceID: path}
	}
	if len(failures) > 0 {
		return arts, &CompileError{Failures: failures}
	}
	return arts, nil
}

func (c *mapCompiler) References(ctx context.Context, paths []string) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, path := range paths {
		if refs, ok := c.refs[path]; ok {
			out[path] = refs
		}
	}
	return out, nil
}

func TestRegistry_RoutesByExtension(t *testing.T) {
	sol := &mapCompiler{prefix: "sol:"}
	vy := &mapCompiler{prefix: "vy:"}

	reg := NewRegistry()
	reg.Register(".sol", sol)
	reg.Register(".vy", vy)
	assert.Equal(t, []string{".sol", ".vy"}, reg.Extensions())

	arts, err := reg.Compile(context.Background(), []string{"a.sol", "b.vy", "c.sol"})
	require.NoError(t, err)
	assert.Len(t, arts, 3)
	assert.Contains(t, arts, "sol:a.sol")
	assert.Contains(t, arts, "vy:b.vy")

	require.Len(t, sol.batches, 1)
	assert.Equal(t, []string{"a.sol", "c.sol"}, sol.batches[0])
}

func TestRegistry_EmptySet(t *testing.T) {
	reg := NewRegistry()
	arts, err := reg.Compile(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, arts)
}

func TestRegistry_UnroutableExtensionFails(t *testing.T) {
	reg := NewRegistry()
	reg.Register(".sol", &mapCompiler{prefix: "sol:"})

	arts, err := reg.Compile(context.Background(), []string{"a.sol", "b.wat"})

	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Contains(t, compileErr.Failures, "b.wat")
	assert.Contains(t, arts, "sol:a.sol") // partial success still returned
}

func TestRegistry_PartialFailureAccumulates(t *testing.T) {
	reg := NewRegistry()
	reg.Register(".sol", &mapCompiler{prefix: "sol:", fail: map[string]string{"bad.sol": "boom"}})
	reg.Register(".vy", &mapCompiler{prefix: "vy:", fail: map[string]string{"bad.vy": "kaput"}})

	arts, err := reg.Compile(context.Background(), []string{"a.sol", "bad.sol", "bad.vy"})

	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Len(t, compileErr.Failures, 2)
	assert.Contains(t, arts, "sol:a.sol")
	assert.NotContains(t, arts, "sol:bad.sol")
}

func TestRegistry_WholeGroupError(t *testing.T) {
	hard := &hardFailCompiler{}
	reg := NewRegistry()
	reg.Register(".sol", hard)

	_, err := reg.Compile(context.Background(), []string{"a.sol", "b.sol"})

	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Len(t, compileErr.Failures, 2)
}

type hardFailCompiler struct{}

func (hardFailCompiler) Compile(ctx context.Context, paths []string) (map[string]Artifact, error) {
	return nil, errors.New("toolchain missing")
}

func TestRegistry_ReferencesOnlyFromReferencers(t *testing.T) {
	reg := NewRegistry()
	reg.Register(".sol", &mapCompiler{refs: map[string][]string{"a.sol": {"b.sol"}}})
	reg.Register(".wat", hardFailCompiler{}) // no Referencer

	refs, err := reg.References(context.Background(), []string{"a.sol", "x.wat"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"a.sol": {"b.sol"}}, refs)
}

func TestCompileError_MessageListsSortedPaths(t *testing.T) {
	err := &CompileError{Failures: map[string]error{
		"z.sol": errors.New("z"),
		"a.sol": errors.New("a"),
	}}
	assert.Equal(t, "compile failed for 2 source(s): a.sol, z.sol", err.Error())
}
