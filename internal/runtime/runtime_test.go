package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/kiln/internal/compiler"
)

func TestLoadScript_FromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "compile"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "compile", "noop.risor"), []byte("1 + 1"), 0o644))

	rt := New(dir)
	src, err := rt.LoadScript(CompileScriptPath("noop"))
	require.NoError(t, err)
	assert.Equal(t, "1 + 1", src)
}

func TestLoadScript_Missing(t *testing.T) {
	rt := New(t.TempDir())
	_, err := rt.LoadScript(CompileScriptPath("ghost"))
	require.Error(t, err)
}

func TestRunSource_EmitArtifact(t *testing.T) {
	em := newEmissions()
	rt := New("")

	err := rt.RunSource(context.Background(), `
emit_artifact({
    "name": "Token",
    "source_id": "token.src",
    "payload": {"abi": [], "kind": "contract"},
})
`, map[string]any{"emit_artifact": makeEmitArtifactFn(em)})
	require.NoError(t, err)

	require.Contains(t, em.artifacts, "Token")
	art := em.artifacts["Token"]
	assert.Equal(t, "token.src", art.SourceID)
	assert.JSONEq(t, `{"abi":[],"kind":"contract"}`, string(art.Payload))
}

func TestRunSource_EmitArtifactWithoutNameErrors(t *testing.T) {
	em := newEmissions()
	rt := New("")

	err := rt.RunSource(context.Background(),
		`emit_artifact({"source_id": "a.src"})`,
		map[string]any{"emit_artifact": makeEmitArtifactFn(em)})
	require.Error(t, err)
	assert.Empty(t, em.artifacts)
}

func TestRunSource_EmitReferenceAndFail(t *testing.T) {
	em := newEmissions()
	rt := New("")

	err := rt.RunSource(context.Background(), `
emit_reference("a.src", "b.src")
emit_reference("a.src", "c.src")
fail_source("/abs/bad.src", "unbalanced braces")
`, map[string]any{
		"emit_reference": makeEmitReferenceFn(em),
		"fail_source":    makeFailSourceFn(em),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"b.src", "c.src"}, em.refs["a.src"])

	cerr := em.compileError()
	var compileErr *compiler.CompileError
	require.ErrorAs(t, cerr, &compileErr)
	assert.EqualError(t, compileErr.Failures["/abs/bad.src"], "unbalanced braces")
}

// writeCompileScript installs a compile script under dir/compile/.
func writeCompileScript(t *testing.T, dir, name, source string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "compile"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "compile", name+".risor"), []byte(source), 0o644))
}

const echoScript = `
for _, s := range sources {
    text := read_source(s["path"])
    if strings.contains(text, "@error") {
        fail_source(s["path"], "bad source")
        continue
    }
    emit_reference(s["id"], "common.src")
    emit_artifact({
        "name": "out:" + s["id"],
        "source_id": s["id"],
        "payload": {"content": text},
    })
}
`

func TestScriptCompiler_CompileBatch(t *testing.T) {
	scriptsDir := t.TempDir()
	writeCompileScript(t, scriptsDir, "echo", echoScript)

	root := t.TempDir()
	good := filepath.Join(root, "good.src")
	require.NoError(t, os.WriteFile(good, []byte("hello"), 0o644))
	bad := filepath.Join(root, "bad.src")
	require.NoError(t, os.WriteFile(bad, []byte("x @error"), 0o644))

	sc := NewScriptCompiler(New(scriptsDir), "echo", root)
	arts, err := sc.Compile(context.Background(), []string{good, bad})

	var compileErr *compiler.CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Contains(t, compileErr.Failures, bad)

	require.Contains(t, arts, "out:good.src")
	assert.Equal(t, "good.src", arts["out:good.src"].SourceID)
	assert.JSONEq(t, `{"content":"hello"}`, string(arts["out:good.src"].Payload))

	// References were memoized from the run.
	refs, err := sc.References(context.Background(), []string{good})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"good.src": {"common.src"}}, refs)
}

func TestScriptCompiler_EmptyBatch(t *testing.T) {
	sc := NewScriptCompiler(New(t.TempDir()), "echo", t.TempDir())
	arts, err := sc.Compile(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, arts)
}

func TestScriptCompiler_MissingScript(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.src")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))

	sc := NewScriptCompiler(New(t.TempDir()), "ghost", root)
	_, err := sc.Compile(context.Background(), []string{path})
	require.Error(t, err)
}
