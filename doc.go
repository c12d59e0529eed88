// Package kiln is an incremental recompilation cache. Given a persisted
// build manifest (content checksums and cross-file reference edges from the
// last build) and the source files currently on disk, it computes the minimal
// correct set of files to recompile, reconciles cached build artifacts
// against that decision, and produces an updated manifest.
//
// # Pipeline
//
// One build invocation runs three stages, strictly forward:
//
//  1. Detect: compare each active source file's normalized-content checksum
//     against the cached checksum for its source id. New or changed files
//     seed the compilation set.
//  2. Expand: follow the cached reference edges from every seeded file,
//     breadth-first and cycle-safe, adding referenced files that still exist
//     on disk. The result is the compilation set.
//  3. Reconcile: prune artifacts of deleted or about-to-be-recompiled
//     sources, invoke the compiler collaborator on the compilation set,
//     merge fresh artifacts over surviving ones, and return a new manifest.
//     The input manifest is never mutated.
//
// # Usage
//
// Create an Engine rooted at a project directory and build:
//
//	e, err := kiln.New("path/to/project")
//	if err != nil { ... }
//	defer e.Close()
//
//	res, err := e.Build(context.Background())
//
// A non-nil error with a partial [BuildResult] means some sources failed to
// compile; the saved manifest stays consistent, so the next build retries
// exactly the failed subset plus anything newly changed.
//
// # Compilers
//
// Compilation is pluggable. Extensions route to compiler implementations
// through a registry; the default compilers are Risor scripts
// under scripts/compile, executed by internal/runtime with host functions
// for reading sources and emitting artifacts and reference edges. A
// compiler receives only file paths and returns only artifacts — it has no
// way to trigger manifest generation re-entrantly.
package kiln
