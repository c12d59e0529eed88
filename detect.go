package kiln

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jward/kiln/internal/checksum"
)

// SourceID converts an absolute file path to its manifest identity: the
// slash-separated path relative to the source root.
func SourceID(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// NormalizeSource normalizes raw source content before hashing: trailing
// whitespace is stripped from the whole content and exactly one trailing
// newline is appended, unless the stripped content is empty, which
// normalizes to the empty string. Cached checksums were produced over
// content in this exact form; normalizing any other way makes every file
// look permanently changed.
func NormalizeSource(raw []byte) []byte {
	text := strings.TrimRight(string(raw), " \t\r\n\v\f")
	if text == "" {
		return []byte{}
	}
	return []byte(text + "\n")
}

// ChangeDetector decides whether a source file needs recompilation by
// comparing its normalized-content checksum against the cached record.
// It reads the filesystem and the manifest and mutates neither.
type ChangeDetector struct {
	Manifest *Manifest
	Root     string
}

// NeedsRecompile reports whether path must be recompiled. A path whose
// source id is not in the manifest is always new. Otherwise the file's
// content is normalized and hashed with the algorithm stored on the cached
// record; any difference from the stored hash means changed. Unreadable
// files and unknown algorithms are errors, never silently "unchanged".
func (d *ChangeDetector) NeedsRecompile(path string) (bool, error) {
	id := SourceID(d.Root, path)
	cached, ok := d.Manifest.Source(id)
	if !ok {
		return true, nil // new file
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read source %s: %w", path, err)
	}

	sum, err := checksum.Compute(cached.Checksum.Algorithm, NormalizeSource(raw))
	if err != nil {
		return false, fmt.Errorf("checksum %s: %w", id, err)
	}
	return sum != cached.Checksum.Hash, nil
}

// Changed filters paths down to those needing recompilation, preserving
// input order.
func (d *ChangeDetector) Changed(paths []string) ([]string, error) {
	var changed []string
	for _, path := range paths {
		needs, err := d.NeedsRecompile(path)
		if err != nil {
			return nil, err
		}
		if needs {
			changed = append(changed, path)
		}
	}
	return changed, nil
}
