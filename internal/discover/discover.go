// Package discover finds the active source files under a project's sources
// folder. It is the filesystem collaborator of the build pipeline: the core
// never walks directories itself, it only consumes the list produced here.
package discover

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Sources walks root and returns the absolute paths of files whose names
// match a registered extension, excluding any whose root-relative id
// matches one of the exclude glob patterns. A missing root yields an empty
// list, not an error: a project with no sources folder simply has no
// sources. Output is sorted for deterministic builds.
func Sources(root string, extensions []string, exclude []string) ([]string, error) {
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, nil
	}

	matchers := make([]*regexp.Regexp, 0, len(extensions))
	for _, ext := range extensions {
		// Same shape source filenames are matched against upstream:
		// word characters and dashes, then the literal extension.
		matchers = append(matchers, regexp.MustCompile(`^[\w-]+`+regexp.QuoteMeta(ext)+`$`))
	}

	var paths []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		matched := false
		for _, m := range matchers {
			if m.MatchString(name) {
				matched = true
				break
			}
		}
		if !matched {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if Excluded(filepath.ToSlash(rel), exclude) {
			return nil
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover sources in %s: %w", root, err)
	}

	sort.Strings(paths)
	return paths, nil
}

// Excluded reports whether a slash-separated source id matches any of the
// exclude glob patterns. A pattern matches the full id, the file's base
// name, or any single path segment, so "mocks" excludes a whole directory
// and "*_draft.sol" excludes by suffix anywhere in the tree.
func Excluded(id string, exclude []string) bool {
	base := path.Base(id)
	segments := strings.Split(id, "/")
	for _, pattern := range exclude {
		if ok, _ := path.Match(pattern, id); ok {
			return true
		}
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
		for _, seg := range segments {
			if ok, _ := path.Match(pattern, seg); ok {
				return true
			}
		}
	}
	return false
}
