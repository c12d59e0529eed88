// Package checksum computes content digests by algorithm identifier. The
// identifier is data, not configuration: it is stored alongside every cached
// hash, and recomputation must use whatever algorithm the cached record
// names, or comparison is meaningless.
package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
)

// DefaultAlgorithm is used when recording fresh checksums. Existing records
// keep their original algorithm until their source is recompiled.
const DefaultAlgorithm = "sha256"

var algorithms = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
}

// MissingAlgorithmError reports a cached checksum naming an algorithm this
// runtime cannot compute. It is a hard configuration error: treating it as
// "file changed" would silently recompile forever, and treating it as
// "unchanged" would skip real changes.
type MissingAlgorithmError struct {
	Algorithm string
}

func (e *MissingAlgorithmError) Error() string {
	return fmt.Sprintf("checksum: unknown algorithm %q", e.Algorithm)
}

// Supported reports whether the named algorithm is available.
func Supported(algorithm string) bool {
	_, ok := algorithms[algorithm]
	return ok
}

// Compute returns the hex digest of data under the named algorithm.
func Compute(algorithm string, data []byte) (string, error) {
	newHash, ok := algorithms[algorithm]
	if !ok {
		return "", &MissingAlgorithmError{Algorithm: algorithm}
	}
	h := newHash()
	h.Write(data)
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
