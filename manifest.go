package kiln

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LoadManifest reads a manifest document from path. A missing file is not an
// error: it loads as an empty manifest, which makes the first build of a
// project a full build.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewManifest(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	m := NewManifest()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if m.Sources == nil {
		m.Sources = make(map[string]SourceRecord)
	}
	if m.Artifacts == nil {
		m.Artifacts = make(map[string]ArtifactRecord)
	}
	return m, nil
}

// Save writes the manifest document to path, creating parent directories as
// needed.
func (m *Manifest) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write manifest %s: %w", path, err)
	}
	return nil
}

// ArtifactCache persists individual artifact records as one JSON file per
// artifact, named "<artifact name>.json". An interrupted build therefore
// leaves partial progress on disk that is still valid for future
// checksum-based skipping.
type ArtifactCache struct {
	Dir string
}

// cachePath returns the on-disk location for an artifact name.
func (c *ArtifactCache) cachePath(name string) string {
	return filepath.Join(c.Dir, name+".json")
}

// Write persists one artifact record.
func (c *ArtifactCache) Write(art ArtifactRecord) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("create artifact cache dir: %w", err)
	}
	data, err := json.MarshalIndent(art, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact %s: %w", art.Name, err)
	}
	if err := os.WriteFile(c.cachePath(art.Name), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", art.Name, err)
	}
	return nil
}

// Remove deletes an artifact's cache file. A missing file is not an error.
func (c *ArtifactCache) Remove(name string) error {
	err := os.Remove(c.cachePath(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove artifact %s: %w", name, err)
	}
	return nil
}

// Load reads one artifact record back from the cache.
func (c *ArtifactCache) Load(name string) (ArtifactRecord, error) {
	var art ArtifactRecord
	data, err := os.ReadFile(c.cachePath(name))
	if err != nil {
		return art, fmt.Errorf("read artifact %s: %w", name, err)
	}
	if err := json.Unmarshal(data, &art); err != nil {
		return art, fmt.Errorf("parse artifact %s: %w", name, err)
	}
	return art, nil
}
