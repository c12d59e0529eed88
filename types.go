package kiln

import "encoding/json"

// Checksum is a content digest paired with the algorithm that produced it.
// The algorithm identifier travels with each cached record so a cache stays
// valid across algorithm migrations: records are only re-hashed with the
// current algorithm when their source is recompiled.
type Checksum struct {
	Algorithm string `json:"algorithm"`
	Hash      string `json:"hash"`
}

// SourceRecord is the cached state of one source file, keyed in the manifest
// by its source id (path relative to the source root). References lists the
// source ids this file's last compilation depended on, in recorded order.
type SourceRecord struct {
	Checksum   Checksum `json:"checksum"`
	References []string `json:"references,omitempty"`
}

// ArtifactRecord is one named compiled output. Many artifacts may share a
// SourceID (multiple outputs from one file); a source may also produce none.
// Payload is opaque to kiln — it is whatever the compiler emitted.
type ArtifactRecord struct {
	Name     string          `json:"name"`
	SourceID string          `json:"source_id"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Manifest is the persisted record of previously known sources and compiled
// artifacts for a project: source id → SourceRecord and artifact name →
// ArtifactRecord.
type Manifest struct {
	Sources   map[string]SourceRecord   `json:"sources"`
	Artifacts map[string]ArtifactRecord `json:"artifacts"`
}

// NewManifest returns an empty manifest with both maps allocated.
func NewManifest() *Manifest {
	return &Manifest{
		Sources:   make(map[string]SourceRecord),
		Artifacts: make(map[string]ArtifactRecord),
	}
}

// Clone returns a deep copy. Reconciliation treats its input manifest as
// immutable and works on a copy, so a failed build never leaves a caller
// holding a half-updated manifest.
func (m *Manifest) Clone() *Manifest {
	out := NewManifest()
	for id, src := range m.Sources {
		cp := src
		cp.References = append([]string(nil), src.References...)
		out.Sources[id] = cp
	}
	for name, art := range m.Artifacts {
		cp := art
		cp.Payload = append(json.RawMessage(nil), art.Payload...)
		out.Artifacts[name] = cp
	}
	return out
}

// Source returns the cached record for a source id, if present.
func (m *Manifest) Source(id string) (SourceRecord, bool) {
	src, ok := m.Sources[id]
	return src, ok
}

// ArtifactsBySource returns the names of all artifacts originating from the
// given source id.
func (m *Manifest) ArtifactsBySource(id string) []string {
	var names []string
	for name, art := range m.Artifacts {
		if art.SourceID == id {
			names = append(names, name)
		}
	}
	return names
}
