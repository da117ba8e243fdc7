// Package sidecar defines the versioned on-disk record sidecargo maintains
// next to each source file, together with its classifying JSON codec.
//
// A sidecar holds derived facts about exactly one file. The source file is
// never touched; every producer writes the sidecar through the persist
// package and every reader goes through Decode, which classifies malformed
// input instead of failing opaquely.
package sidecar

import (
	"encoding/json"
	"time"
)

// HashAlgorithm is the content-hash algorithm recorded in every signature.
// Content identity is pinned to the BLAKE3 hash, independent of schema
// version.
const HashAlgorithm = "blake3"

// Sidecar is the canonical metadata record stored as JSON at
// "<file-path>.json".
//
// Field order here is the on-disk key order; Encode preserves it.
type Sidecar struct {
	// SchemaVersion is the record's schema version (e.g. "1.0.0").
	// The migrate package rewrites it on upgrade.
	SchemaVersion string `json:"schema_version"`

	// ProducerVersion is the binary version that created this record.
	ProducerVersion string `json:"producer_version"`

	// CreatedAt is when the record was first written.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the record was last rewritten.
	UpdatedAt time.Time `json:"updated_at"`

	// PipelineSignature records the producing pipeline's configuration.
	PipelineSignature PipelineSignature `json:"pipeline_signature"`

	// Source describes the file this record belongs to.
	Source SourceInfo `json:"source"`

	// The sections below are owned by feature modules (EXIF extraction,
	// face detection, tagging, thumbnailing). Sidecargo passes them
	// through byte-for-byte unless a migration explicitly targets them.

	Image      json.RawMessage `json:"image,omitempty"`
	Faces      json.RawMessage `json:"faces,omitempty"`
	Tags       json.RawMessage `json:"tags,omitempty"`
	Thumbnails json.RawMessage `json:"thumbnails,omitempty"`
}

// Clone returns a deep copy of the sidecar. Raw feature sections are
// copied so transforms on the clone never alias the original bytes.
func (s *Sidecar) Clone() *Sidecar {
	c := *s
	c.Image = cloneRaw(s.Image)
	c.Faces = cloneRaw(s.Faces)
	c.Tags = cloneRaw(s.Tags)
	c.Thumbnails = cloneRaw(s.Thumbnails)
	return &c
}

func cloneRaw(m json.RawMessage) json.RawMessage {
	if m == nil {
		return nil
	}
	out := make(json.RawMessage, len(m))
	copy(out, m)
	return out
}

// SourceInfo pins the record to its source file's content identity.
type SourceInfo struct {
	// FilePath is the source file path as seen at scan time.
	FilePath string `json:"file_path"`

	// FileSizeBytes is used for quick change detection before hashing.
	FileSizeBytes int64 `json:"file_size_bytes"`

	// FileHashB3 is the BLAKE3 hash of the file contents,
	// 64 lowercase hex characters.
	FileHashB3 string `json:"file_hash_b3"`

	// FileModifiedAt is the filesystem mtime at scan time.
	FileModifiedAt time.Time `json:"file_modified_at"`
}

// PipelineSignature records the pipeline configuration that produced a
// record. The verify package compares it against the current signature to
// detect records that need a rescan or a migration.
type PipelineSignature struct {
	SchemaVersion   string    `json:"schema_version"`
	ProducerVersion string    `json:"producer_version"`
	HashAlgorithm   string    `json:"hash_algorithm"`
	FaceModel       string    `json:"face_model,omitempty"`
	TagModel        string    `json:"tag_model,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewSignature builds a signature for the current schema version.
func NewSignature(producerVersion string) PipelineSignature {
	return PipelineSignature{
		SchemaVersion:   CurrentVersion.String(),
		ProducerVersion: producerVersion,
		HashAlgorithm:   HashAlgorithm,
		CreatedAt:       time.Now().UTC(),
	}
}

// CompatibleWith reports whether two signatures describe the same record
// shape. Signatures are compatible iff their schema versions match
// exactly; producer and model differences do not break compatibility.
func (p PipelineSignature) CompatibleWith(other PipelineSignature) bool {
	return p.SchemaVersion == other.SchemaVersion
}
