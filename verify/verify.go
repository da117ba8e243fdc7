// Package verify classifies sidecar record health.
//
// A record lands in exactly one of four states (ok, stale, missing,
// corrupt), derived from the decode outcome of the stored record, a live
// fingerprint of the source file, and a signature comparison against the
// current pipeline. Content drift dominates version drift: a changed
// file is reported for rescan even when its record's schema is also
// behind, since rescanning re-derives a current-schema record anyway.
package verify

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"

	"github.com/hupe1980/sidecargo/codec"
	"github.com/hupe1980/sidecargo/fingerprint"
	"github.com/hupe1980/sidecargo/sidecar"
)

// Status is the four-way health classification of one record.
type Status string

const (
	StatusOK      Status = "ok"
	StatusStale   Status = "stale"
	StatusMissing Status = "missing"
	StatusCorrupt Status = "corrupt"
)

// Action is the suggested follow-up for a classification.
type Action string

const (
	ActionNoop    Action = "noop"
	ActionRescan  Action = "rescan"
	ActionMigrate Action = "migrate"
)

// Reason strings reported in Result.Reasons. missing_field carries the
// dotted field name after the colon.
const (
	ReasonSidecarNotFound    = "sidecar_not_found"
	ReasonInvalidJSON        = "invalid_json"
	ReasonMissingFieldPrefix = "missing_field:"
	ReasonHashChanged        = "file_hash_changed"
	ReasonFileTouched        = "file_touched_no_content_change"
	ReasonSchemaMismatch     = "schema_version_mismatch"
	ReasonProducerMismatch   = "producer_version_mismatch"
)

// Result is the ephemeral verification outcome for one source file.
// It is never persisted.
type Result struct {
	// Path is the source file the record describes.
	Path string `json:"path"`

	// SidecarPath is where the record lives (or would live).
	SidecarPath string `json:"sidecar_path"`

	Status    Status   `json:"status,omitempty"`
	Reasons   []string `json:"reasons,omitempty"`
	Suggested Action   `json:"suggested,omitempty"`

	// Err is set when classification could not complete, e.g. the source
	// file itself was unreadable. Batch callers collect it; single-file
	// callers propagate it.
	Err error `json:"-"`
}

// Engine classifies records against a fixed current pipeline signature.
type Engine struct {
	current sidecar.PipelineSignature
	codec   codec.Codec
}

// NewEngine creates a verification engine. The signature is what "current"
// means for schema and model comparisons; the codec decodes records (nil
// selects the default).
func NewEngine(current sidecar.PipelineSignature, c codec.Codec) *Engine {
	if c == nil {
		c = codec.Default
	}
	return &Engine{current: current, codec: c}
}

// File classifies the record for one source file. First match wins:
// missing beats corrupt beats content drift beats version drift.
func (e *Engine) File(path string) Result {
	res := Result{
		Path:        path,
		SidecarPath: sidecar.PathFor(path),
	}

	data, err := os.ReadFile(res.SidecarPath)
	if errors.Is(err, os.ErrNotExist) {
		res.Status = StatusMissing
		res.Reasons = []string{ReasonSidecarNotFound}
		res.Suggested = ActionRescan
		return res
	}
	if err != nil {
		res.Err = err
		return res
	}

	s, err := sidecar.DecodeWith(e.codec, data)
	if err != nil {
		res.Status = StatusCorrupt
		res.Suggested = ActionRescan
		res.Reasons = corruptReasons(err)
		return res
	}

	live, err := fingerprint.Compute(path)
	if err != nil {
		res.Err = err
		return res
	}

	var contentDrift, versionDrift bool

	if live.HashB3 != s.Source.FileHashB3 {
		res.Reasons = append(res.Reasons, ReasonHashChanged)
		contentDrift = true
	} else if s.Source.FileModifiedAt.Before(live.ModifiedAt) {
		// Content hash is authoritative; a touched mtime with matching
		// bytes is informational only.
		res.Reasons = append(res.Reasons, ReasonFileTouched)
	}

	if !s.PipelineSignature.CompatibleWith(e.current) {
		res.Reasons = append(res.Reasons, ReasonSchemaMismatch)
		versionDrift = true
	}
	if e.modelMismatch(s) {
		res.Reasons = append(res.Reasons, ReasonProducerMismatch)
		versionDrift = true
	}

	switch {
	case contentDrift:
		res.Status = StatusStale
		res.Suggested = ActionRescan
	case versionDrift:
		res.Status = StatusStale
		res.Suggested = ActionMigrate
	default:
		res.Status = StatusOK
		res.Suggested = ActionNoop
	}
	return res
}

// modelMismatch compares model identifiers only for features whose data
// is actually present in the record.
func (e *Engine) modelMismatch(s *sidecar.Sidecar) bool {
	if featurePresent(s.Faces) && s.PipelineSignature.FaceModel != e.current.FaceModel {
		return true
	}
	if featurePresent(s.Tags) && s.PipelineSignature.TagModel != e.current.TagModel {
		return true
	}
	return false
}

func featurePresent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0:
		return false
	case bytes.Equal(trimmed, []byte("null")):
		return false
	case bytes.Equal(trimmed, []byte("[]")):
		return false
	case bytes.Equal(trimmed, []byte("{}")):
		return false
	}
	return true
}

func corruptReasons(err error) []string {
	var schemaErr *sidecar.SchemaError
	if errors.As(err, &schemaErr) {
		reasons := make([]string, 0, len(schemaErr.MissingFields))
		for _, f := range schemaErr.MissingFields {
			reasons = append(reasons, ReasonMissingFieldPrefix+f)
		}
		return reasons
	}
	return []string{ReasonInvalidJSON}
}
