package sidecar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/sidecargo/codec"
)

// SyntaxError indicates bytes that are not valid JSON at all.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type SyntaxError struct {
	cause error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("sidecar: invalid JSON: %v", e.cause)
}

func (e *SyntaxError) Unwrap() error { return e.cause }

// SchemaError indicates well-formed JSON that is missing mandatory
// sidecar fields. MissingFields holds dotted field names in declaration
// order (e.g. "source.file_hash_b3").
type SchemaError struct {
	MissingFields []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("sidecar: missing mandatory fields: %s", strings.Join(e.MissingFields, ", "))
}

// Decode parses sidecar bytes.
//
// The outcome is three-way: a valid record, *SyntaxError for bytes that
// are not JSON, or *SchemaError for JSON missing mandatory fields.
// Decode never panics.
func Decode(data []byte) (*Sidecar, error) {
	return DecodeWith(codec.Default, data)
}

// DecodeWith is Decode using an explicit codec.
func DecodeWith(c codec.Codec, data []byte) (*Sidecar, error) {
	if c == nil {
		c = codec.Default
	}

	var s Sidecar
	if err := c.Unmarshal(data, &s); err != nil {
		return nil, &SyntaxError{cause: err}
	}

	var missing []string
	if s.SchemaVersion == "" {
		missing = append(missing, "schema_version")
	}
	if s.ProducerVersion == "" {
		missing = append(missing, "producer_version")
	}
	if s.Source.FileHashB3 == "" {
		missing = append(missing, "source.file_hash_b3")
	}
	if s.Source.FileModifiedAt.IsZero() {
		missing = append(missing, "source.file_modified_at")
	}
	if len(missing) > 0 {
		return nil, &SchemaError{MissingFields: missing}
	}

	return &s, nil
}

// Encode serializes a record to its on-disk form: stable key order,
// two-space indent, trailing newline. It only fails when a feature
// section carries bytes that are not valid JSON, which no structurally
// valid Sidecar does.
func Encode(s *Sidecar) ([]byte, error) {
	return EncodeWith(codec.Default, s)
}

// EncodeWith is Encode using an explicit codec.
func EncodeWith(c codec.Codec, s *Sidecar) ([]byte, error) {
	if c == nil {
		c = codec.Default
	}

	compact, err := c.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("sidecar: encode: %w", err)
	}

	// Indenting through the stdlib keeps the output byte-identical across
	// codecs.
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", "  "); err != nil {
		return nil, fmt.Errorf("sidecar: encode: %w", err)
	}
	buf.WriteByte('\n')

	return buf.Bytes(), nil
}
