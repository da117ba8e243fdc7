package verify

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/sidecargo/fingerprint"
	"github.com/hupe1980/sidecargo/persist"
	"github.com/hupe1980/sidecargo/sidecar"
)

func currentSignature() sidecar.PipelineSignature {
	return sidecar.PipelineSignature{
		SchemaVersion:   "1.1.0",
		ProducerVersion: "0.2.0",
		HashAlgorithm:   sidecar.HashAlgorithm,
		CreatedAt:       time.Now().UTC(),
	}
}

// scanFile mimics the external scan step: fingerprint the file and write
// a fresh record for it.
func scanFile(t *testing.T, path string, sig sidecar.PipelineSignature) *sidecar.Sidecar {
	t.Helper()

	fp, err := fingerprint.Compute(path)
	require.NoError(t, err)

	now := time.Now().UTC()
	s := &sidecar.Sidecar{
		SchemaVersion:     sig.SchemaVersion,
		ProducerVersion:   sig.ProducerVersion,
		CreatedAt:         now,
		UpdatedAt:         now,
		PipelineSignature: sig,
		Source: sidecar.SourceInfo{
			FilePath:       path,
			FileSizeBytes:  fp.SizeBytes,
			FileHashB3:     fp.HashB3,
			FileModifiedAt: fp.ModifiedAt,
		},
	}
	_, err = persist.Write(sidecar.PathFor(path), s, false)
	require.NoError(t, err)
	return s
}

func writeSource(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestFileMissingSidecar(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "IMG_1.JPG", []byte("pixels"))

	res := NewEngine(currentSignature(), nil).File(path)
	require.NoError(t, res.Err)
	require.Equal(t, StatusMissing, res.Status)
	require.Equal(t, []string{ReasonSidecarNotFound}, res.Reasons)
	require.Equal(t, ActionRescan, res.Suggested)
}

func TestFileCorruptInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "IMG_1.JPG", []byte("pixels"))
	require.NoError(t, os.WriteFile(sidecar.PathFor(path), []byte("{not json"), 0o644))

	res := NewEngine(currentSignature(), nil).File(path)
	require.Equal(t, StatusCorrupt, res.Status)
	require.Equal(t, []string{ReasonInvalidJSON}, res.Reasons)
	require.Equal(t, ActionRescan, res.Suggested)
}

func TestFileCorruptMissingField(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "IMG_1.JPG", []byte("pixels"))

	// Well-formed JSON lacking schema_version.
	record := map[string]any{
		"producer_version": "0.1.0",
		"source": map[string]any{
			"file_path":        path,
			"file_size_bytes":  6,
			"file_hash_b3":     "a3f2c1d4e5f6a3f2c1d4e5f6a3f2c1d4e5f6a3f2c1d4e5f6a3f2c1d4e5f6a3f2",
			"file_modified_at": "2020-06-15T10:30:00Z",
		},
	}
	data, err := json.Marshal(record)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(sidecar.PathFor(path), data, 0o644))

	res := NewEngine(currentSignature(), nil).File(path)
	require.Equal(t, StatusCorrupt, res.Status)
	require.Equal(t, []string{ReasonMissingFieldPrefix + "schema_version"}, res.Reasons)
	require.Equal(t, ActionRescan, res.Suggested)
}

func TestFileOk(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "IMG_1.JPG", []byte("pixels"))
	sig := currentSignature()
	scanFile(t, path, sig)

	res := NewEngine(sig, nil).File(path)
	require.NoError(t, res.Err)
	require.Equal(t, StatusOK, res.Status)
	require.Empty(t, res.Reasons)
	require.Equal(t, ActionNoop, res.Suggested)
}

func TestFileHashChanged(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "IMG_1.JPG", []byte("pixels v1"))
	sig := currentSignature()
	scanFile(t, path, sig)

	require.NoError(t, os.WriteFile(path, []byte("pixels v2"), 0o644))

	res := NewEngine(sig, nil).File(path)
	require.Equal(t, StatusStale, res.Status)
	require.Contains(t, res.Reasons, ReasonHashChanged)
	require.Equal(t, ActionRescan, res.Suggested)
}

func TestFileSchemaMismatchSuggestsMigrate(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "IMG_1.JPG", []byte("pixels"))

	old := currentSignature()
	old.SchemaVersion = "1.0.0"
	scanFile(t, path, old)

	res := NewEngine(currentSignature(), nil).File(path)
	require.Equal(t, StatusStale, res.Status)
	require.Equal(t, []string{ReasonSchemaMismatch}, res.Reasons)
	require.Equal(t, ActionMigrate, res.Suggested)
}

func TestContentDriftDominatesVersionDrift(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "IMG_1.JPG", []byte("pixels v1"))

	old := currentSignature()
	old.SchemaVersion = "1.0.0"
	scanFile(t, path, old)

	require.NoError(t, os.WriteFile(path, []byte("pixels v2"), 0o644))

	res := NewEngine(currentSignature(), nil).File(path)
	require.Equal(t, StatusStale, res.Status)
	require.Contains(t, res.Reasons, ReasonHashChanged)
	require.Contains(t, res.Reasons, ReasonSchemaMismatch)
	// Rescan re-derives a current-schema record; migration would reshape
	// stale facts.
	require.Equal(t, ActionRescan, res.Suggested)
}

func TestFileTouchedNoContentChangeIsInformational(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "IMG_1.JPG", []byte("pixels"))
	sig := currentSignature()
	scanFile(t, path, sig)

	// Bump mtime without changing bytes.
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))

	res := NewEngine(sig, nil).File(path)
	require.Equal(t, StatusOK, res.Status)
	require.Equal(t, []string{ReasonFileTouched}, res.Reasons)
	require.Equal(t, ActionNoop, res.Suggested)
}

func TestModelMismatchOnlyWhenFeaturePresent(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "IMG_1.JPG", []byte("pixels"))

	sig := currentSignature()
	sig.FaceModel = "arcface-1.3"
	s := scanFile(t, path, sig)

	current := currentSignature()
	current.FaceModel = "arcface-1.4"

	// No face data present: the model difference is invisible.
	res := NewEngine(current, nil).File(path)
	require.Equal(t, StatusOK, res.Status)

	// With face data present the model difference marks the record stale.
	s.Faces = json.RawMessage(`[{"bbox":[0.25,0.30,0.15,0.20],"score":0.95}]`)
	_, err := persist.Write(sidecar.PathFor(path), s, false)
	require.NoError(t, err)

	res = NewEngine(current, nil).File(path)
	require.Equal(t, StatusStale, res.Status)
	require.Equal(t, []string{ReasonProducerMismatch}, res.Reasons)
	require.Equal(t, ActionMigrate, res.Suggested)
}

func TestUnknownSchemaVersionIsStaleNotCorrupt(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "IMG_1.JPG", []byte("pixels"))

	odd := currentSignature()
	odd.SchemaVersion = "9.9.9"
	scanFile(t, path, odd)

	res := NewEngine(currentSignature(), nil).File(path)
	require.Equal(t, StatusStale, res.Status)
	require.Equal(t, ActionMigrate, res.Suggested)
}

func TestFileSourceUnreadable(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "IMG_1.JPG", []byte("pixels"))
	sig := currentSignature()
	scanFile(t, path, sig)

	require.NoError(t, os.Remove(path))

	res := NewEngine(sig, nil).File(path)
	require.Error(t, res.Err)
}
