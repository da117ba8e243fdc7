package migrate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/sidecargo/persist"
	"github.com/hupe1980/sidecargo/sidecar"
)

func seedRecord(t *testing.T, dir, version string) (srcPath, scPath string) {
	t.Helper()

	srcPath = filepath.Join(dir, "IMG_1.JPG")
	require.NoError(t, os.WriteFile(srcPath, []byte("pixels"), 0o644))

	now := time.Date(2025, 1, 15, 14, 30, 0, 0, time.UTC)
	s := &sidecar.Sidecar{
		SchemaVersion:   version,
		ProducerVersion: "0.1.0",
		CreatedAt:       now,
		UpdatedAt:       now,
		PipelineSignature: sidecar.PipelineSignature{
			SchemaVersion:   version,
			ProducerVersion: "0.1.0",
			HashAlgorithm:   sidecar.HashAlgorithm,
			CreatedAt:       now,
		},
		Source: sidecar.SourceInfo{
			FilePath:       srcPath,
			FileSizeBytes:  6,
			FileHashB3:     "a3f2c1d4e5f6a3f2c1d4e5f6a3f2c1d4e5f6a3f2c1d4e5f6a3f2c1d4e5f6a3f2",
			FileModifiedAt: now.Add(-time.Hour),
		},
		Tags:       json.RawMessage(`[{"label":"Sunset","score":0.89},{"label":"beach","source":"ml"}]`),
		Thumbnails: json.RawMessage(`[{"path":"IMG_1_256.webp","size":256},{"path":"IMG_1_512.jpg","size":512,"format":"jpg"}]`),
	}

	scPath = sidecar.PathFor(srcPath)
	_, err := persist.Write(scPath, s, false)
	require.NoError(t, err)
	return srcPath, scPath
}

func readRecord(t *testing.T, scPath string) *sidecar.Sidecar {
	t.Helper()
	data, err := os.ReadFile(scPath)
	require.NoError(t, err)
	s, err := sidecar.Decode(data)
	require.NoError(t, err)
	return s
}

func snapshotTree(t *testing.T, dir string) map[string][]byte {
	t.Helper()
	out := map[string][]byte{}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		out[e.Name()] = data
	}
	return out
}

func TestMigrateUpgrade(t *testing.T) {
	dir := t.TempDir()
	src, scPath := seedRecord(t, dir, "1.0.0")

	e := NewEngine(nil, nil, "0.2.0")
	res, err := e.File(src, Options{To: "2.0.0", Backup: true})
	require.NoError(t, err)
	require.True(t, res.Migrated)
	require.Equal(t, "1.0.0", res.From)
	require.Equal(t, "2.0.0", res.To)
	require.Equal(t, sidecar.BackupPath(scPath, 1), res.BackupPath)
	require.FileExists(t, res.BackupPath)

	got := readRecord(t, scPath)
	require.Equal(t, "2.0.0", got.SchemaVersion)
	require.Equal(t, "2.0.0", got.PipelineSignature.SchemaVersion)
	require.Equal(t, "0.2.0", got.ProducerVersion)

	// Tag labels normalized, sources defaulted.
	var tags []map[string]any
	require.NoError(t, json.Unmarshal(got.Tags, &tags))
	require.Equal(t, "sunset", tags[0]["label"])
	require.Equal(t, "user", tags[0]["source"])
	require.Equal(t, "ml", tags[1]["source"])

	// Thumbnail formats derived from the path where missing.
	var thumbs []map[string]any
	require.NoError(t, json.Unmarshal(got.Thumbnails, &thumbs))
	require.Equal(t, "webp", thumbs[0]["format"])
	require.Equal(t, "jpg", thumbs[1]["format"])

	// Source identity untouched.
	require.Equal(t, "a3f2c1d4e5f6a3f2c1d4e5f6a3f2c1d4e5f6a3f2c1d4e5f6a3f2c1d4e5f6a3f2", got.Source.FileHashB3)
}

func TestMigrateIdentityIsNoop(t *testing.T) {
	dir := t.TempDir()
	src, scPath := seedRecord(t, dir, "2.0.0")
	before, err := os.ReadFile(scPath)
	require.NoError(t, err)

	for _, dryRun := range []bool{false, true} {
		res, err := NewEngine(nil, nil, "0.2.0").File(src, Options{
			From:   "2.0.0",
			To:     "2.0.0",
			DryRun: dryRun,
			Backup: true,
		})
		require.NoError(t, err)
		require.False(t, res.Migrated)
		require.Empty(t, res.BackupPath)
	}

	after, err := os.ReadFile(scPath)
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Empty(t, persist.Backups(scPath))
}

func TestMigrateAlreadyAtTargetResolvesToIdentity(t *testing.T) {
	dir := t.TempDir()
	src, scPath := seedRecord(t, dir, "2.0.0")
	before, err := os.ReadFile(scPath)
	require.NoError(t, err)

	// From omitted: the engine reads 2.0.0 from the record and
	// short-circuits on (2.0.0, 2.0.0).
	res, err := NewEngine(nil, nil, "0.2.0").File(src, Options{To: "2.0.0", Backup: true})
	require.NoError(t, err)
	require.False(t, res.Migrated)

	after, err := os.ReadFile(scPath)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestMigrateDryRunTouchesNothing(t *testing.T) {
	dir := t.TempDir()
	src, _ := seedRecord(t, dir, "1.0.0")
	before := snapshotTree(t, dir)

	res, err := NewEngine(nil, nil, "0.2.0").File(src, Options{
		To:     "2.0.0",
		DryRun: true,
		Backup: true,
	})
	require.NoError(t, err)
	require.True(t, res.Migrated)
	require.True(t, res.DryRun)
	require.Empty(t, res.BackupPath)

	require.Equal(t, before, snapshotTree(t, dir))
}

func TestMigrateUnknownPair(t *testing.T) {
	dir := t.TempDir()
	src, _ := seedRecord(t, dir, "1.1.0")

	_, err := NewEngine(nil, nil, "0.2.0").File(src, Options{To: "9.9.9"})
	var unknown *ErrUnknownPath
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "1.1.0", unknown.From)
	require.Equal(t, "9.9.9", unknown.To)
}

func TestMigrateBadVersionString(t *testing.T) {
	dir := t.TempDir()
	src, _ := seedRecord(t, dir, "1.0.0")

	_, err := NewEngine(nil, nil, "0.2.0").File(src, Options{To: "not-a-version"})
	var bad *ErrBadVersion
	require.ErrorAs(t, err, &bad)

	_, err = NewEngine(nil, nil, "0.2.0").File(src, Options{From: "also bad", To: "2.0.0"})
	require.ErrorAs(t, err, &bad)
}

func TestMigrateNoRecord(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "IMG_1.JPG")
	require.NoError(t, os.WriteFile(src, []byte("pixels"), 0o644))

	_, err := NewEngine(nil, nil, "0.2.0").File(src, Options{To: "2.0.0"})
	require.ErrorIs(t, err, ErrNoRecord)
}

func TestMigrateCorruptRecordWithFromOmitted(t *testing.T) {
	dir := t.TempDir()
	src, scPath := seedRecord(t, dir, "1.0.0")
	require.NoError(t, os.WriteFile(scPath, []byte("{broken"), 0o644))

	_, err := NewEngine(nil, nil, "0.2.0").File(src, Options{To: "2.0.0"})
	var corrupt *ErrCorruptRecord
	require.ErrorAs(t, err, &corrupt)

	// An explicit From does not rescue an undecodable record.
	_, err = NewEngine(nil, nil, "0.2.0").File(src, Options{From: "1.0.0", To: "2.0.0"})
	require.ErrorAs(t, err, &corrupt)
}

func TestMigrateBackupRotationDepth(t *testing.T) {
	dir := t.TempDir()
	src, scPath := seedRecord(t, dir, "1.0.0")

	// A registry that can bounce between two versions lets us run four
	// consecutive real migrations on one record.
	identityish := func(s *sidecar.Sidecar) error { return nil }
	reg := NewRegistry(map[Pair]Transform{
		{From: sidecar.V1_0_0, To: sidecar.V1_1_0}: identityish,
		{From: sidecar.V1_1_0, To: sidecar.V1_0_0}: identityish,
	})

	e := NewEngine(reg, nil, "0.2.0")
	for _, to := range []string{"1.1.0", "1.0.0", "1.1.0", "1.0.0"} {
		res, err := e.File(src, Options{To: to, Backup: true})
		require.NoError(t, err)
		require.True(t, res.Migrated)
	}

	// Exactly three backups: the 2nd, 3rd and 4th most recent prior
	// versions. The original (1.0.0 seed) fell off the chain.
	baks := persist.Backups(scPath)
	require.Len(t, baks, 3)

	require.Equal(t, "1.0.0", readRecord(t, scPath).SchemaVersion)
	require.Equal(t, "1.1.0", readRecord(t, baks[0]).SchemaVersion)
	require.Equal(t, "1.0.0", readRecord(t, baks[1]).SchemaVersion)
	require.Equal(t, "1.1.0", readRecord(t, baks[2]).SchemaVersion)
	require.NoFileExists(t, scPath+".bak4")
}

func TestTransformsAreIdempotent(t *testing.T) {
	s := &sidecar.Sidecar{
		Tags:       json.RawMessage(`[{"label":"Sunset","score":0.89}]`),
		Thumbnails: json.RawMessage(`[{"path":"IMG_1_256.webp","size":256}]`),
	}

	require.NoError(t, normalizeTags(s))
	require.NoError(t, defaultThumbnailFormats(s))
	once := [2]string{string(s.Tags), string(s.Thumbnails)}

	require.NoError(t, normalizeTags(s))
	require.NoError(t, defaultThumbnailFormats(s))
	require.Equal(t, once, [2]string{string(s.Tags), string(s.Thumbnails)})
}

func TestTransformsSkipAbsentSections(t *testing.T) {
	s := &sidecar.Sidecar{}
	require.NoError(t, normalizeTags(s))
	require.NoError(t, defaultThumbnailFormats(s))
	require.Nil(t, s.Tags)
	require.Nil(t, s.Thumbnails)
}

func TestRegistryIsImmutable(t *testing.T) {
	entries := map[Pair]Transform{
		{From: sidecar.V1_0_0, To: sidecar.V1_1_0}: normalizeTags,
	}
	reg := NewRegistry(entries)

	// Mutating the source map after construction changes nothing.
	delete(entries, Pair{From: sidecar.V1_0_0, To: sidecar.V1_1_0})
	_, ok := reg.Resolve(sidecar.V1_0_0, sidecar.V1_1_0)
	require.True(t, ok)

	_, ok = reg.Resolve(sidecar.V1_1_0, sidecar.V2_0_0)
	require.False(t, ok)
}
