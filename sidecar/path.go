package sidecar

import (
	"fmt"
	"strings"
)

// MaxBackups is the depth of the backup chain. Rotation discards the
// oldest slot when a fourth backup would be created.
const MaxBackups = 3

// PathFor returns the sidecar path for a source file: "<file-path>.json".
func PathFor(filePath string) string {
	return filePath + ".json"
}

// BackupPath returns the path of backup slot n (1..MaxBackups) for a
// sidecar path: "<sidecar-path>.bakN". Slot 1 is the most recent prior
// version.
func BackupPath(sidecarPath string, n int) string {
	return fmt.Sprintf("%s.bak%d", sidecarPath, n)
}

// IsSidecarPath reports whether path names a sidecar record.
func IsSidecarPath(path string) bool {
	return strings.HasSuffix(path, ".json")
}

// IsArtifactPath reports whether path names something sidecargo itself
// produces next to sidecars: a backup slot or an in-flight temp file.
// The batch walker skips these when selecting candidates.
func IsArtifactPath(path string) bool {
	for n := 1; n <= MaxBackups; n++ {
		if strings.HasSuffix(path, fmt.Sprintf(".json.bak%d", n)) {
			return true
		}
	}
	return strings.Contains(path, ".json.tmp-")
}
