package sidecar

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is a closed set of schema versions with an explicit unknown
// fallback. Records carrying a well-formed but unrecognized version stay
// representable (and verify as stale, never corrupt); only malformed
// version strings are rejected, and only at input boundaries.
type Version struct {
	str   string
	known bool
}

// The recognized schema versions. CurrentVersion is what new records and
// default signatures carry.
var (
	V1_0_0 = Version{str: "1.0.0", known: true}
	V1_1_0 = Version{str: "1.1.0", known: true}
	V2_0_0 = Version{str: "2.0.0", known: true}

	CurrentVersion = V2_0_0
)

var knownVersions = map[string]Version{
	V1_0_0.str: V1_0_0,
	V1_1_0.str: V1_1_0,
	V2_0_0.str: V2_0_0,
}

// ParseVersion validates a user-supplied version string. Unrecognized but
// well-formed semver yields an unknown Version; malformed strings fail.
func ParseVersion(s string) (Version, error) {
	if v, ok := knownVersions[s]; ok {
		return v, nil
	}
	if !semver.IsValid("v" + s) {
		return Version{}, fmt.Errorf("invalid version string %q", s)
	}
	return Version{str: s}, nil
}

// VersionOf classifies a version string read from an existing record.
// It never fails: anything outside the recognized set, well-formed or
// not, comes back as unknown.
func VersionOf(s string) Version {
	if v, ok := knownVersions[s]; ok {
		return v
	}
	return Version{str: s}
}

// String returns the bare version string (no "v" prefix).
func (v Version) String() string { return v.str }

// Known reports whether the version is in the recognized set.
func (v Version) Known() bool { return v.known }

// IsZero reports whether the version is the empty value.
func (v Version) IsZero() bool { return v.str == "" }

// Compare orders two well-formed versions semver-wise.
func (v Version) Compare(other Version) int {
	return semver.Compare("v"+v.str, "v"+other.str)
}

// ValidHash reports whether h looks like a BLAKE3 content hash:
// exactly 64 lowercase hex characters.
func ValidHash(h string) bool {
	if len(h) != 64 {
		return false
	}
	return strings.IndexFunc(h, func(r rune) bool {
		return !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f')
	}) == -1
}
