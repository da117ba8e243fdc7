// Package migrate transforms sidecar records between schema versions,
// writing through the atomic persistence layer.
//
// Migrations are resolved in a finite, immutable registry keyed by
// (from, to). There is no ambient global table and no multi-hop chaining:
// a registry that wants "1.0.0 to 2.0.0" registers the pre-composed
// transform explicitly.
package migrate

import (
	"github.com/hupe1980/sidecargo/sidecar"
)

// Transform rewrites a record in place from one schema version to the
// next. Transforms must be idempotent: applied to already-migrated data
// they change nothing. The engine owns updating schema_version itself.
type Transform func(s *sidecar.Sidecar) error

// Pair identifies one registered migration.
type Pair struct {
	From sidecar.Version
	To   sidecar.Version
}

// Registry is an immutable mapping from (from, to) pairs to transforms.
// Build it once and pass it by reference into the Engine.
type Registry struct {
	transforms map[Pair]Transform
}

// NewRegistry builds a registry from the given entries. The map is copied;
// later changes to it do not affect the registry.
func NewRegistry(entries map[Pair]Transform) *Registry {
	m := make(map[Pair]Transform, len(entries))
	for p, t := range entries {
		m[p] = t
	}
	return &Registry{transforms: m}
}

// Resolve looks up the transform for (from, to). The identity pair is
// never in the registry; the engine short-circuits it before resolving.
func (r *Registry) Resolve(from, to sidecar.Version) (Transform, bool) {
	t, ok := r.transforms[Pair{From: from, To: to}]
	return t, ok
}

// Pairs returns the registered pairs, for diagnostics.
func (r *Registry) Pairs() []Pair {
	out := make([]Pair, 0, len(r.transforms))
	for p := range r.transforms {
		out = append(out, p)
	}
	return out
}

// DefaultRegistry returns the built-in migrations:
//
//	1.0.0 -> 1.1.0  normalize tag entries
//	1.1.0 -> 2.0.0  default thumbnail formats
//	1.0.0 -> 2.0.0  pre-composed combination of the two
func DefaultRegistry() *Registry {
	return NewRegistry(map[Pair]Transform{
		{From: sidecar.V1_0_0, To: sidecar.V1_1_0}: normalizeTags,
		{From: sidecar.V1_1_0, To: sidecar.V2_0_0}: defaultThumbnailFormats,
		{From: sidecar.V1_0_0, To: sidecar.V2_0_0}: compose(normalizeTags, defaultThumbnailFormats),
	})
}

func compose(transforms ...Transform) Transform {
	return func(s *sidecar.Sidecar) error {
		for _, t := range transforms {
			if err := t(s); err != nil {
				return err
			}
		}
		return nil
	}
}
