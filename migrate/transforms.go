package migrate

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/hupe1980/sidecargo/sidecar"
)

// The built-in transforms only touch the feature sections they target;
// everything else passes through untouched. They decode the raw section
// into generic maps so unknown keys written by feature modules survive
// the rewrite.

// normalizeTags (1.0.0 -> 1.1.0) lowercases tag labels and defaults the
// tag source to "user" where older producers omitted it. Already-normal
// entries come through unchanged, so reapplication is a no-op.
func normalizeTags(s *sidecar.Sidecar) error {
	if len(s.Tags) == 0 {
		return nil
	}

	var tags []map[string]any
	if err := json.Unmarshal(s.Tags, &tags); err != nil {
		return fmt.Errorf("migrate: tags section: %w", err)
	}

	for _, tag := range tags {
		if label, ok := tag["label"].(string); ok {
			tag["label"] = strings.ToLower(label)
		}
		if _, ok := tag["source"]; !ok {
			tag["source"] = "user"
		}
	}

	out, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("migrate: tags section: %w", err)
	}
	s.Tags = out
	return nil
}

// defaultThumbnailFormats (1.1.0 -> 2.0.0) fills in the "format" field on
// thumbnail entries that predate it, deriving it from the thumbnail path
// extension and falling back to "jpg".
func defaultThumbnailFormats(s *sidecar.Sidecar) error {
	if len(s.Thumbnails) == 0 {
		return nil
	}

	var thumbs []map[string]any
	if err := json.Unmarshal(s.Thumbnails, &thumbs); err != nil {
		return fmt.Errorf("migrate: thumbnails section: %w", err)
	}

	for _, thumb := range thumbs {
		if _, ok := thumb["format"]; ok {
			continue
		}
		format := "jpg"
		if p, ok := thumb["path"].(string); ok {
			if i := strings.LastIndex(p, "."); i >= 0 && i < len(p)-1 {
				format = strings.ToLower(p[i+1:])
			}
		}
		thumb["format"] = format
	}

	out, err := json.Marshal(thumbs)
	if err != nil {
		return fmt.Errorf("migrate: thumbnails section: %w", err)
	}
	s.Thumbnails = out
	return nil
}
