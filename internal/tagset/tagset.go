// Package tagset merges and deduplicates tag lists the way the emitter's
// tag manager requires: case-insensitive comparison, first-occurrence form
// preserved, order preserved, per SPEC_FULL.md §4.9 / spec.md §4.9
// (ported from
// original_source/tee/parser/output/ots/taggers/tag_manager.py's
// merge_tags).
package tagset

import (
	"golang.org/x/text/cases"
)

var foldCaser = cases.Fold()

// Merge concatenates moduleTags in front of entityTags and deduplicates the
// combined list case-insensitively, keeping each tag's first-seen casing.
func Merge(moduleTags, entityTags []string) []string {
	seen := make(map[string]bool, len(moduleTags)+len(entityTags))
	merged := make([]string, 0, len(moduleTags)+len(entityTags))

	add := func(tag string) {
		if tag == "" {
			return
		}
		key := foldCaser.String(tag)
		if seen[key] {
			return
		}
		seen[key] = true
		merged = append(merged, tag)
	}

	for _, t := range moduleTags {
		add(t)
	}
	for _, t := range entityTags {
		add(t)
	}
	return merged
}

// Equal reports whether two tags are the same under case-insensitive
// comparison — the equality relation Merge's dedup is built on.
func Equal(a, b string) bool {
	return foldCaser.String(a) == foldCaser.String(b)
}

