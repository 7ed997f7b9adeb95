// Package conflict finds duplicate identifiers between first-party and
// imported entities, per SPEC_FULL.md §4.8 / spec.md §4.8.
package conflict

import "sort"

// Detect returns the sorted intersection of firstParty and imported
// identifiers. A non-empty result is a fatal compilation error — callers
// wrap it in a CompilationError naming all duplicates.
func Detect(firstParty, imported []string) []string {
	seen := make(map[string]bool, len(firstParty))
	for _, id := range firstParty {
		seen[id] = true
	}

	dupSet := map[string]bool{}
	for _, id := range imported {
		if seen[id] {
			dupSet[id] = true
		}
	}

	dups := make([]string, 0, len(dupSet))
	for id := range dupSet {
		dups = append(dups, id)
	}
	sort.Strings(dups)
	return dups
}
