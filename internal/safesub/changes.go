package safesub

import "golang.org/x/text/cases"

// Describe renders edits as "old → new" fragments.
func Describe(edits []Edit) []string {
	out := make([]string, 0, len(edits))
	for _, e := range edits {
		out = append(out, e.String())
	}
	return out
}

// Dedupe drops change fragments that repeat an earlier one, ignoring case.
// The first spelling seen is kept.
func Dedupe(changes []string) []string {
	fold := cases.Fold()
	seen := make(map[string]bool, len(changes))
	out := make([]string, 0, len(changes))
	for _, c := range changes {
		key := fold.String(c)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}
