// Package platform normalizes streaming platform mentions found in free-text
// prompts. Users say "HBO" or "Prime"; providers report "Max" and
// "Amazon Prime Video". Matching here is pure string work with no I/O.
package platform

import "strings"

// aliases maps every recognized spelling, in lowercase, to the canonical
// platform name the streaming-availability provider reports.
var aliases = []struct {
	alias     string
	canonical string
}{
	{"netflix", "Netflix"},
	{"hulu", "Hulu"},
	{"amazon prime video", "Amazon Prime Video"},
	{"prime video", "Amazon Prime Video"},
	{"amazon", "Amazon Prime Video"},
	{"disney plus", "Disney Plus"},
	{"disney+", "Disney Plus"},
	{"max", "Max"},
	{"hbo max", "Max"},
	{"hbo", "Max"},
	{"peacock", "Peacock"},
	{"apple tv+", "Apple TV+"},
	{"apple tv", "Apple TV+"},
	{"apple", "Apple TV+"},
	{"paramount+", "Paramount+"},
	{"paramount plus", "Paramount+"},
	{"paramount", "Paramount+"},
	{"starz", "Starz"},
	{"showtime", "Showtime"},
	{"amc+", "AMC+"},
	{"amc", "AMC+"},
	{"crunchyroll", "Crunchyroll"},
	{"tubi", "Tubi"},
	{"pluto tv", "Pluto TV"},
	{"freevee", "Freevee"},
}

// Mentioned returns the canonical names of every platform mentioned in the
// prompt. Matching is a case-insensitive substring check, so "on hbo max"
// and "HBO" both yield "Max". The result is deduplicated and ordered by the
// alias table, which keeps output deterministic for a given prompt.
func Mentioned(prompt string) []string {
	normalized := strings.ToLower(prompt)

	var found []string
	seen := make(map[string]bool)
	for _, entry := range aliases {
		if !strings.Contains(normalized, entry.alias) {
			continue
		}
		if seen[entry.canonical] {
			continue
		}
		seen[entry.canonical] = true
		found = append(found, entry.canonical)
	}
	return found
}

// Canonical maps a single platform name to its canonical form. Names the
// table does not know pass through unchanged.
func Canonical(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	for _, entry := range aliases {
		if entry.alias == lower {
			return entry.canonical
		}
	}
	return strings.TrimSpace(name)
}
