package broker

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// MinScrubLength is the character count a value must exceed to be redacted. Shorter
// values would mangle ordinary text.
const MinScrubLength = 4

// Redacted replaces every scrubbed value.
const Redacted = "[REDACTED]"

// Scrub replaces every literal occurrence of each value longer than
// MinScrubLength with Redacted. Longer values are replaced first so a value
// that contains another is removed whole.
//
// Only exact substrings are matched. Encoded or truncated forms pass through.
func Scrub(content string, values []string) string {
	if content == "" || len(values) == 0 {
		return content
	}
	candidates := make([]string, 0, len(values))
	for _, v := range values {
		if utf8.RuneCountInString(v) > MinScrubLength {
			candidates = append(candidates, v)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i]) > len(candidates[j])
	})
	for _, v := range candidates {
		content = strings.ReplaceAll(content, v, Redacted)
	}
	return content
}
