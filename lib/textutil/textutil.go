// Package textutil normalizes and matches text scraped from portal
// markup, which carries inconsistent casing and whitespace.
package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Normalize lowercases text and collapses all whitespace so scraped
// strings can be compared regardless of markup formatting.
func Normalize(text string) string {
	text = strings.ToLower(text)
	text = strings.TrimSpace(text)
	return whitespaceRegex.ReplaceAllString(text, " ")
}

// MatchAny reports whether the normalized text contains any of the
// given markers. Markers must be lowercase.
func MatchAny(text string, markers ...string) bool {
	text = Normalize(text)
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}
