package util

import (
	"strings"
	"unicode"
)

// SanitizeString trims whitespace and removes control characters from s.
func SanitizeString(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// SanitizeTranscript cleans provider transcript text for storage: leading and
// trailing whitespace is trimmed and control characters are dropped, except
// newlines and tabs which carry transcript structure.
func SanitizeTranscript(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
