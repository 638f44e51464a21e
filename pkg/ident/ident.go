// Package ident derives stable internal keys from human display names.
package ident

import (
	"strings"
	"unicode"
)

// Separator joins the alphanumeric runs of a derived key.
const Separator = '_'

// Derive converts a display name into a lower-case key. Runs of characters that
// are not letters or digits collapse to a single separator and leading or trailing
// separators are trimmed, so "Test Resource" becomes "test_resource".
// The result is empty when the name holds no letters or digits.
func Derive(displayName string) string {
	var b strings.Builder
	b.Grow(len(displayName))
	pending := false
	for _, r := range displayName {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pending && b.Len() > 0 {
				b.WriteRune(Separator)
			}
			pending = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		pending = true
	}
	return b.String()
}

// Valid reports whether key is already in canonical derived form.
func Valid(key string) bool {
	return key != "" && Derive(key) == key
}
