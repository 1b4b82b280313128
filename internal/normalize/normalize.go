// Package normalize provides utilities for normalizing and sanitizing
// metadata strings before they are stored or published.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Text canonicalizes a metadata string: Unicode NFC, interior whitespace
// collapsed, outer whitespace trimmed. Publisher metadata arrives with
// decomposed accents and stray tabs often enough that skipping this produces
// duplicate-looking titles.
func Text(s string) string {
	s = norm.NFC.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// Title normalizes a book title, additionally stripping a trailing
// parenthesized qualifier like "(Unabridged)" that some publishers append.
func Title(s string) string {
	s = Text(s)
	if i := strings.LastIndex(s, "("); i > 0 && strings.HasSuffix(s, ")") {
		qualifier := strings.ToLower(s[i+1 : len(s)-1])
		switch qualifier {
		case "unabridged", "abridged", "annotated", "illustrated":
			s = strings.TrimSpace(s[:i])
		}
	}
	return s
}

// Printable drops control characters while keeping all printable text,
// including non-Latin scripts.
func Printable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
}
