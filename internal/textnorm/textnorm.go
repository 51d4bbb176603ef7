// Package textnorm provides the canonical text normalization used on both
// alert keywords and listing text, so "Réunion" and "reunion" compare equal.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lower-cases s, decomposes it and strips diacritical marks.
// Pure and total: malformed input falls back to plain lower-casing.
func Normalize(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return strings.ToLower(out)
}

// Fold normalizes and trims surrounding whitespace. Used where values are
// compared as identifiers (references) rather than as running text.
func Fold(s string) string {
	return strings.TrimSpace(Normalize(s))
}
