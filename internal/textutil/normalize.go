// Package textutil holds the text normalization shared by every matcher.
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases s, strips diacritics, collapses whitespace and trims it.
// "Olá,  AMANHÃ" becomes "ola, amanha".
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(strings.ToLower(stripped)), " ")
}

// Digits returns only the decimal digits of s. Phone numbers are compared this way.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// E164 renders s as "+" followed by its digits, or "" when it has none.
func E164(s string) string {
	if d := Digits(s); d != "" {
		return "+" + d
	}
	return ""
}

// ContainsAny reports whether the normalized text contains any of the normalized needles.
func ContainsAny(normalized string, needles ...string) bool {
	for _, n := range needles {
		n = Normalize(n)
		if n != "" && strings.Contains(normalized, n) {
			return true
		}
	}
	return false
}
