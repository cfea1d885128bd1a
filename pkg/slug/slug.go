// Package slug derives URL-safe identifiers from business names.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

	// Letters that do not decompose into base + mark under NFD.
	special = strings.NewReplacer(
		"ß", "ss", "æ", "ae", "ø", "o", "œ", "oe", "ł", "l", "đ", "d", "ı", "i", "&", " and ",
	)
)

// Generate lowercases name, folds accents to ASCII and joins the remaining
// alphanumeric runs with single hyphens.
//
//	"Café Olé"          -> "cafe-ole"
//	"Straße & Söhne"    -> "strasse-and-sohne"
//	"  Hello   World! " -> "hello-world"
func Generate(name string) string {
	s := special.Replace(strings.ToLower(strings.TrimSpace(name)))

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}

	s = nonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// WithSuffix appends a short disambiguator, used when a slug is taken.
func WithSuffix(base, suffix string) string {
	if base == "" {
		return suffix
	}
	return base + "-" + suffix
}
