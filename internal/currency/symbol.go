package currency

import (
	"regexp"
	"strings"
)

// Multi-character dollar variants come first so "C$" is never read as "$".
var detectOrder = []string{
	"MX$", "NZ$", "HK$", "US$", "C$", "A$", "S$", "R$",
	"$", "₹", "€", "£", "¥", "₩", "₽", "₪", "kr", "zł", "Fr",
}

// DetectSymbol returns the first known currency symbol found in text, or ""
// when the text carries none.
func DetectSymbol(text string) string {
	for _, s := range detectOrder {
		if strings.Contains(text, s) {
			return s
		}
	}
	return ""
}

var plainDollarRe = regexp.MustCompile(`(^|[^\p{L}])\$`)

// IsPlainDollar reports whether text shows a bare "$" that is not part of a
// prefixed dollar symbol such as "S$" or "US$".
func IsPlainDollar(text string) bool {
	return plainDollarRe.MatchString(text)
}

// Guess maps a symbol seen in rendered price text to a currency. Only
// unambiguous symbols are mapped.
func Guess(text string) (Code, bool) {
	switch {
	case strings.Contains(text, "₹"):
		return "INR", true
	case strings.Contains(text, "€"):
		return "EUR", true
	case strings.Contains(text, "£"):
		return "GBP", true
	}
	return "", false
}
