package currency

import (
	"math"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// CookieName is the cookie shared with the storefront scripts.
const CookieName = "user_currency"

// CookieMaxAge is how long a resolved currency is remembered.
const CookieMaxAge = 30 * 24 * time.Hour

// USD is the base currency of every stored price.
const USD Code = "USD"

// Code is a 3-letter ISO 4217 currency code.
type Code string

var codeRe = regexp.MustCompile(`^[A-Z]{3}$`)

// Valid reports whether c is three uppercase ASCII letters.
func (c Code) Valid() bool {
	return codeRe.MatchString(string(c))
}

func (c Code) String() string { return string(c) }

// Parse normalizes s into a Code. The second result is false when s is not a
// 3-letter code.
func Parse(s string) (Code, bool) {
	c := Code(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", false
	}
	return c, true
}

var symbols = map[Code]string{
	"USD": "$",
	"INR": "₹",
	"EUR": "€",
	"GBP": "£",
	"CAD": "C$",
	"AUD": "A$",
	"SGD": "S$",
	"JPY": "¥",
	"CNY": "¥",
	"KRW": "₩",
	"RUB": "₽",
	"ILS": "₪",
	"SEK": "kr",
	"NOK": "kr",
	"DKK": "kr",
	"PLN": "zł",
	"CHF": "Fr",
	"AED": "د.إ",
	"BRL": "R$",
	"MXN": "MX$",
	"NZD": "NZ$",
	"HKD": "HK$",
	"ZAR": "R",
}

// Symbol returns the display symbol for c, or "$" when unknown.
func Symbol(c Code) string {
	if s, ok := symbols[c]; ok {
		return s
	}
	return "$"
}

// Convert turns a USD amount into whole units of c. Prices are rounded to
// integers for every currency; sub-units are never displayed.
func Convert(amount float64, c Code, rate float64) int64 {
	if c != USD && rate > 0 {
		return int64(math.Round(amount * rate))
	}
	return int64(math.Round(amount))
}

// NewCookie builds the currency cookie written back after the host page
// supplied a currency.
func NewCookie(c Code, now time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    string(c),
		Path:     "/",
		Expires:  now.Add(CookieMaxAge).UTC(),
		MaxAge:   int(CookieMaxAge / time.Second),
		SameSite: http.SameSiteLaxMode,
	}
}
