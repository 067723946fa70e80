package currency

import (
	"net/http"
	"regexp"
	"time"
)

// Source records which step of the resolution produced the currency.
type Source string

const (
	SourceCookie    Source = "cookie"
	SourceHost      Source = "host"
	SourceHeuristic Source = "heuristic"
	SourceDefault   Source = "default"
)

// Input carries everything the resolver may look at.
type Input struct {
	// CookieHeader is the raw Cookie request header.
	CookieHeader string
	// HostCurrency is the value the storefront supplied at render time.
	HostCurrency string
	// PriceText is the text of the first visible, already rendered price.
	PriceText string
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Code   Code   `json:"currency"`
	Source Source `json:"source"`
	// Cookie is set when the currency must be written back to the visitor.
	Cookie *http.Cookie `json:"-"`
}

var cookieRe = regexp.MustCompile(`(?:^|;)\s*` + CookieName + `=([A-Z]{3})\s*(?:;|$)`)

// Resolver picks the visitor currency: cookie, then host value, then the
// symbol already shown in prices, then USD.
type Resolver struct {
	now func() time.Time
}

func NewResolver() *Resolver {
	return &Resolver{now: time.Now}
}

// Resolve never fails.
func (r *Resolver) Resolve(in Input) Resolution {
	if m := cookieRe.FindStringSubmatch(in.CookieHeader); m != nil {
		return Resolution{Code: Code(m[1]), Source: SourceCookie}
	}
	if c, ok := Parse(in.HostCurrency); ok {
		return Resolution{Code: c, Source: SourceHost, Cookie: NewCookie(c, r.now())}
	}
	if c, ok := Guess(in.PriceText); ok {
		return Resolution{Code: c, Source: SourceHeuristic}
	}
	return Resolution{Code: USD, Source: SourceDefault}
}
