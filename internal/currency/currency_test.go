package currency

import (
	"math"
	"net/http"
	"testing"
	"time"
)

func TestConvertRoundsForeignAmounts(t *testing.T) {
	cases := []struct {
		amount float64
		code   Code
		rate   float64
		want   int64
	}{
		{10, "INR", 83, 830},
		{8, "INR", 83, 664},
		{19.99, "EUR", 0.92, 18},
		{0.5, "JPY", 1, 1},
		{10.4, USD, 83, 10},
		{10.5, USD, 1, 11},
		{12.2, "GBP", 0, 12},
	}
	for _, tc := range cases {
		if got := Convert(tc.amount, tc.code, tc.rate); got != tc.want {
			t.Fatalf("Convert(%v, %s, %v) = %d, want %d", tc.amount, tc.code, tc.rate, got, tc.want)
		}
	}
}

func TestConvertMatchesRoundedProduct(t *testing.T) {
	rates := map[Code]float64{"INR": 83.12, "EUR": 0.91, "KRW": 1330.5, USD: 1}
	for code, rate := range rates {
		for cents := 0; cents < 5000; cents += 37 {
			amount := float64(cents) / 100
			want := int64(math.Round(amount * rate))
			if code == USD {
				want = int64(math.Round(amount))
			}
			if got := Convert(amount, code, rate); got != want {
				t.Fatalf("Convert(%v, %s) = %d, want %d", amount, code, got, want)
			}
		}
	}
}

func TestParse(t *testing.T) {
	if c, ok := Parse(" inr "); !ok || c != "INR" {
		t.Fatalf("Parse(inr) = %q, %v", c, ok)
	}
	for _, bad := range []string{"", "US", "USDX", "U$D", "12A"} {
		if _, ok := Parse(bad); ok {
			t.Fatalf("Parse(%q) ok, want rejection", bad)
		}
	}
}

func TestIsPlainDollar(t *testing.T) {
	cases := map[string]bool{
		"$10.00":      true,
		"Total: $5":   true,
		"S$10":        false,
		"C$ 12":       false,
		"US$3":        false,
		"₹830":        false,
		"Pay $1,234":  true,
		"(incl. $2)":  true,
		"no currency": false,
	}
	for text, want := range cases {
		if got := IsPlainDollar(text); got != want {
			t.Fatalf("IsPlainDollar(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestDetectSymbolPrefersPrefixedDollars(t *testing.T) {
	cases := map[string]string{
		"C$12":  "C$",
		"$12":   "$",
		"₹830":  "₹",
		"12 zł": "zł",
		"12":    "",
	}
	for text, want := range cases {
		if got := DetectSymbol(text); got != want {
			t.Fatalf("DetectSymbol(%q) = %q, want %q", text, got, want)
		}
	}
}

func TestResolvePriority(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := &Resolver{now: func() time.Time { return now }}

	got := r.Resolve(Input{CookieHeader: "a=b; user_currency=EUR", HostCurrency: "INR", PriceText: "£5"})
	if got.Code != "EUR" || got.Source != SourceCookie || got.Cookie != nil {
		t.Fatalf("cookie resolution = %+v", got)
	}

	got = r.Resolve(Input{CookieHeader: "user_currency=bad", HostCurrency: "inr", PriceText: "£5"})
	if got.Code != "INR" || got.Source != SourceHost {
		t.Fatalf("host resolution = %+v", got)
	}
	if got.Cookie == nil {
		t.Fatal("host resolution must write the cookie back")
	}
	if got.Cookie.Name != CookieName || got.Cookie.Value != "INR" || got.Cookie.Path != "/" {
		t.Fatalf("cookie = %+v", got.Cookie)
	}
	if want := now.Add(30 * 24 * time.Hour); !got.Cookie.Expires.Equal(want) {
		t.Fatalf("cookie expires = %v, want %v", got.Cookie.Expires, want)
	}
	if got.Cookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("cookie SameSite = %v", got.Cookie.SameSite)
	}

	got = r.Resolve(Input{PriceText: "From £12.00"})
	if got.Code != "GBP" || got.Source != SourceHeuristic {
		t.Fatalf("heuristic resolution = %+v", got)
	}

	got = r.Resolve(Input{PriceText: "$12.00"})
	if got.Code != USD || got.Source != SourceDefault {
		t.Fatalf("default resolution = %+v", got)
	}
}

func TestResolveCookieNameAndValueMustMatchExactly(t *testing.T) {
	tests := []struct {
		header string
		want   Code
		source Source
	}{
		{"user_currency=EUR", "EUR", SourceCookie},
		{"a=b;user_currency=GBP; c=d", "GBP", SourceCookie},
		{" user_currency=INR ", "INR", SourceCookie},
		{"xuser_currency=EUR", USD, SourceDefault},
		{"user_currency=EURO", USD, SourceDefault},
		{"a=user_currency=EUR", USD, SourceDefault},
	}
	r := NewResolver()
	for _, tt := range tests {
		got := r.Resolve(Input{CookieHeader: tt.header})
		if got.Code != tt.want || got.Source != tt.source {
			t.Fatalf("Resolve(%q) = %s (%s), want %s (%s)", tt.header, got.Code, got.Source, tt.want, tt.source)
		}
	}
}

func TestSymbolFallsBackToDollar(t *testing.T) {
	if got := Symbol("INR"); got != "₹" {
		t.Fatalf("Symbol(INR) = %q", got)
	}
	if got := Symbol("XYZ"); got != "$" {
		t.Fatalf("Symbol(XYZ) = %q", got)
	}
}
