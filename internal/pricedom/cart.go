package pricedom

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/better95159-hub/pricegate/internal/currency"
	"github.com/better95159-hub/pricegate/internal/pricecache"
)

// CartStats counts what one cart pass did.
type CartStats struct {
	Candidates int  `json:"candidates"`
	Converted  int  `json:"converted"`
	Button     bool `json:"button"`
}

// CartPass converts amounts that the cart, mini-cart and checkout render in
// USD. Those amounts are totals rather than catalogue prices, so they are
// converted from the text they show, not from the price table.
type CartPass struct {
	contract Contract
}

func NewCartPass(c Contract) *CartPass {
	return &CartPass{contract: c.WithDefaults()}
}

// HasCartContext reports whether doc contains any cart or checkout container.
func (p *CartPass) HasCartContext(doc *goquery.Document) bool {
	return doc.Find(p.contract.CartContainers).Length() > 0 ||
		doc.Find(p.contract.PlaceOrderButton).Length() > 0
}

// Convert rewrites plain-dollar amounts inside cart containers and the
// place-order button label. For USD, or a rate of 1, only amounts converted
// earlier for another currency are rewritten back.
func (p *CartPass) Convert(doc *goquery.Document, code currency.Code, entry *pricecache.Entry) CartStats {
	var stats CartStats
	if entry == nil || entry.Rate <= 0 {
		return stats
	}
	restoreOnly := code == currency.USD || entry.Rate == 1
	marked := markedSelector(ConvertedAttr, code)

	doc.Find(p.contract.CartContainers).Find(p.contract.CartPriceSelector).Each(func(_ int, el *goquery.Selection) {
		if !attached(el.Get(0)) {
			return
		}
		stats.Candidates++
		if el.AttrOr(ConvertedAttr, "") == string(code) || el.ParentsFiltered(marked).Length() > 0 {
			return
		}
		if el.Closest(p.contract.TitleRegions).Length() > 0 &&
			el.Closest(p.contract.ProductTotalRegions).Length() == 0 {
			return
		}
		target := el
		if bdi := el.Find("bdi").First(); bdi.Length() > 0 {
			target = bdi
		}
		amount, ok := baseAmount(el)
		if !ok || !rendered(el) {
			if restoreOnly {
				return
			}
			text := el.Text()
			if entry.Symbol != "$" && strings.Contains(text, entry.Symbol) {
				return
			}
			if !showsPlainDollar(el, text) {
				return
			}
			if amount, ok = parseAmount(target.Text()); !ok {
				return
			}
		}
		target.SetHtml(symbolSpan(entry.Symbol, currency.Convert(amount, code, entry.Rate)))
		el.RemoveAttr(StaleAttr)
		el.SetAttr(ConvertedAttr, string(code))
		el.SetAttr(baseAmountAttr, formatAmount(amount))
		stats.Converted++
	})

	doc.Find(p.contract.PlaceOrderButton).Each(func(_ int, btn *goquery.Selection) {
		if _, shown := btn.Attr(btnShownAttr); restoreOnly && !shown {
			return
		}
		if convertButton(btn, code, entry) {
			stats.Button = true
		}
	})
	return stats
}

// Remaining selects the cart prices that still show a plain dollar amount.
// Title regions are excluded the same way Convert excludes them.
func (p *CartPass) Remaining(doc *goquery.Document) *goquery.Selection {
	return doc.Find(p.contract.CartContainers).Find(p.contract.CartPriceSelector).FilterFunction(func(_ int, el *goquery.Selection) bool {
		if el.Closest(p.contract.TitleRegions).Length() > 0 &&
			el.Closest(p.contract.ProductTotalRegions).Length() == 0 {
			return false
		}
		if _, ok := parseAmount(el.Text()); !ok {
			return false
		}
		return showsPlainDollar(el, el.Text())
	})
}

func showsPlainDollar(el *goquery.Selection, text string) bool {
	if sym := el.Find("." + symbolClass); sym.Length() > 0 {
		return strings.TrimSpace(sym.First().Text()) == "$"
	}
	return currency.IsPlainDollar(text)
}

// parseAmount keeps digits and dots, then reads up to the second dot.
// "$1,234.50" is 1234.5; zero and empty amounts are rejected.
func parseAmount(text string) (float64, bool) {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if first := strings.IndexByte(s, '.'); first >= 0 {
		if second := strings.IndexByte(s[first+1:], '.'); second >= 0 {
			s = s[:first+1+second]
		}
	}
	if s == "" || s == "." {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v == 0 || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

var buttonAmount = regexp.MustCompile(`(^|[^\p{L}])\$(\d[\d,]*(?:\.\d+)?)`)

// findDollar locates the first plain-dollar amount in s. start is where the
// $ sits and end is past the last digit.
func findDollar(s string) (start, end int, amount float64, ok bool) {
	loc := buttonAmount.FindStringSubmatchIndex(s)
	if loc == nil {
		return 0, 0, 0, false
	}
	amount, err := strconv.ParseFloat(strings.ReplaceAll(s[loc[4]:loc[5]], ",", ""), 64)
	if err != nil {
		return 0, 0, 0, false
	}
	// loc[3] is the end of the boundary group, where the $ starts.
	return loc[3], loc[5], amount, true
}

// replaceDollar rewrites the first plain-dollar amount in s.
func replaceDollar(s, symbol string, code currency.Code, rate float64) (string, bool) {
	start, end, amount, ok := findDollar(s)
	if !ok {
		return s, false
	}
	return s[:start] + shownAmount(symbol, amount, code, rate) + s[end:], true
}

func shownAmount(symbol string, amount float64, code currency.Code, rate float64) string {
	return symbol + strconv.FormatInt(currency.Convert(amount, code, rate), 10)
}

func baseAmount(el *goquery.Selection) (float64, bool) {
	v, err := strconv.ParseFloat(el.AttrOr(baseAmountAttr, ""), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// convertButton rewrites the amount in the place-order label. The label is
// owned by the payment plugin, so only text nodes and the value attributes
// are touched and the inner markup is kept. A label converted before for
// another currency is rewritten from the USD amount it was converted from.
func convertButton(btn *goquery.Selection, code currency.Code, entry *pricecache.Entry) bool {
	if btn.AttrOr(btnConvertedAttr, "") == string(code) {
		return false
	}
	var (
		base  float64
		shown string
	)
	replace := func(s string) (string, bool) {
		start, end, amount, ok := findDollar(s)
		if !ok {
			return s, false
		}
		base, shown = amount, shownAmount(entry.Symbol, amount, code, entry.Rate)
		return s[:start] + shown + s[end:], true
	}
	if prev, ok := btn.Attr(btnShownAttr); ok {
		amount, ok := baseAmount(btn)
		if !ok || prev == "" {
			return false
		}
		base, shown = amount, shownAmount(entry.Symbol, amount, code, entry.Rate)
		replace = func(s string) (string, bool) {
			if !strings.Contains(s, prev) {
				return s, false
			}
			return strings.Replace(s, prev, shown, 1), true
		}
	}

	changed := false
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.TextNode {
			if out, ok := replace(n.Data); ok {
				n.Data = out
				return true
			}
			return false
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	for _, n := range btn.Nodes {
		if walk(n) {
			changed = true
		}
	}
	for _, attr := range []string{"value", "data-value"} {
		v, ok := btn.Attr(attr)
		if !ok {
			continue
		}
		if out, ok := replace(v); ok {
			btn.SetAttr(attr, out)
			changed = true
		}
	}
	if changed {
		btn.RemoveAttr(btnStaleAttr)
		btn.SetAttr(btnConvertedAttr, string(code))
		btn.SetAttr(btnShownAttr, shown)
		btn.SetAttr(baseAmountAttr, formatAmount(base))
	}
	return changed
}
