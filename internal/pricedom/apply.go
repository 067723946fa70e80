package pricedom

import (
	"html"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/better95159-hub/pricegate/internal/currency"
	"github.com/better95159-hub/pricegate/internal/pricecache"
	"github.com/better95159-hub/pricegate/internal/productid"
)

// ApplyStats counts what one Apply pass did.
type ApplyStats struct {
	Candidates    int `json:"candidates"`
	Applied       int `json:"applied"`
	Converted     int `json:"already_converted"`
	NoProduct     int `json:"no_product"`
	Unpriced      int `json:"unpriced"`
	ForeignSymbol int `json:"foreign_symbol"`
}

// Engine fills placeholders and converts product prices.
type Engine struct {
	contract  Contract
	resolvers []productid.Resolver
}

func NewEngine(c Contract) *Engine {
	return &Engine{contract: c.WithDefaults(), resolvers: productid.Cascade}
}

// Contract returns the DOM contract in use.
func (e *Engine) Contract() Contract { return e.contract }

// Apply writes the converted price of every candidate element whose product
// is in entry. Running it twice with the same inputs changes nothing the
// second time.
func (e *Engine) Apply(doc *goquery.Document, code currency.Code, entry *pricecache.Entry) ApplyStats {
	var stats ApplyStats
	if entry == nil {
		return stats
	}
	pc := &productid.Context{Selectors: e.contract.Product, Body: doc.Find("body").First()}
	marked := markedSelector(ConvertedAttr, code)

	doc.Find(e.contract.PriceSelector).Each(func(_ int, el *goquery.Selection) {
		if !attached(el.Get(0)) {
			return
		}
		stats.Candidates++
		if el.AttrOr(ConvertedAttr, "") == string(code) || el.ParentsFiltered(marked).Length() > 0 {
			stats.Converted++
			return
		}
		id, ok := productid.Resolve(pc, el, e.resolvers...)
		if !ok {
			stats.NoProduct++
			return
		}
		price, ok := entry.Prices[id]
		if !ok {
			stats.Unpriced++
			return
		}
		if !e.isPlaceholder(el) && !rendered(el) && elementSymbol(el) != "$" {
			stats.ForeignSymbol++
			return
		}

		el.SetHtml(renderPrice(entry.Symbol, price, code, entry.Rate))
		e.settle(el)
		el.RemoveAttr(StaleAttr)
		el.SetAttr(ConvertedAttr, string(code))
		stats.Applied++
	})
	return stats
}

// RevealPlaceholders makes every remaining placeholder visible and returns
// how many it changed. Used when prices are unavailable, so the visitor sees
// the server-rendered fallback instead of an empty slot.
func (e *Engine) RevealPlaceholders(doc *goquery.Document) int {
	n := 0
	doc.Find(e.contract.PlaceholderSelector()).Each(func(_ int, el *goquery.Selection) {
		if e.settle(el) {
			n++
		}
	})
	return n
}

// ClearMarkers turns conversion markers left for a currency other than code
// into stale markers, so the passes rewrite those elements again instead of
// taking them for server-rendered foreign prices.
func (e *Engine) ClearMarkers(doc *goquery.Document, code currency.Code) int {
	n := 0
	for _, m := range [][2]string{{ConvertedAttr, StaleAttr}, {btnConvertedAttr, btnStaleAttr}} {
		attr, stale := m[0], m[1]
		doc.Find("[" + attr + "]").Each(func(_ int, el *goquery.Selection) {
			old := el.AttrOr(attr, "")
			if old == string(code) {
				return
			}
			el.RemoveAttr(attr)
			el.SetAttr(stale, old)
			n++
		})
	}
	return n
}

// rendered reports whether el shows gateway output for some currency. The
// current currency is checked by the callers before.
func rendered(el *goquery.Selection) bool {
	if _, ok := el.Attr(StaleAttr); ok {
		return true
	}
	_, ok := el.Attr(ConvertedAttr)
	return ok
}

// FirstPriceText returns the text of the first server-rendered price.
func (e *Engine) FirstPriceText(doc *goquery.Document) string {
	return doc.Find(e.contract.VisiblePriceSelector).First().Text()
}

func (e *Engine) isPlaceholder(el *goquery.Selection) bool {
	_, ok := el.Attr(e.contract.PlaceholderAttr)
	return ok || el.HasClass(e.contract.PlaceholderClass)
}

// settle drops the loading state of el and reports whether anything changed.
func (e *Engine) settle(el *goquery.Selection) bool {
	changed := false
	if el.HasClass(e.contract.LoadingClass) {
		el.RemoveClass(e.contract.LoadingClass)
		if strings.TrimSpace(el.AttrOr("class", "")) == "" {
			el.RemoveAttr("class")
		}
		changed = true
	}
	if _, ok := el.Attr(e.contract.PlaceholderAttr); ok {
		el.RemoveAttr(e.contract.PlaceholderAttr)
		changed = true
	}
	if style, ok := el.Attr("style"); ok {
		if cleaned, hidden := stripHidden(style); hidden {
			if cleaned == "" {
				el.RemoveAttr("style")
			} else {
				el.SetAttr("style", cleaned)
			}
			changed = true
		}
	}
	return changed
}

// stripHidden removes visibility:hidden declarations from an inline style.
// HiddenStyle reports whether an inline style hides the element.
func HiddenStyle(style string) bool {
	_, hidden := stripHidden(style)
	return hidden
}

func stripHidden(style string) (string, bool) {
	var kept []string
	hidden := false
	for _, decl := range strings.Split(style, ";") {
		decl = strings.TrimSpace(decl)
		if decl == "" {
			continue
		}
		prop, val, _ := strings.Cut(decl, ":")
		if strings.EqualFold(strings.TrimSpace(prop), "visibility") &&
			strings.EqualFold(strings.TrimSpace(val), "hidden") {
			hidden = true
			continue
		}
		kept = append(kept, decl)
	}
	if !hidden {
		return style, false
	}
	if len(kept) == 0 {
		return "", true
	}
	return strings.Join(kept, "; ") + ";", true
}

// elementSymbol reads the currency symbol an element currently shows. The
// symbol child wins over the text; text without any symbol counts as $.
func elementSymbol(el *goquery.Selection) string {
	if sym := el.Find("." + symbolClass); sym.Length() > 0 {
		return strings.TrimSpace(sym.First().Text())
	}
	if s := currency.DetectSymbol(el.Text()); s != "" {
		return s
	}
	return "$"
}

func renderPrice(symbol string, p pricecache.ProductPrice, code currency.Code, rate float64) string {
	regular := currency.Convert(float64(p.Regular), code, rate)
	var sale int64
	if p.Sale > 0 {
		sale = currency.Convert(float64(p.Sale), code, rate)
	}
	if sale > 0 && sale < regular {
		return `<del aria-hidden="true">` + amountSpan(symbol, regular) + `</del> <ins>` + amountSpan(symbol, sale) + `</ins>`
	}
	return amountSpan(symbol, regular)
}

func amountSpan(symbol string, n int64) string {
	return `<span class="woocommerce-Price-amount amount">` + symbolSpan(symbol, n) + `</span>`
}

func symbolSpan(symbol string, n int64) string {
	return `<span class="` + symbolClass + `">` + html.EscapeString(symbol) + `</span>` + strconv.FormatInt(n, 10)
}

func markedSelector(attr string, code currency.Code) string {
	return "[" + attr + `="` + string(code) + `"]`
}
