// Package pagecheck loads storefront pages in a real browser and reports
// prices the gateway left unfinished.
package pagecheck

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/better95159-hub/pricegate/internal/currency"
	"github.com/better95159-hub/pricegate/internal/pricedom"
)

const maxFindingText = 80

// Finding is one offending element.
type Finding struct {
	ProductID string `json:"product_id,omitempty"`
	Class     string `json:"class,omitempty"`
	Text      string `json:"text"`
}

// Report is the outcome of one page check.
type Report struct {
	ID        string        `json:"id"`
	URL       string        `json:"url"`
	Currency  currency.Code `json:"currency"`
	CheckedAt time.Time     `json:"checked_at"`
	HTMLBytes int           `json:"html_bytes"`

	Placeholders       int                   `json:"placeholders"`
	HiddenPlaceholders []Finding             `json:"hidden_placeholders"`
	Converted          map[currency.Code]int `json:"converted"`
	PlainDollarInCart  []Finding             `json:"plain_dollar_in_cart"`
}

// OK is false while any placeholder is still hidden.
func (r *Report) OK() bool { return len(r.HiddenPlaceholders) == 0 }

// Analyze inspects rendered page markup.
func Analyze(html string, contract pricedom.Contract) (*Report, error) {
	contract = contract.WithDefaults()
	doc, err := pricedom.ParseDocument(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	r := &Report{
		HTMLBytes:          len(html),
		HiddenPlaceholders: []Finding{},
		Converted:          map[currency.Code]int{},
		PlainDollarInCart:  []Finding{},
	}

	doc.Find(contract.PlaceholderSelector()).Each(func(_ int, el *goquery.Selection) {
		r.Placeholders++
		if pricedom.HiddenStyle(el.AttrOr("style", "")) || el.HasClass(contract.LoadingClass) {
			r.HiddenPlaceholders = append(r.HiddenPlaceholders, finding(el))
		}
	})
	doc.Find("[" + pricedom.ConvertedAttr + "]").Each(func(_ int, el *goquery.Selection) {
		r.Converted[currency.Code(el.AttrOr(pricedom.ConvertedAttr, ""))]++
	})
	pricedom.NewCartPass(contract).Remaining(doc).Each(func(_ int, el *goquery.Selection) {
		r.PlainDollarInCart = append(r.PlainDollarInCart, finding(el))
	})
	return r, nil
}

func finding(el *goquery.Selection) Finding {
	text := strings.Join(strings.Fields(el.Text()), " ")
	if r := []rune(text); len(r) > maxFindingText {
		text = string(r[:maxFindingText]) + "..."
	}
	return Finding{
		ProductID: el.AttrOr("data-product-id", ""),
		Class:     el.AttrOr("class", ""),
		Text:      text,
	}
}
