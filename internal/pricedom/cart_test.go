package pricedom

import (
	"strings"
	"testing"

	"github.com/better95159-hub/pricegate/internal/currency"
	"github.com/better95159-hub/pricegate/internal/pricecache"
)

const miniCart = `<body><div class="widget_shopping_cart"><ul><li>` +
	`<a href="/product/widget">Widget <span id="title" class="woocommerce-Price-amount amount"><bdi>` +
	`<span class="woocommerce-Price-currencySymbol">$</span>99.00</bdi></span></a></li></ul>` +
	`<p class="woocommerce-mini-cart__total"><span id="total" class="woocommerce-Price-amount amount"><bdi>` +
	`<span class="woocommerce-Price-currencySymbol">$</span>1,234.50</bdi></span></p>` +
	`<p><span id="sgd" class="woocommerce-Price-amount amount"><bdi>` +
	`<span class="woocommerce-Price-currencySymbol">S$</span>20.00</bdi></span></p>` +
	`</div></body>`

func TestCartPassConvertsPlainDollarTotals(t *testing.T) {
	doc := mustParse(t, miniCart)
	p := NewCartPass(DefaultContract())

	stats := p.Convert(doc, "INR", inrEntry(map[string]pricecache.ProductPrice{}))
	if stats.Converted != 1 {
		t.Fatalf("Convert() stats = %+v, want 1 converted", stats)
	}
	bdi, _ := doc.Find("#total bdi").Html()
	if bdi != `<span class="woocommerce-Price-currencySymbol">₹</span>102464` {
		t.Fatalf("total bdi = %q", bdi)
	}
	if doc.Find("#total").AttrOr("data-converted", "") != "INR" {
		t.Fatal("total not marked")
	}
	if got := doc.Find("#title").Text(); got != "$99.00" {
		t.Fatalf("title price = %q, want untouched", got)
	}
	if got := doc.Find("#sgd").Text(); got != "S$20.00" {
		t.Fatalf("S$ price = %q, want untouched", got)
	}

	again := p.Convert(doc, "INR", inrEntry(map[string]pricecache.ProductPrice{}))
	if again.Converted != 0 {
		t.Fatalf("second Convert() = %+v, want nothing converted", again)
	}
}

func TestCartPassProductTotalInsideTitleRegion(t *testing.T) {
	doc := mustParse(t, `<body><table class="shop_table"><tr class="cart_item">`+
		`<td class="product-name">Widget</td>`+
		`<td class="product-total product-name"><span id="line" class="woocommerce-Price-amount amount">$10.00</span></td>`+
		`</tr></table></body>`)

	NewCartPass(DefaultContract()).Convert(doc, "INR", inrEntry(map[string]pricecache.ProductPrice{}))
	if got := doc.Find("#line").Text(); got != "₹830" {
		t.Fatalf("line total = %q, want ₹830", got)
	}
}

func TestCartPassPlainTextDollar(t *testing.T) {
	doc := mustParse(t, `<body><div class="cart_totals">`+
		`<span id="plain" class="amount">$5.00</span><span id="us" class="amount">US$5.00</span>`+
		`<span id="zero" class="amount">$0.00</span></div></body>`)

	stats := NewCartPass(DefaultContract()).Convert(doc, "INR", inrEntry(map[string]pricecache.ProductPrice{}))
	if stats.Converted != 1 {
		t.Fatalf("Convert() = %+v, want 1", stats)
	}
	if got := doc.Find("#plain").Text(); got != "₹415" {
		t.Fatalf("plain = %q", got)
	}
	if got := doc.Find("#us").Text(); got != "US$5.00" {
		t.Fatalf("US$ = %q", got)
	}
	if got := doc.Find("#zero").Text(); got != "$0.00" {
		t.Fatalf("zero = %q", got)
	}
}

func TestCartPassNoOpForUSDOrUnitRate(t *testing.T) {
	entry := inrEntry(map[string]pricecache.ProductPrice{})
	doc := mustParse(t, miniCart)
	if s := NewCartPass(DefaultContract()).Convert(doc, currency.USD, entry); s.Converted != 0 || s.Button {
		t.Fatalf("Convert(USD) = %+v", s)
	}
	if got := doc.Find("#total").Text(); got != "$1,234.50" {
		t.Fatalf("total = %q, want untouched", got)
	}
	entry.Rate = 1
	if s := NewCartPass(DefaultContract()).Convert(doc, "INR", entry); s.Converted != 0 {
		t.Fatalf("Convert(rate 1) = %+v", s)
	}
}

func TestCartPassPlaceOrderButton(t *testing.T) {
	doc := mustParse(t, `<body><form class="checkout"><button type="submit" id="place_order" `+
		`value="Place order $45.00" data-value="Place order $45.00">Place order <strong>$45.00</strong></button></form></body>`)
	p := NewCartPass(DefaultContract())

	stats := p.Convert(doc, "INR", inrEntry(map[string]pricecache.ProductPrice{}))
	if !stats.Button {
		t.Fatalf("Convert() = %+v, want button converted", stats)
	}
	btn := doc.Find("#place_order")
	if got := btn.Text(); got != "Place order ₹3735" {
		t.Fatalf("button text = %q", got)
	}
	if btn.Find("strong").Length() != 1 {
		t.Fatal("button markup lost")
	}
	for _, attr := range []string{"value", "data-value"} {
		if got := btn.AttrOr(attr, ""); got != "Place order ₹3735" {
			t.Fatalf("%s = %q", attr, got)
		}
	}
	if btn.AttrOr("data-btn-converted", "") != "INR" {
		t.Fatal("button not marked")
	}
	if again := p.Convert(doc, "INR", inrEntry(map[string]pricecache.ProductPrice{})); again.Button {
		t.Fatal("button converted twice")
	}
}

func TestCartPassReconvertsAfterCurrencyChange(t *testing.T) {
	doc := mustParse(t, miniCart+`<button id="place_order" value="Place order $45.00">Place order <strong>$45.00</strong></button>`)
	p := NewCartPass(DefaultContract())
	p.Convert(doc, "INR", inrEntry(map[string]pricecache.ProductPrice{}))

	if n := NewEngine(DefaultContract()).ClearMarkers(doc, "EUR"); n != 2 {
		t.Fatalf("ClearMarkers() = %d, want 2", n)
	}
	stats := p.Convert(doc, "EUR", eurEntry(map[string]pricecache.ProductPrice{}))
	if stats.Converted != 1 || !stats.Button {
		t.Fatalf("Convert(EUR) = %+v, want total and button converted", stats)
	}
	if got := doc.Find("#total").Text(); got != "€1136" {
		t.Fatalf("total = %q, want €1136", got)
	}
	if got := doc.Find("#total").AttrOr("data-converted", ""); got != "EUR" {
		t.Fatalf("total data-converted = %q, want EUR", got)
	}
	btn := doc.Find("#place_order")
	if got := btn.Text(); got != "Place order €41" {
		t.Fatalf("button text = %q", got)
	}
	if got := btn.AttrOr("value", ""); got != "Place order €41" {
		t.Fatalf("button value = %q", got)
	}
	if got := doc.Find("#title").Text(); got != "$99.00" {
		t.Fatalf("title price = %q, want untouched", got)
	}

	NewEngine(DefaultContract()).ClearMarkers(doc, currency.USD)
	usd := &pricecache.Entry{Prices: map[string]pricecache.ProductPrice{}, Currency: currency.USD, Symbol: "$", Rate: 1}
	if s := p.Convert(doc, currency.USD, usd); s.Converted != 1 || !s.Button {
		t.Fatalf("Convert(USD) = %+v, want total and button restored", s)
	}
	if got := doc.Find("#total").Text(); got != "$1235" {
		t.Fatalf("total = %q, want $1235", got)
	}
	if got := btn.Text(); got != "Place order $45" {
		t.Fatalf("button text = %q", got)
	}
}

func TestReplaceDollar(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"Pay $1,000.50 now", "Pay ₹83042 now", true},
		{"$10", "₹830", true},
		{"Pay S$10", "Pay S$10", false},
		{"Place order", "Place order", false},
	}
	for _, tt := range tests {
		got, ok := replaceDollar(tt.in, "₹", "INR", 83)
		if got != tt.want || ok != tt.wantOK {
			t.Fatalf("replaceDollar(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"$1,234.50", 1234.5, true},
		{"1.2.3", 1.2, true},
		{"$0.00", 0, false},
		{"free", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseAmount(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Fatalf("parseAmount(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestFragmentKeepsTableRows(t *testing.T) {
	f, err := ParseFragment(`<tr class="order-total"><th>Total</th><td><span class="woocommerce-Price-amount amount">$10.00</span></td></tr>`)
	if err != nil {
		t.Fatalf("ParseFragment() error = %v", err)
	}
	stats := NewCartPass(DefaultContract()).Convert(f.Document(), "INR", inrEntry(map[string]pricecache.ProductPrice{}))
	if stats.Converted != 1 {
		t.Fatalf("Convert() = %+v", stats)
	}
	out, err := f.HTML()
	if err != nil {
		t.Fatalf("HTML() error = %v", err)
	}
	if !strings.HasPrefix(out, `<tr class="order-total">`) || !strings.Contains(out, "₹</span>830") {
		t.Fatalf("HTML() = %q", out)
	}
}

func TestHasCartContext(t *testing.T) {
	p := NewCartPass(DefaultContract())
	if !p.HasCartContext(mustParse(t, miniCart)) {
		t.Fatal("mini cart not detected")
	}
	if p.HasCartContext(mustParse(t, `<body><p class="price">$1</p></body>`)) {
		t.Fatal("plain page detected as cart")
	}
}

func TestCartPassRemaining(t *testing.T) {
	doc := mustParse(t, miniCart)
	p := NewCartPass(DefaultContract())

	left := p.Remaining(doc)
	if left.Length() != 1 || left.AttrOr("id", "") != "total" {
		t.Fatalf("Remaining() = %d elements, want #total only", left.Length())
	}
	p.Convert(doc, "INR", inrEntry(map[string]pricecache.ProductPrice{}))
	if n := p.Remaining(doc).Length(); n != 0 {
		t.Fatalf("Remaining() after Convert = %d, want 0", n)
	}
}
