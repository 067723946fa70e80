// Package productid finds the storefront product a price element belongs to.
//
// Resolution is an ordered cascade of pure resolvers; the first one that
// yields a positive integer id wins.
package productid

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selectors is the part of the storefront DOM contract the resolvers use.
type Selectors struct {
	// SingleProductRegions hold the main product on a single-product page.
	SingleProductRegions string `yaml:"single_product_regions"`
	// RelatedRegions hold related products and upsells on that page.
	RelatedRegions string `yaml:"related_regions"`
	// ProductContainers wrap one product in listings.
	ProductContainers string `yaml:"product_containers"`
	// PostClassContainers carry post-<id> or product-<id> classes.
	PostClassContainers string `yaml:"post_class_containers"`
}

// DefaultSelectors matches a stock WooCommerce theme.
func DefaultSelectors() Selectors {
	return Selectors{
		SingleProductRegions: ".product, .summary, .entry-summary, .single-product-content",
		RelatedRegions:       ".related, .upsells",
		ProductContainers:    ".product, li.product, .product-type-variable, .product-type-simple",
		PostClassContainers:  ".product, li.product, body.single-product, body.product",
	}
}

// WithDefaults fills empty selectors from DefaultSelectors.
func (s Selectors) WithDefaults() Selectors {
	d := DefaultSelectors()
	if s.SingleProductRegions == "" {
		s.SingleProductRegions = d.SingleProductRegions
	}
	if s.RelatedRegions == "" {
		s.RelatedRegions = d.RelatedRegions
	}
	if s.ProductContainers == "" {
		s.ProductContainers = d.ProductContainers
	}
	if s.PostClassContainers == "" {
		s.PostClassContainers = d.PostClassContainers
	}
	return s
}

// Context is shared by every resolver during one pass over a document.
type Context struct {
	Selectors Selectors
	// Body is the page body. Fragments parsed on their own have a body without
	// page classes, so callers may pass the body of the page they belong to.
	Body *goquery.Selection
}

// Resolver returns the product id of el, or false when it cannot tell.
type Resolver func(c *Context, el *goquery.Selection) (string, bool)

// Cascade is the resolver order used by the apply engine.
var Cascade = []Resolver{
	FromOwnAttribute,
	FromSingleProductBody,
	FromClosestAttribute,
	FromContainerDescendant,
	FromPostClass,
}

// Resolve runs resolvers in order and returns the first id found.
func Resolve(c *Context, el *goquery.Selection, resolvers ...Resolver) (string, bool) {
	if len(resolvers) == 0 {
		resolvers = Cascade
	}
	for _, r := range resolvers {
		if id, ok := r(c, el); ok {
			return id, true
		}
	}
	return "", false
}

// FromOwnAttribute reads data-product-id or data-product_id on the element.
func FromOwnAttribute(_ *Context, el *goquery.Selection) (string, bool) {
	for _, attr := range []string{"data-product-id", "data-product_id"} {
		if v, ok := el.Attr(attr); ok {
			if id, ok := normalize(v); ok {
				return id, true
			}
		}
	}
	return "", false
}

var postIDClass = regexp.MustCompile(`(?:^|\s)postid-(\d+)(?:\s|$)`)

// FromSingleProductBody uses the postid-<id> body class of a single-product
// page, but only for elements in the main product area.
func FromSingleProductBody(c *Context, el *goquery.Selection) (string, bool) {
	body := c.Body
	if body == nil || body.Length() == 0 {
		body = el.Closest("body")
	}
	if !body.HasClass("single-product") {
		return "", false
	}
	m := postIDClass.FindStringSubmatch(body.AttrOr("class", ""))
	if m == nil {
		return "", false
	}
	if el.Closest(c.Selectors.SingleProductRegions).Length() == 0 {
		return "", false
	}
	if el.Closest(c.Selectors.RelatedRegions).Length() > 0 {
		return "", false
	}
	return normalize(m[1])
}

// FromClosestAttribute reads data-product_id on the nearest ancestor-or-self.
func FromClosestAttribute(_ *Context, el *goquery.Selection) (string, bool) {
	p := el.Closest("[data-product_id]")
	if p.Length() == 0 {
		return "", false
	}
	return normalize(p.AttrOr("data-product_id", ""))
}

// FromContainerDescendant looks for the first data-product_id inside the
// product container, typically the add-to-cart button of a listing card.
func FromContainerDescendant(c *Context, el *goquery.Selection) (string, bool) {
	p := el.Closest(c.Selectors.ProductContainers)
	if p.Length() == 0 {
		return "", false
	}
	return normalize(p.Find("[data-product_id]").First().AttrOr("data-product_id", ""))
}

var postClass = regexp.MustCompile(`post-(\d+)|product-(\d+)`)

// FromPostClass reads post-<id> or product-<id> from the nearest product
// container's classes.
func FromPostClass(c *Context, el *goquery.Selection) (string, bool) {
	p := el.Closest(c.Selectors.PostClassContainers)
	if p.Length() == 0 {
		return "", false
	}
	m := postClass.FindStringSubmatch(p.AttrOr("class", ""))
	if m == nil {
		return "", false
	}
	if m[1] != "" {
		return normalize(m[1])
	}
	return normalize(m[2])
}

// normalize accepts positive integers only and strips leading zeros.
func normalize(v string) (string, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 63)
	if err != nil || n == 0 {
		return "", false
	}
	return strconv.FormatUint(n, 10), true
}
