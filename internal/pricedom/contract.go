// Package pricedom rewrites storefront price markup: it fills placeholders
// and converts USD prices on listings, product pages, carts and checkouts.
package pricedom

import "github.com/better95159-hub/pricegate/internal/productid"

// Contract is the DOM contract with the storefront theme and its plugins.
type Contract struct {
	// PriceSelector selects apply-engine candidates.
	PriceSelector string `yaml:"price_selector"`
	// VisiblePriceSelector selects server-rendered prices for currency guessing.
	VisiblePriceSelector string `yaml:"visible_price_selector"`
	PlaceholderAttr      string `yaml:"placeholder_attr"`
	PlaceholderClass     string `yaml:"placeholder_class"`
	LoadingClass         string `yaml:"loading_class"`

	Product productid.Selectors `yaml:"product"`

	CartContainers      string `yaml:"cart_containers"`
	CartPriceSelector   string `yaml:"cart_price_selector"`
	TitleRegions        string `yaml:"title_regions"`
	ProductTotalRegions string `yaml:"product_total_regions"`
	PlaceOrderButton    string `yaml:"place_order_button"`
}

// ConvertedAttr marks an element already rewritten for a currency.
const ConvertedAttr = "data-converted"

// StaleAttr replaces ConvertedAttr once the visitor currency changed. It keeps
// the old code, and marks the element as gateway output that must be
// rewritten again.
const StaleAttr = "data-converted-stale"

const (
	btnConvertedAttr = "data-btn-converted"
	btnStaleAttr     = "data-btn-converted-stale"
	// btnShownAttr holds the amount the button label shows after conversion.
	btnShownAttr = "data-btn-shown"
	// baseAmountAttr keeps the USD amount a cart total or button was
	// converted from.
	baseAmountAttr = "data-base-amount"
	symbolClass    = "woocommerce-Price-currencySymbol"
)

// DefaultContract covers WooCommerce, the FunnelKit cart and checkout, and
// the theme this gateway was first deployed on.
func DefaultContract() Contract {
	return Contract{
		PriceSelector:        "[data-price-placeholder], .wc-price-prefetch, .price, .woocommerce-Price-amount",
		VisiblePriceSelector: ".woocommerce-Price-amount:not([data-price-placeholder]), .price",
		PlaceholderAttr:      "data-price-placeholder",
		PlaceholderClass:     "wc-price-prefetch",
		LoadingClass:         "loading-price",
		Product:              productid.DefaultSelectors(),
		CartContainers: ".wfacp_order_summary_item_total, td.product-total, .product-total, " +
			".fkcart-item-price, .fkcart-totals, .fkcart-subtotal, .fkcart-total, .fkcart-subtotal-wrap, " +
			".fkcart-summary-amount, .fkcart-checkout--price, .fkcart-order-summary, " +
			".woocommerce-mini-cart, .woocommerce-mini-cart__total, .widget_shopping_cart, " +
			".cart_totals, .cart-subtotal, .order-total, .woocommerce-checkout-review-order, " +
			".wfacp_order_summary, .wfacp_mini_cart_items, .wfacp_order_total_wrap, .wfacp-product-switch-panel, " +
			".wfacp_row_wrap, .wfacp-cart-total, .wfacp-product-row, .wfacp_product_row, .wfacp_order_total, " +
			".wfacp_mini_cart_footer, .wfacp_subtotal, .wfacp_shipping, .wfacp_tax, .wfacp_order_review, " +
			".wfacp-order-summary, .order_review, table.shop_table, #order_review",
		CartPriceSelector: ".woocommerce-Price-amount, .amount",
		TitleRegions: ".fkcart-item-title-price, .fkcart-item-title, .wfacp_order_summary_item_name, " +
			".product-name, .product-quantity, a[href*=\"product\"]",
		ProductTotalRegions: ".wfacp_order_summary_item_total, .product-total, td.product-total",
		PlaceOrderButton:    "#place_order, button[name=\"woocommerce_checkout_place_order\"]",
	}
}

// WithDefaults fills every empty field from DefaultContract.
func (c Contract) WithDefaults() Contract {
	d := DefaultContract()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&c.PriceSelector, d.PriceSelector)
	fill(&c.VisiblePriceSelector, d.VisiblePriceSelector)
	fill(&c.PlaceholderAttr, d.PlaceholderAttr)
	fill(&c.PlaceholderClass, d.PlaceholderClass)
	fill(&c.LoadingClass, d.LoadingClass)
	fill(&c.CartContainers, d.CartContainers)
	fill(&c.CartPriceSelector, d.CartPriceSelector)
	fill(&c.TitleRegions, d.TitleRegions)
	fill(&c.ProductTotalRegions, d.ProductTotalRegions)
	fill(&c.PlaceOrderButton, d.PlaceOrderButton)
	c.Product = c.Product.WithDefaults()
	return c
}

// PlaceholderSelector matches placeholders by attribute or class.
func (c Contract) PlaceholderSelector() string {
	return "[" + c.PlaceholderAttr + "], ." + c.PlaceholderClass
}
