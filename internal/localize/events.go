package localize

import (
	"fmt"
	"sort"
)

// Pass names a DOM pass an event triggers.
type Pass string

const (
	PassApply Pass = "apply"
	PassCart  Pass = "cart"
)

func (p Pass) Valid() bool { return p == PassApply || p == PassCart }

// Bindings maps host event names to the passes they re-run.
type Bindings map[string][]Pass

// DefaultBindings lists the events emitted by WooCommerce, FunnelKit and
// YITH infinite scroll. Their names are part of the host contract.
func DefaultBindings() Bindings {
	cart := []Pass{PassCart}
	return Bindings{
		"yith_infs_added_elem":      {PassApply},
		"wc_fragments_refreshed":    cart,
		"wc_fragments_loaded":       cart,
		"updated_cart_totals":       cart,
		"updated_checkout":          cart,
		"fkcart_fragment_refreshed": cart,
		"payment_method_selected":   cart,
		"wfacp_step_switching":      cart,
		"wfacp_coupon_form_update":  cart,
		"wfacp_order_review_update": cart,
		"applied_coupon":            cart,
		"removed_coupon":            cart,
		"updated_shipping_method":   cart,
		"added_to_cart":             {PassApply, PassCart},
	}
}

// Merge returns a copy of b with other's bindings added or replacing.
func (b Bindings) Merge(other Bindings) Bindings {
	out := make(Bindings, len(b)+len(other))
	for k, v := range b {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Validate rejects empty event names and unknown passes.
func (b Bindings) Validate() error {
	for name, passes := range b {
		if name == "" {
			return fmt.Errorf("event binding with empty name")
		}
		if len(passes) == 0 {
			return fmt.Errorf("event %q: no passes", name)
		}
		for _, p := range passes {
			if !p.Valid() {
				return fmt.Errorf("event %q: unknown pass %q", name, p)
			}
		}
	}
	return nil
}

// Names returns the bound event names in sorted order.
func (b Bindings) Names() []string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WooAjaxEvents maps ?wc-ajax=<endpoint> responses to the event the host
// plugin fires once it has inserted the returned fragments.
var WooAjaxEvents = map[string]string{
	"get_refreshed_fragments": "wc_fragments_refreshed",
	"update_order_review":     "updated_checkout",
	"apply_coupon":            "applied_coupon",
	"remove_coupon":           "removed_coupon",
	"update_shipping_method":  "updated_shipping_method",
	"add_to_cart":             "added_to_cart",
}
