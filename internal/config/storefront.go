package config

import (
	"fmt"
	"os"

	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"

	"github.com/better95159-hub/pricegate/internal/localize"
	"github.com/better95159-hub/pricegate/internal/pricedom"
)

// EventBinding binds one host event to the passes it re-runs.
type EventBinding struct {
	Name   string   `yaml:"name"`
	Passes []string `yaml:"passes"`
}

// Storefront is the YAML storefront contract. Every field is optional and
// falls back to the built-in WooCommerce defaults.
type Storefront struct {
	DOM    pricedom.Contract `yaml:"dom"`
	Events []EventBinding    `yaml:"events"`
	// ReplaceEvents drops the built-in bindings instead of extending them.
	ReplaceEvents bool `yaml:"replace_events"`
}

// DefaultStorefront returns the built-in contract.
func DefaultStorefront() *Storefront {
	return &Storefront{DOM: pricedom.DefaultContract()}
}

// LoadStorefront reads and validates a storefront YAML file. An empty path
// yields the defaults.
func LoadStorefront(path string) (*Storefront, error) {
	if path == "" {
		return DefaultStorefront(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("storefront config: %w", err)
	}
	return ParseStorefront(data)
}

// ParseStorefront decodes and validates YAML.
func ParseStorefront(data []byte) (*Storefront, error) {
	var sf Storefront
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("storefront config: %w", err)
	}
	sf.DOM = sf.DOM.WithDefaults()
	if err := sf.validate(); err != nil {
		return nil, err
	}
	return &sf, nil
}

func (s *Storefront) validate() error {
	for i, ev := range s.Events {
		if ev.Name == "" {
			return fmt.Errorf("storefront config: events[%d] missing name", i)
		}
		if len(ev.Passes) == 0 {
			return fmt.Errorf("storefront config: events[%d] (%s) missing passes", i, ev.Name)
		}
		for _, p := range ev.Passes {
			if !localize.Pass(p).Valid() {
				return fmt.Errorf("storefront config: events[%d] (%s) unknown pass %q", i, ev.Name, p)
			}
		}
	}
	selectors := map[string]string{
		"price_selector":                 s.DOM.PriceSelector,
		"visible_price_selector":         s.DOM.VisiblePriceSelector,
		"cart_containers":                s.DOM.CartContainers,
		"cart_price_selector":            s.DOM.CartPriceSelector,
		"title_regions":                  s.DOM.TitleRegions,
		"product_total_regions":          s.DOM.ProductTotalRegions,
		"place_order_button":             s.DOM.PlaceOrderButton,
		"product.single_product_regions": s.DOM.Product.SingleProductRegions,
		"product.related_regions":        s.DOM.Product.RelatedRegions,
		"product.product_containers":     s.DOM.Product.ProductContainers,
		"product.post_class_containers":  s.DOM.Product.PostClassContainers,
	}
	for field, sel := range selectors {
		if _, err := cascadia.ParseGroup(sel); err != nil {
			return fmt.Errorf("storefront config: dom.%s: %w", field, err)
		}
	}
	return nil
}

// Bindings returns the event bindings: the built-in set extended or
// replaced by the configured events.
func (s *Storefront) Bindings() localize.Bindings {
	configured := make(localize.Bindings, len(s.Events))
	for _, ev := range s.Events {
		passes := make([]localize.Pass, 0, len(ev.Passes))
		for _, p := range ev.Passes {
			passes = append(passes, localize.Pass(p))
		}
		configured[ev.Name] = passes
	}
	if s.ReplaceEvents {
		return configured
	}
	return localize.DefaultBindings().Merge(configured)
}
