// Package localize runs the per-page price flow: resolve the currency, load
// prices through the cache, and rewrite the page or the fragments a host
// event delivered.
package localize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/better95159-hub/pricegate/internal/currency"
	"github.com/better95159-hub/pricegate/internal/pricedom"
	"github.com/better95159-hub/pricegate/internal/pricesource"
)

// ErrUnknownEvent is returned for event names outside the bindings.
var ErrUnknownEvent = errors.New("localize: unknown event")

// State is where the page flow ended.
type State string

const (
	StateCacheHit    State = "cache_hit"
	StateFetched     State = "fetched"
	StateUnavailable State = "unavailable"
)

// Service is safe for concurrent use; every call works on its own document.
type Service struct {
	loader   *pricesource.Loader
	resolver *currency.Resolver
	engine   *pricedom.Engine
	cart     *pricedom.CartPass
	bindings Bindings
}

func New(loader *pricesource.Loader, contract pricedom.Contract, bindings Bindings) *Service {
	if bindings == nil {
		bindings = DefaultBindings()
	}
	return &Service{
		loader:   loader,
		resolver: currency.NewResolver(),
		engine:   pricedom.NewEngine(contract),
		cart:     pricedom.NewCartPass(contract),
		bindings: bindings,
	}
}

// Bindings returns the event bindings in use.
func (s *Service) Bindings() Bindings { return s.bindings }

// Resolve exposes the currency resolver.
func (s *Service) Resolve(in currency.Input) currency.Resolution {
	return s.resolver.Resolve(in)
}

// PageInput is one rendered storefront page.
type PageInput struct {
	HTML         string
	CookieHeader string
	// HostCurrency overrides the currency localized into the page.
	HostCurrency string
	// Nonce overrides the nonce localized into the page.
	Nonce string
}

// PageResult is the rewritten page and what happened to it.
type PageResult struct {
	HTML     string
	Currency currency.Code
	Source   currency.Source
	Cookie   *http.Cookie
	State    State
	Apply    pricedom.ApplyStats
	Cart     pricedom.CartStats
	Revealed int
	Cleared  int
}

// LocalizePage resolves the currency of the page and rewrites its prices.
// Unavailable prices are not an error: placeholders are revealed and the
// page is returned with StateUnavailable.
func (s *Service) LocalizePage(ctx context.Context, in PageInput) (*PageResult, error) {
	doc, err := pricedom.ParseDocument(strings.NewReader(in.HTML))
	if err != nil {
		return nil, err
	}

	host := ExtractHostValues(doc)
	hostCurrency := in.HostCurrency
	if hostCurrency == "" {
		hostCurrency = host.UserCurrency
	}
	nonce := in.Nonce
	if nonce == "" {
		nonce = host.Nonce
	}

	res := s.resolver.Resolve(currency.Input{
		CookieHeader: in.CookieHeader,
		HostCurrency: hostCurrency,
		PriceText:    s.engine.FirstPriceText(doc),
	})
	out := &PageResult{Currency: res.Code, Source: res.Source, Cookie: res.Cookie}
	out.Cleared = s.engine.ClearMarkers(doc, res.Code)

	entry, hit := s.loader.Cache().Fresh(ctx, res.Code)
	if hit {
		out.State = StateCacheHit
	} else {
		entry, err = s.loader.Load(ctx, pricesource.Request{Currency: res.Code, Nonce: nonce})
		if err != nil {
			slog.Warn("prices unavailable, revealing placeholders", "currency", res.Code, "error", err)
			out.State = StateUnavailable
		} else {
			out.State = StateFetched
		}
	}

	if entry != nil {
		out.Apply = s.engine.Apply(doc, res.Code, entry)
		if s.cart.HasCartContext(doc) {
			out.Cart = s.cart.Convert(doc, res.Code, entry)
		}
	}
	out.Revealed = s.engine.RevealPlaceholders(doc)

	out.HTML, err = pricedom.RenderDocument(doc)
	if err != nil {
		return nil, err
	}
	slog.Debug("page localized",
		"currency", out.Currency,
		"source", out.Source,
		"state", out.State,
		"applied", out.Apply.Applied,
		"cart_converted", out.Cart.Converted,
		"revealed", out.Revealed,
	)
	return out, nil
}

// EventInput is one host event with the fragments it inserted, keyed by the
// selector they replace.
type EventInput struct {
	Event        string
	CookieHeader string
	// Currency overrides the cookie.
	Currency  string
	Fragments map[string]string
}

// EventResult carries the rewritten fragments.
type EventResult struct {
	Event     string
	Currency  currency.Code
	Passes    []Pass
	Cached    bool
	Fragments map[string]string
	Applied   int
	Converted int
}

// HandleEvent re-runs the passes bound to an event over its fragments. It
// only uses prices already cached by a page load and never fetches.
func (s *Service) HandleEvent(ctx context.Context, in EventInput) (*EventResult, error) {
	passes, ok := s.bindings[in.Event]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, in.Event)
	}
	code, ok := currency.Parse(in.Currency)
	if !ok {
		code = s.resolver.Resolve(currency.Input{CookieHeader: in.CookieHeader}).Code
	}

	out := &EventResult{
		Event:     in.Event,
		Currency:  code,
		Passes:    passes,
		Fragments: make(map[string]string, len(in.Fragments)),
	}
	for k, v := range in.Fragments {
		out.Fragments[k] = v
	}

	entry, ok := s.loader.Peek(ctx, code)
	if !ok {
		slog.Debug("event skipped, no cached prices", "event", in.Event, "currency", code)
		return out, nil
	}
	out.Cached = true

	keys := make([]string, 0, len(in.Fragments))
	for k := range in.Fragments {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		frag, err := pricedom.ParseFragment(in.Fragments[key])
		if err != nil {
			slog.Warn("fragment not rewritten", "event", in.Event, "selector", key, "error", err)
			continue
		}
		doc := frag.Document()
		s.engine.ClearMarkers(doc, code)
		for _, p := range passes {
			switch p {
			case PassApply:
				out.Applied += s.engine.Apply(doc, code, entry).Applied
			case PassCart:
				out.Converted += s.cart.Convert(doc, code, entry).Converted
			}
		}
		rendered, err := frag.HTML()
		if err != nil {
			slog.Warn("fragment not rendered", "event", in.Event, "selector", key, "error", err)
			continue
		}
		out.Fragments[key] = rendered
	}
	slog.Debug("event applied",
		"event", in.Event,
		"currency", code,
		"fragments", len(keys),
		"applied", out.Applied,
		"converted", out.Converted,
	)
	return out, nil
}
