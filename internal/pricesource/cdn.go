package pricesource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/better95159-hub/pricegate/internal/currency"
	"github.com/better95159-hub/pricegate/internal/pricecache"
)

// CDN reads two static documents, the global exchange-rate table and the
// global USD price table, and falls back to another source when either is
// unavailable. Both documents are cached independently of any currency.
type CDN struct {
	client    *http.Client
	ratesURL  string
	pricesURL string
	cache     *pricecache.Cache
	fallback  Source
}

// NewCDN builds the CDN strategy. cache and fallback may be nil.
func NewCDN(client *http.Client, ratesURL, pricesURL string, cache *pricecache.Cache, fallback Source) *CDN {
	if client == nil {
		client = http.DefaultClient
	}
	return &CDN{client: client, ratesURL: ratesURL, pricesURL: pricesURL, cache: cache, fallback: fallback}
}

func (c *CDN) Name() string { return StrategyCDN }

func (c *CDN) Fetch(ctx context.Context, req Request) (*Data, error) {
	data, err := c.fetchTables(ctx, req.Currency)
	if err == nil {
		return data, nil
	}
	if c.fallback == nil {
		return nil, err
	}
	slog.Warn("cdn price source failed, falling back",
		"currency", req.Currency,
		"fallback", c.fallback.Name(),
		"error", err,
	)
	fb, fbErr := c.fallback.Fetch(ctx, req)
	if fbErr != nil {
		return nil, fmt.Errorf("cdn price source: %v; fallback: %w", err, fbErr)
	}
	return fb, nil
}

func (c *CDN) fetchTables(ctx context.Context, code currency.Code) (*Data, error) {
	var (
		rates  *pricecache.RateTable
		prices *pricecache.BasePriceTable
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if c.cache != nil {
			if t, ok := c.cache.GetRates(gctx); ok {
				rates = t
				return nil
			}
		}
		var t pricecache.RateTable
		if err := c.getJSON(gctx, c.ratesURL, &t); err != nil {
			return fmt.Errorf("exchange rates: %w", err)
		}
		if t.Rates == nil {
			return fmt.Errorf("exchange rates: %w: missing rates", ErrMalformed)
		}
		t.Timestamp = c.now()
		if c.cache != nil {
			if err := c.cache.SetRates(gctx, &t); err != nil {
				slog.Warn("exchange rate table not cached", "error", err)
			}
		}
		rates = &t
		return nil
	})
	g.Go(func() error {
		if c.cache != nil {
			if t, ok := c.cache.GetBasePrices(gctx); ok {
				prices = t
				return nil
			}
		}
		var t pricecache.BasePriceTable
		if err := c.getJSON(gctx, c.pricesURL, &t); err != nil {
			return fmt.Errorf("base prices: %w", err)
		}
		if t.Prices == nil {
			return fmt.Errorf("base prices: %w: missing prices", ErrMalformed)
		}
		t.Timestamp = c.now()
		if c.cache != nil {
			if err := c.cache.SetBasePrices(gctx, &t); err != nil {
				slog.Warn("base price table not cached", "error", err)
			}
		}
		prices = &t
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("cdn price source: %w", err)
	}

	rate, symbol := 1.0, "$"
	if code != currency.USD {
		r, ok := rates.Rates[code]
		if !ok || r <= 0 {
			return nil, fmt.Errorf("cdn price source: %w: no rate for %s", ErrMalformed, code)
		}
		rate = r
		symbol = rates.Symbols[code]
		if symbol == "" {
			symbol = currency.Symbol(code)
		}
	}
	return &Data{
		Prices:   prices.Prices,
		Currency: code,
		Symbol:   symbol,
		Rate:     rate,
		Via:      StrategyCDN,
	}, nil
}

func (c *CDN) now() int64 {
	if c.cache != nil {
		return c.cache.Now().UnixMilli()
	}
	return nowMillis()
}

func (c *CDN) getJSON(ctx context.Context, url string, v any) error {
	if url == "" {
		return fmt.Errorf("missing url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	body, err := readBody(resp)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
