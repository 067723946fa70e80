package pricecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/better95159-hub/pricegate/internal/currency"
)

// DefaultMaxAge is how long an entry stays fresh.
const DefaultMaxAge = 24 * time.Hour

// KeyScheme names the storage keys. The "product" scheme stores entries as
// wc_product_prices_<CODE>; the "cdn" scheme stores them as
// <prefix>_fallback_prices_<CODE>. Rate and base price tables always live at
// <prefix>_exchange_rates and <prefix>_base_prices.
type KeyScheme struct {
	Name   string
	Prefix string
}

const (
	SchemeProduct = "product"
	SchemeCDN     = "cdn"

	productKeyBase = "wc_product_prices"
	defaultPrefix  = "betterestech"
)

func (k KeyScheme) prefix() string {
	if k.Prefix == "" {
		return defaultPrefix
	}
	return k.Prefix
}

// EntryKey returns the key of the entry for c.
func (k KeyScheme) EntryKey(c currency.Code) string {
	if k.Name == SchemeCDN {
		return k.prefix() + "_fallback_prices_" + string(c)
	}
	return productKeyBase + "_" + string(c)
}

func (k KeyScheme) RatesKey() string { return k.prefix() + "_exchange_rates" }

func (k KeyScheme) BasePricesKey() string { return k.prefix() + "_base_prices" }

// Cache is the read/write layer over a Store. Reads never fail:
// anything that does not decode into a complete record is evicted and
// reported as absent.
type Cache struct {
	store  Store
	keys   KeyScheme
	maxAge time.Duration
	now    func() time.Time
}

func New(store Store, keys KeyScheme, maxAge time.Duration) *Cache {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Cache{store: store, keys: keys, maxAge: maxAge, now: time.Now}
}

// Keys exposes the key scheme in use.
func (c *Cache) Keys() KeyScheme { return c.keys }

// MaxAge returns the configured freshness window.
func (c *Cache) MaxAge() time.Duration { return c.maxAge }

// Now returns the cache clock.
func (c *Cache) Now() time.Time { return c.now() }

// SetClock replaces the clock, for tests and replays.
func (c *Cache) SetClock(now func() time.Time) { c.now = now }

// Get returns the stored entry for code, or false when absent or corrupt.
func (c *Cache) Get(ctx context.Context, code currency.Code) (*Entry, bool) {
	var e Entry
	if !c.read(ctx, c.keys.EntryKey(code), &e) {
		return nil, false
	}
	if !e.Valid() {
		c.evict(ctx, c.keys.EntryKey(code), "incomplete entry")
		return nil, false
	}
	return &e, true
}

// Fresh returns the entry for code only when it is unexpired and was stored
// for that same currency.
func (c *Cache) Fresh(ctx context.Context, code currency.Code) (*Entry, bool) {
	e, ok := c.Get(ctx, code)
	if !ok || c.IsExpired(e) || e.Currency != code {
		return nil, false
	}
	return e, true
}

// IsExpired reports whether e is older than the max age. A nil entry is expired.
func (c *Cache) IsExpired(e *Entry) bool {
	if e == nil || e.Timestamp <= 0 {
		return true
	}
	return c.expired(e.Timestamp)
}

func (c *Cache) expired(ts int64) bool {
	return c.now().UnixMilli()-ts > c.maxAge.Milliseconds()
}

// Set stores e under code.
func (c *Cache) Set(ctx context.Context, code currency.Code, e *Entry) error {
	if !e.Valid() {
		return fmt.Errorf("pricecache: refusing to store incomplete entry for %s", code)
	}
	return c.write(ctx, c.keys.EntryKey(code), e)
}

// Invalidate removes the entries of the given currencies.
func (c *Cache) Invalidate(ctx context.Context, codes ...currency.Code) error {
	var errs []error
	for _, code := range codes {
		if err := c.store.Delete(ctx, c.keys.EntryKey(code)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GetRates returns the cached rate table when present and fresh.
func (c *Cache) GetRates(ctx context.Context) (*RateTable, bool) {
	var t RateTable
	if !c.read(ctx, c.keys.RatesKey(), &t) {
		return nil, false
	}
	if !t.Valid() {
		c.evict(ctx, c.keys.RatesKey(), "incomplete rate table")
		return nil, false
	}
	if c.expired(t.Timestamp) {
		return nil, false
	}
	return &t, true
}

func (c *Cache) SetRates(ctx context.Context, t *RateTable) error {
	if !t.Valid() {
		return errors.New("pricecache: refusing to store incomplete rate table")
	}
	return c.write(ctx, c.keys.RatesKey(), t)
}

// GetBasePrices returns the cached base price table when present and fresh.
func (c *Cache) GetBasePrices(ctx context.Context) (*BasePriceTable, bool) {
	var t BasePriceTable
	if !c.read(ctx, c.keys.BasePricesKey(), &t) {
		return nil, false
	}
	if !t.Valid() {
		c.evict(ctx, c.keys.BasePricesKey(), "incomplete base price table")
		return nil, false
	}
	if c.expired(t.Timestamp) {
		return nil, false
	}
	return &t, true
}

func (c *Cache) SetBasePrices(ctx context.Context, t *BasePriceTable) error {
	if !t.Valid() {
		return errors.New("pricecache: refusing to store incomplete base price table")
	}
	return c.write(ctx, c.keys.BasePricesKey(), t)
}

func (c *Cache) read(ctx context.Context, key string, v any) bool {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("price cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.evict(ctx, key, "malformed json")
		return false
	}
	return true
}

func (c *Cache) evict(ctx context.Context, key, reason string) {
	slog.Debug("price cache evicting entry", "key", key, "reason", reason)
	if err := c.store.Delete(ctx, key); err != nil {
		slog.Debug("price cache eviction failed", "key", key, "error", err)
	}
}

// write stores v. A full store is cleared entirely and the write retried once.
func (c *Cache) write(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("pricecache: marshal %s: %w", key, err)
	}
	err = c.store.Set(ctx, key, data)
	if !errors.Is(err, ErrQuotaExceeded) {
		return err
	}
	slog.Warn("price cache quota exceeded, clearing store", "key", key, "bytes", len(data))
	if clearErr := c.store.Clear(ctx); clearErr != nil {
		return fmt.Errorf("pricecache: clear after quota: %w", clearErr)
	}
	return c.store.Set(ctx, key, data)
}
