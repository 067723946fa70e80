package pricesource

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/better95159-hub/pricegate/internal/currency"
	"github.com/better95159-hub/pricegate/internal/pricecache"
)

const (
	DefaultTimeout = 5 * time.Second
	MinTimeout     = 3 * time.Second
	MaxTimeout     = 30 * time.Second
)

func nowMillis() int64 { return time.Now().UnixMilli() }

// Outcome describes one completed remote fetch.
type Outcome struct {
	ID       string
	Time     time.Time
	Currency currency.Code
	Strategy string
	Via      string
	Products int
	Rate     float64
	Symbol   string
	Duration time.Duration
	Err      error
}

// Fallback reports whether the data came from a source other than the
// configured strategy.
func (o Outcome) Fallback() bool {
	return o.Err == nil && o.Via != "" && o.Via != o.Strategy
}

// Observer is notified after every remote fetch, successful or not.
type Observer interface {
	FetchCompleted(ctx context.Context, o Outcome)
}

// Loader owns the cache-and-fetch state: at most one remote fetch per
// currency is in flight, and every caller asking for that currency while it
// runs receives the same result.
type Loader struct {
	cache     *pricecache.Cache
	source    Source
	timeout   time.Duration
	group     singleflight.Group
	observers []Observer
}

// NewLoader clamps timeout into [MinTimeout, MaxTimeout]; 0 selects the default.
func NewLoader(cache *pricecache.Cache, source Source, timeout time.Duration, observers ...Observer) *Loader {
	switch {
	case timeout == 0:
		timeout = DefaultTimeout
	case timeout < MinTimeout:
		timeout = MinTimeout
	case timeout > MaxTimeout:
		timeout = MaxTimeout
	}
	return &Loader{cache: cache, source: source, timeout: timeout, observers: observers}
}

// Cache returns the underlying price cache.
func (l *Loader) Cache() *pricecache.Cache { return l.cache }

// Strategy returns the configured source name.
func (l *Loader) Strategy() string { return l.source.Name() }

// Load returns a fresh entry for req.Currency, fetching it when the cache has
// none. Cancelling ctx abandons the wait but not the shared fetch, whose
// result is still cached for later callers.
func (l *Loader) Load(ctx context.Context, req Request) (*pricecache.Entry, error) {
	if e, ok := l.cache.Fresh(ctx, req.Currency); ok {
		return e, nil
	}

	ch := l.group.DoChan(string(req.Currency), func() (any, error) {
		return l.fetch(context.WithoutCancel(ctx), req)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			slog.Debug("price fetch joined in-flight request", "currency", req.Currency)
		}
		return res.Val.(*pricecache.Entry), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Peek returns whatever entry is cached for code without fetching. Event
// passes use it: they only re-apply what a page load already obtained.
func (l *Loader) Peek(ctx context.Context, code currency.Code) (*pricecache.Entry, bool) {
	e, ok := l.cache.Get(ctx, code)
	if !ok || e.Currency != code {
		return nil, false
	}
	return e, true
}

// Invalidate drops the cached entries of the given currencies.
func (l *Loader) Invalidate(ctx context.Context, codes ...currency.Code) error {
	return l.cache.Invalidate(ctx, codes...)
}

func (l *Loader) fetch(ctx context.Context, req Request) (*pricecache.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	out := Outcome{
		ID:       uuid.NewString(),
		Time:     start.UTC(),
		Currency: req.Currency,
		Strategy: l.source.Name(),
	}

	data, err := l.source.Fetch(ctx, req)
	out.Duration = time.Since(start)
	if err == nil && data.Currency.Valid() && data.Currency != req.Currency {
		err = fmt.Errorf("%w: asked for %s, got %s", ErrMalformed, req.Currency, data.Currency)
	}
	if err != nil {
		out.Err = err
		l.notify(ctx, out)
		slog.Warn("price fetch failed",
			"currency", req.Currency,
			"strategy", out.Strategy,
			"duration_ms", out.Duration.Milliseconds(),
			"error", err,
		)
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, req.Currency, err)
	}

	entry := &pricecache.Entry{
		Prices:    data.Prices,
		Currency:  req.Currency,
		Symbol:    data.Symbol,
		Rate:      data.Rate,
		Timestamp: l.cache.Now().UnixMilli(),
	}
	if err := l.cache.Set(ctx, req.Currency, entry); err != nil {
		slog.Warn("price entry not cached", "currency", req.Currency, "error", err)
	}

	out.Via = data.Via
	out.Products = len(data.Prices)
	out.Rate = data.Rate
	out.Symbol = data.Symbol
	l.notify(ctx, out)
	slog.Info("price fetch completed",
		"currency", req.Currency,
		"strategy", out.Strategy,
		"via", out.Via,
		"products", out.Products,
		"duration_ms", out.Duration.Milliseconds(),
	)
	return entry, nil
}

func (l *Loader) notify(ctx context.Context, o Outcome) {
	for _, obs := range l.observers {
		obs.FetchCompleted(ctx, o)
	}
}
