// Package pricesource fetches base prices and exchange rates from the
// storefront and hands them to the price cache.
package pricesource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/better95159-hub/pricegate/internal/currency"
	"github.com/better95159-hub/pricegate/internal/pricecache"
)

var (
	// ErrMalformed marks a response that arrived but could not be used.
	ErrMalformed = errors.New("pricesource: malformed payload")
	// ErrUnavailable is returned by the Loader when no price data could be
	// obtained for a currency.
	ErrUnavailable = errors.New("pricesource: prices unavailable")
)

// Strategy names accepted by configuration.
const (
	StrategyDirect = "direct"
	StrategyCDN    = "cdn"
)

// Request is one fetch for a currency.
type Request struct {
	Currency currency.Code
	// Nonce is the anti-forgery token of the direct endpoint.
	Nonce string
}

// Data is what every source returns: USD base prices plus the rate and
// symbol of the requested currency.
type Data struct {
	Prices   map[string]pricecache.ProductPrice
	Currency currency.Code
	Symbol   string
	Rate     float64
	// Via names the source that produced the data, which differs from the
	// configured one after a fallback.
	Via string
}

// Source is a remote price backend.
type Source interface {
	Name() string
	Fetch(ctx context.Context, req Request) (*Data, error)
}

const maxBodyBytes = 32 << 20

func readBody(resp *http.Response) ([]byte, error) {
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status=%d", ErrMalformed, resp.StatusCode)
	}
	return body, nil
}
