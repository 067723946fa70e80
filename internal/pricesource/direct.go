package pricesource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/better95159-hub/pricegate/internal/currency"
	"github.com/better95159-hub/pricegate/internal/pricecache"
)

// DefaultAction is the storefront AJAX action that returns all prices.
const DefaultAction = "prefetch_all_prices"

// Direct posts to the storefront's same-origin AJAX endpoint.
type Direct struct {
	client *http.Client
	url    string
	action string
	nonce  string
}

// NewDirect builds the direct strategy. nonce is used when a request carries none.
func NewDirect(client *http.Client, ajaxURL, action, nonce string) *Direct {
	if client == nil {
		client = http.DefaultClient
	}
	if action == "" {
		action = DefaultAction
	}
	return &Direct{client: client, url: ajaxURL, action: action, nonce: nonce}
}

func (d *Direct) Name() string { return StrategyDirect }

type directResponse struct {
	Success bool `json:"success"`
	Data    *struct {
		Prices       map[string]pricecache.ProductPrice `json:"prices"`
		UserCurrency string                             `json:"user_currency"`
		Symbol       string                             `json:"symbol"`
		Rate         float64                            `json:"rate"`
	} `json:"data"`
}

func (d *Direct) Fetch(ctx context.Context, req Request) (*Data, error) {
	if d.url == "" {
		return nil, fmt.Errorf("direct price source: missing ajax url")
	}
	nonce := req.Nonce
	if nonce == "" {
		nonce = d.nonce
	}
	form := url.Values{
		"action":   {d.action},
		"security": {nonce},
		"currency": {string(req.Currency)},
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("direct price source: %w", err)
	}
	body, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("direct price source: %w", err)
	}

	var payload directResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("direct price source: %w: %v", ErrMalformed, err)
	}
	if !payload.Success || payload.Data == nil || payload.Data.Prices == nil {
		return nil, fmt.Errorf("direct price source: %w: unsuccessful response", ErrMalformed)
	}

	code := req.Currency
	if c, ok := currency.Parse(payload.Data.UserCurrency); ok {
		code = c
	}
	symbol := payload.Data.Symbol
	if symbol == "" {
		symbol = currency.Symbol(code)
	}
	rate := payload.Data.Rate
	if rate <= 0 {
		rate = 1
	}
	return &Data{
		Prices:   payload.Data.Prices,
		Currency: code,
		Symbol:   symbol,
		Rate:     rate,
		Via:      StrategyDirect,
	}, nil
}
