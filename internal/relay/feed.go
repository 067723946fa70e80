package relay

import (
	"context"

	"github.com/better95159-hub/pricegate/internal/currency"
	"github.com/better95159-hub/pricegate/internal/pricesource"
)

// PriceEvent is the payload of the prices feed.
type PriceEvent struct {
	ID       string        `json:"id"`
	Currency currency.Code `json:"currency"`
	Products int           `json:"products"`
	Rate     float64       `json:"rate"`
	Symbol   string        `json:"symbol"`
	Source   string        `json:"source"`
	Fallback bool          `json:"fallback,omitempty"`
}

// FetchErrorEvent is the payload of the fetch_error feed.
type FetchErrorEvent struct {
	ID       string        `json:"id"`
	Currency currency.Code `json:"currency"`
	Strategy string        `json:"strategy"`
	Error    string        `json:"error"`
}

// InvalidateEvent is the payload of the invalidate feed.
type InvalidateEvent struct {
	Currencies []currency.Code `json:"currencies"`
	Reason     string          `json:"reason"`
}

// PriceFeed publishes loader outcomes to a broker.
type PriceFeed struct {
	broker *Broker
}

func NewPriceFeed(b *Broker) *PriceFeed { return &PriceFeed{broker: b} }

// FetchCompleted implements pricesource.Observer.
func (f *PriceFeed) FetchCompleted(_ context.Context, o pricesource.Outcome) {
	if o.Err != nil {
		f.broker.PublishJSON(FeedFetchError, FetchErrorEvent{
			ID:       o.ID,
			Currency: o.Currency,
			Strategy: o.Strategy,
			Error:    o.Err.Error(),
		})
		return
	}
	f.broker.PublishJSON(FeedPrices, PriceEvent{
		ID:       o.ID,
		Currency: o.Currency,
		Products: o.Products,
		Rate:     o.Rate,
		Symbol:   o.Symbol,
		Source:   o.Via,
		Fallback: o.Fallback(),
	})
}

// Invalidated publishes a cache invalidation.
func (f *PriceFeed) Invalidated(reason string, codes ...currency.Code) {
	f.broker.PublishJSON(FeedInvalidate, InvalidateEvent{Currencies: codes, Reason: reason})
}
