package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/better95159-hub/pricegate/internal/currency"
	"github.com/better95159-hub/pricegate/internal/pricecache"
	"github.com/better95159-hub/pricegate/internal/pricesource"
)

type priceEntryBody struct {
	Currency  currency.Code                      `json:"currency"`
	Symbol    string                             `json:"symbol"`
	Rate      float64                            `json:"rate"`
	FetchedAt time.Time                          `json:"fetched_at"`
	Products  int                                `json:"products"`
	Prices    map[string]pricecache.ProductPrice `json:"prices"`
}

func registerPriceHandlers(api huma.API, s *server) {
	type entryOutput struct {
		Body priceEntryBody
	}
	huma.Register(api, huma.Operation{OperationID: "get-prices", Method: http.MethodGet, Path: Prefix + "/v1/prices/{currency}", Summary: "Get cached prices, fetching on miss", Tags: []string{"Prices"}},
		func(ctx context.Context, input *currencyPathInput) (*entryOutput, error) {
			code, err := parseCurrency(input.Currency)
			if err != nil {
				return nil, mapErr(err)
			}
			entry, err := s.loader.Load(ctx, pricesource.Request{Currency: code})
			if err != nil {
				return nil, mapErr(err)
			}
			return &entryOutput{Body: priceEntryBody{
				Currency:  entry.Currency,
				Symbol:    entry.Symbol,
				Rate:      entry.Rate,
				FetchedAt: time.UnixMilli(entry.Timestamp).UTC(),
				Products:  len(entry.Prices),
				Prices:    entry.Prices,
			}}, nil
		})

	type invalidateOutput struct {
		Body struct {
			Currency currency.Code `json:"currency"`
			Status   string        `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "invalidate-prices", Method: http.MethodDelete, Path: Prefix + "/v1/prices/{currency}", Summary: "Drop the cached prices of a currency", Tags: []string{"Prices"}},
		func(ctx context.Context, input *currencyPathInput) (*invalidateOutput, error) {
			code, err := parseCurrency(input.Currency)
			if err != nil {
				return nil, mapErr(err)
			}
			if err := s.loader.Invalidate(ctx, code); err != nil {
				return nil, mapErr(err)
			}
			s.invalidated("api", code)
			out := &invalidateOutput{}
			out.Body.Currency = code
			out.Body.Status = "invalidated"
			return out, nil
		})

	type convertInput struct {
		Amount   float64 `query:"amount" required:"true" doc:"USD amount"`
		Currency string  `query:"currency" required:"true"`
	}
	type convertOutput struct {
		Body struct {
			Amount    float64       `json:"amount"`
			Currency  currency.Code `json:"currency"`
			Rate      float64       `json:"rate"`
			Converted int64         `json:"converted"`
			Display   string        `json:"display"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "convert", Method: http.MethodGet, Path: Prefix + "/v1/convert", Summary: "Convert a USD amount", Tags: []string{"Prices"}},
		func(ctx context.Context, input *convertInput) (*convertOutput, error) {
			code, err := parseCurrency(input.Currency)
			if err != nil {
				return nil, mapErr(err)
			}
			if input.Amount < 0 {
				return nil, mapErr(newErr(CodeValidation, "amount must not be negative", nil))
			}
			rate, symbol := 1.0, currency.Symbol(code)
			if code != currency.USD {
				entry, err := s.loader.Load(ctx, pricesource.Request{Currency: code})
				if err != nil {
					return nil, mapErr(err)
				}
				rate, symbol = entry.Rate, entry.Symbol
			}
			out := &convertOutput{}
			out.Body.Amount = input.Amount
			out.Body.Currency = code
			out.Body.Rate = rate
			out.Body.Converted = currency.Convert(input.Amount, code, rate)
			out.Body.Display = symbol + strconv.FormatInt(out.Body.Converted, 10)
			return out, nil
		})
}
