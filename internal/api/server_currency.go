package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/better95159-hub/pricegate/internal/currency"
)

type resolutionBody struct {
	Currency currency.Code   `json:"currency"`
	Source   currency.Source `json:"source"`
	Symbol   string          `json:"symbol"`
}

func registerCurrencyHandlers(api huma.API, s *server) {
	type getInput struct {
		Cookie string `header:"Cookie"`
		Host   string `query:"host" doc:"Currency supplied by the storefront at render time"`
	}
	type getOutput struct {
		SetCookie string `header:"Set-Cookie"`
		Body      resolutionBody
	}
	huma.Register(api, huma.Operation{OperationID: "get-currency", Method: http.MethodGet, Path: Prefix + "/v1/currency", Summary: "Resolve the visitor currency", Tags: []string{"Currency"}},
		func(ctx context.Context, input *getInput) (*getOutput, error) {
			res := s.svc.Resolve(currency.Input{CookieHeader: input.Cookie, HostCurrency: input.Host})
			out := &getOutput{}
			out.Body = resolutionBody{Currency: res.Code, Source: res.Source, Symbol: currency.Symbol(res.Code)}
			if res.Cookie != nil {
				out.SetCookie = res.Cookie.String()
			}
			return out, nil
		})

	type putInput struct {
		Cookie string `header:"Cookie"`
		Body   struct {
			Currency string `json:"currency" doc:"ISO 4217 code"`
		}
	}
	type putOutput struct {
		SetCookie string `header:"Set-Cookie"`
		Body      struct {
			Currency    currency.Code   `json:"currency"`
			Previous    currency.Code   `json:"previous"`
			Symbol      string          `json:"symbol"`
			Invalidated []currency.Code `json:"invalidated" doc:"Currencies whose cached prices were dropped"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "set-currency", Method: http.MethodPut, Path: Prefix + "/v1/currency", Summary: "Switch the visitor currency", Tags: []string{"Currency"}},
		func(ctx context.Context, input *putInput) (*putOutput, error) {
			code, err := parseCurrency(input.Body.Currency)
			if err != nil {
				return nil, mapErr(err)
			}
			prev := s.svc.Resolve(currency.Input{CookieHeader: input.Cookie}).Code
			codes := []currency.Code{code}
			if prev != code {
				codes = append(codes, prev)
			}
			codes = s.switches.allow(time.Now(), codes...)
			if len(codes) > 0 {
				if err := s.loader.Invalidate(ctx, codes...); err != nil {
					return nil, mapErr(err)
				}
				s.invalidated("currency_switch", codes...)
			}

			out := &putOutput{SetCookie: currency.NewCookie(code, time.Now()).String()}
			out.Body.Currency = code
			out.Body.Previous = prev
			out.Body.Symbol = currency.Symbol(code)
			out.Body.Invalidated = codes
			return out, nil
		})
}

// DefaultSwitchInterval is the minimum time between two cache drops of the
// same currency caused by currency switches.
const DefaultSwitchInterval = time.Minute

// switchLimiter keeps visitors switching currencies from forcing a refetch
// for every other visitor on each request.
type switchLimiter struct {
	interval time.Duration

	mu   sync.Mutex
	last map[currency.Code]time.Time
}

func newSwitchLimiter(interval time.Duration) *switchLimiter {
	if interval <= 0 {
		interval = DefaultSwitchInterval
	}
	return &switchLimiter{interval: interval, last: make(map[currency.Code]time.Time)}
}

// allow returns the codes whose last drop is older than the interval and
// records now for them.
func (l *switchLimiter) allow(now time.Time, codes ...currency.Code) []currency.Code {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]currency.Code, 0, len(codes))
	for _, c := range codes {
		if last, ok := l.last[c]; ok && now.Sub(last) < l.interval {
			continue
		}
		l.last[c] = now
		out = append(out, c)
	}
	return out
}
