package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/better95159-hub/pricegate/internal/currency"
	"github.com/better95159-hub/pricegate/internal/localize"
)

func registerLocalizeHandlers(api huma.API, s *server) {
	type localizeInput struct {
		Cookie string `header:"Cookie"`
		Body   struct {
			HTML         string `json:"html" doc:"Rendered storefront page"`
			HostCurrency string `json:"host_currency,omitempty"`
			Nonce        string `json:"nonce,omitempty"`
		}
	}
	type localizeOutput struct {
		SetCookie string `header:"Set-Cookie"`
		Body      struct {
			HTML          string          `json:"html"`
			Currency      currency.Code   `json:"currency"`
			Source        currency.Source `json:"source"`
			State         localize.State  `json:"state"`
			Applied       int             `json:"applied"`
			CartConverted int             `json:"cart_converted"`
			Revealed      int             `json:"revealed"`
			Cleared       int             `json:"cleared"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "localize-page", Method: http.MethodPost, Path: Prefix + "/v1/localize", Summary: "Localize the prices of a page", Tags: []string{"Localize"}},
		func(ctx context.Context, input *localizeInput) (*localizeOutput, error) {
			res, err := s.svc.LocalizePage(ctx, localize.PageInput{
				HTML:         input.Body.HTML,
				CookieHeader: input.Cookie,
				HostCurrency: input.Body.HostCurrency,
				Nonce:        input.Body.Nonce,
			})
			if err != nil {
				return nil, mapErr(newErr(CodeValidation, "page could not be parsed", err))
			}
			out := &localizeOutput{}
			if res.Cookie != nil {
				out.SetCookie = res.Cookie.String()
			}
			out.Body.HTML = res.HTML
			out.Body.Currency = res.Currency
			out.Body.Source = res.Source
			out.Body.State = res.State
			out.Body.Applied = res.Apply.Applied
			out.Body.CartConverted = res.Cart.Converted
			out.Body.Revealed = res.Revealed
			out.Body.Cleared = res.Cleared
			return out, nil
		})

	type eventsOutput struct {
		Body struct {
			Events map[string][]localize.Pass `json:"events"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-events", Method: http.MethodGet, Path: Prefix + "/v1/events", Summary: "List the host event bindings", Tags: []string{"Events"}},
		func(ctx context.Context, input *struct{}) (*eventsOutput, error) {
			out := &eventsOutput{}
			out.Body.Events = s.svc.Bindings()
			return out, nil
		})

	type eventInput struct {
		Event  string `path:"event"`
		Cookie string `header:"Cookie"`
		Body   struct {
			Currency  string            `json:"currency,omitempty" doc:"Overrides the currency cookie"`
			Fragments map[string]string `json:"fragments" doc:"Fragment markup keyed by the selector it replaces"`
		}
	}
	type eventOutput struct {
		Body struct {
			Event     string            `json:"event"`
			Currency  currency.Code     `json:"currency"`
			Passes    []localize.Pass   `json:"passes"`
			Cached    bool              `json:"cached"`
			Applied   int               `json:"applied"`
			Converted int               `json:"converted"`
			Fragments map[string]string `json:"fragments"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "handle-event", Method: http.MethodPost, Path: Prefix + "/v1/events/{event}", Summary: "Re-run the passes bound to a host event", Tags: []string{"Events"}},
		func(ctx context.Context, input *eventInput) (*eventOutput, error) {
			res, err := s.svc.HandleEvent(ctx, localize.EventInput{
				Event:        input.Event,
				CookieHeader: input.Cookie,
				Currency:     input.Body.Currency,
				Fragments:    input.Body.Fragments,
			})
			if err != nil {
				return nil, mapErr(err)
			}
			out := &eventOutput{}
			out.Body.Event = res.Event
			out.Body.Currency = res.Currency
			out.Body.Passes = res.Passes
			out.Body.Cached = res.Cached
			out.Body.Applied = res.Applied
			out.Body.Converted = res.Converted
			out.Body.Fragments = res.Fragments
			return out, nil
		})
}
