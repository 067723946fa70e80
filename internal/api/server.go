package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/better95159-hub/pricegate/internal/currency"
	"github.com/better95159-hub/pricegate/internal/localize"
	"github.com/better95159-hub/pricegate/internal/pricesource"
	"github.com/better95159-hub/pricegate/internal/relay"
)

// Prefix is where the control API lives; every other path belongs to the
// storefront.
const Prefix = "/pricegate"

// Options wires the API to the gateway.
type Options struct {
	Service *localize.Service
	Loader  *pricesource.Loader
	// Broker enables the stream endpoints.
	Broker *relay.Broker
	// Feed receives invalidations made through the API. Optional.
	Feed *relay.PriceFeed
	// Storefront serves everything outside Prefix, typically the proxy.
	Storefront http.Handler
	// SwitchInterval bounds how often a currency switch may drop the shared
	// cache entry of one currency. 0 selects DefaultSwitchInterval.
	SwitchInterval time.Duration
}

type server struct {
	svc      *localize.Service
	loader   *pricesource.Loader
	broker   *relay.Broker
	feed     *relay.PriceFeed
	switches *switchLimiter
}

type currencyPathInput struct {
	Currency string `path:"currency" doc:"ISO 4217 code, e.g. INR"`
}

func NewServer(opts Options) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("pricegate API", "1.0.0")
	cfg.DocsPath = ""
	cfg.OpenAPIPath = Prefix + "/openapi"
	cfg.SchemasPath = Prefix + "/schemas"
	api := humachi.New(router, cfg)

	router.Get(Prefix+"/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	s := &server{
		svc:      opts.Service,
		loader:   opts.Loader,
		broker:   opts.Broker,
		feed:     opts.Feed,
		switches: newSwitchLimiter(opts.SwitchInterval),
	}
	registerHealthHandlers(api, s)
	registerCurrencyHandlers(api, s)
	registerPriceHandlers(api, s)
	registerLocalizeHandlers(api, s)

	if s.broker != nil {
		router.Get(Prefix+"/v1/stream", relay.SSEHandler(s.broker))
		router.Get(Prefix+"/v1/stream/ws", relay.WebSocketHandler(s.broker))
	}
	if opts.Storefront != nil {
		router.NotFound(opts.Storefront.ServeHTTP)
	}
	return router
}

func registerHealthHandlers(api huma.API, s *server) {
	type healthOutput struct {
		Body struct {
			Status   string   `json:"status"`
			Strategy string   `json:"strategy"`
			Events   []string `json:"events"`
			Clients  int      `json:"stream_clients"`
			Dropped  int64    `json:"stream_dropped"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: Prefix + "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			out.Body.Strategy = s.loader.Strategy()
			out.Body.Events = s.svc.Bindings().Names()
			if s.broker != nil {
				st := s.broker.Stats()
				out.Body.Clients = st.Clients
				out.Body.Dropped = st.Dropped
			}
			return out, nil
		})
}

func (s *server) invalidated(reason string, codes ...currency.Code) {
	if s.feed != nil {
		s.feed.Invalidated(reason, codes...)
	}
}

func parseCurrency(raw string) (currency.Code, error) {
	code, ok := currency.Parse(raw)
	if !ok {
		return "", newErr(CodeValidation, fmt.Sprintf("invalid currency %q", raw), nil)
	}
	return code, nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	coded := classify(err)
	switch coded.Code {
	case CodeValidation:
		return huma.Error400BadRequest(coded.Message)
	case CodeNotFound:
		return huma.Error404NotFound(coded.Message)
	case CodeUnavailable:
		return huma.Error503ServiceUnavailable(coded.Message)
	default:
		slog.Error("api request failed", "error", err)
		return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
	}
}
