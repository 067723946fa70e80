// Package proxy serves the storefront through the gateway, localizing HTML
// pages and the cart fragments returned by WooCommerce AJAX endpoints.
package proxy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"

	"github.com/better95159-hub/pricegate/internal/localize"
)

const (
	// HostCurrencyHeader lets the storefront pass the currency it detected.
	HostCurrencyHeader = "X-User-Currency"
	StateHeader        = "X-Pricegate-State"
	EventHeader        = "X-Pricegate-Event"

	maxRewriteBytes = 16 << 20
)

// Proxy is an http.Handler forwarding to one upstream storefront.
type Proxy struct {
	svc *localize.Service
	rp  *httputil.ReverseProxy
}

// New builds a proxy to target. transport may be nil.
func New(target *url.URL, svc *localize.Service, transport http.RoundTripper) *Proxy {
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.DisableCompression = true
		transport = t
	}
	p := &Proxy{svc: svc}
	p.rp = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			// Bodies must arrive uncompressed to be rewritten.
			pr.Out.Header.Del("Accept-Encoding")
		},
		Transport:      transport,
		ModifyResponse: p.modifyResponse,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			slog.Error("upstream request failed", "method", r.Method, "path", r.URL.Path, "error", err)
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
		},
	}
	return p
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.rp.ServeHTTP(w, r)
}

func (p *Proxy) modifyResponse(resp *http.Response) error {
	if enc := resp.Header.Get("Content-Encoding"); enc != "" && enc != "identity" {
		return nil
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))

	if endpoint := resp.Request.URL.Query().Get("wc-ajax"); endpoint != "" {
		if event, ok := localize.WooAjaxEvents[endpoint]; ok && mediaType == "application/json" {
			return p.rewrite(resp, func(body []byte) ([]byte, error) {
				return p.rewriteFragments(resp, event, body)
			})
		}
		return nil
	}
	if mediaType == "text/html" && resp.StatusCode == http.StatusOK {
		return p.rewrite(resp, func(body []byte) ([]byte, error) {
			return p.rewritePage(resp, body)
		})
	}
	return nil
}

// rewrite replaces the response body with fn's output. Rewrite failures are
// logged and the original body is passed through.
func (p *Proxy) rewrite(resp *http.Response, fn func([]byte) ([]byte, error)) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRewriteBytes+1))
	if err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("read upstream body: %w", err)
	}
	if len(body) > maxRewriteBytes {
		slog.Warn("response too large to localize", "path", resp.Request.URL.Path)
		resp.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(body), resp.Body), resp.Body}
		return nil
	}
	_ = resp.Body.Close()

	out := body
	if rewritten, err := fn(body); err != nil {
		slog.Warn("response not localized", "path", resp.Request.URL.Path, "error", err)
	} else {
		out = rewritten
		resp.Header.Del("ETag")
	}
	resp.Body = io.NopCloser(bytes.NewReader(out))
	resp.ContentLength = int64(len(out))
	resp.Header.Set("Content-Length", strconv.Itoa(len(out)))
	return nil
}

func (p *Proxy) rewritePage(resp *http.Response, body []byte) ([]byte, error) {
	req := resp.Request
	res, err := p.svc.LocalizePage(req.Context(), localize.PageInput{
		HTML:         string(body),
		CookieHeader: req.Header.Get("Cookie"),
		HostCurrency: resp.Header.Get(HostCurrencyHeader),
	})
	if err != nil {
		return nil, err
	}
	if res.Cookie != nil {
		resp.Header.Add("Set-Cookie", res.Cookie.String())
	}
	resp.Header.Set(StateHeader, string(res.State))
	return []byte(res.HTML), nil
}

func (p *Proxy) rewriteFragments(resp *http.Response, event string, body []byte) ([]byte, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode ajax response: %w", err)
	}
	raw, ok := payload["fragments"]
	if !ok {
		return body, nil
	}
	var fragments map[string]string
	if err := json.Unmarshal(raw, &fragments); err != nil {
		return nil, fmt.Errorf("decode fragments: %w", err)
	}
	if len(fragments) == 0 {
		return body, nil
	}

	req := resp.Request
	res, err := p.svc.HandleEvent(req.Context(), localize.EventInput{
		Event:        event,
		CookieHeader: req.Header.Get("Cookie"),
		Fragments:    fragments,
	})
	if err != nil {
		return nil, err
	}
	resp.Header.Set(EventHeader, event)
	if !res.Cached {
		return body, nil
	}

	if payload["fragments"], err = marshalNoEscape(res.Fragments); err != nil {
		return nil, err
	}
	return marshalNoEscape(payload)
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
