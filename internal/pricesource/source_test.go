package pricesource

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/better95159-hub/pricegate/internal/currency"
	"github.com/better95159-hub/pricegate/internal/pricecache"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestCache() *pricecache.Cache {
	c := pricecache.New(pricecache.NewMemoryStore(0), pricecache.KeyScheme{Name: pricecache.SchemeProduct}, time.Hour)
	c.SetClock(func() time.Time { return testNow })
	return c
}

const inrDirectBody = `{"success":true,"data":{"prices":{"123":{"regular":"10.00","sale":"8.00"}},"user_currency":"INR","symbol":"₹","rate":83}}`

func TestDirectFetchPostsForm(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(body))
		if r.Header.Get("X-Requested-With") != "XMLHttpRequest" {
			t.Errorf("X-Requested-With = %q", r.Header.Get("X-Requested-With"))
		}
		_, _ = io.WriteString(w, inrDirectBody)
	}))
	defer srv.Close()

	d := NewDirect(srv.Client(), srv.URL, "", "default-nonce")
	data, err := d.Fetch(context.Background(), Request{Currency: "INR", Nonce: "abc"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if form.Get("action") != DefaultAction || form.Get("security") != "abc" || form.Get("currency") != "INR" {
		t.Fatalf("form = %v", form)
	}
	if data.Currency != "INR" || data.Symbol != "₹" || data.Rate != 83 || data.Via != StrategyDirect {
		t.Fatalf("Fetch() = %+v", data)
	}
	if p := data.Prices["123"]; p.Regular != 10 || p.Sale != 8 {
		t.Fatalf("prices[123] = %+v", p)
	}
}

func TestDirectFetchUsesDefaultNonceAndDefaults(t *testing.T) {
	var nonce string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		nonce = r.PostForm.Get("security")
		_, _ = io.WriteString(w, `{"success":true,"data":{"prices":{}}}`)
	}))
	defer srv.Close()

	data, err := NewDirect(srv.Client(), srv.URL, "", "fallback").Fetch(context.Background(), Request{Currency: "EUR"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if nonce != "fallback" {
		t.Fatalf("security = %q, want fallback", nonce)
	}
	if data.Currency != "EUR" || data.Symbol != "€" || data.Rate != 1 {
		t.Fatalf("Fetch() = %+v", data)
	}
}

func TestDirectFetchMalformed(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "unsuccessful", status: 200, body: `{"success":false,"data":"invalid nonce"}`},
		{name: "missing prices", status: 200, body: `{"success":true,"data":{"symbol":"₹"}}`},
		{name: "not json", status: 200, body: `<html>`},
		{name: "server error", status: 500, body: `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewDirect(srv.Client(), srv.URL, "", "").Fetch(context.Background(), Request{Currency: "INR"})
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("Fetch() error = %v, want ErrMalformed", err)
			}
		})
	}
}

func cdnServer(t *testing.T, rates, prices string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/rates.json", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, rates)
	})
	mux.HandleFunc("/prices.json", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, prices)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCDNFetchCombinesTablesAndCachesThem(t *testing.T) {
	var hits atomic.Int32
	srv := cdnServer(t,
		`{"rates":{"INR":83,"EUR":0.92},"symbols":{"INR":"₹"}}`,
		`{"prices":{"123":{"regular":"10.00","sale":"8.00"}}}`,
		&hits)
	cache := newTestCache()
	cdn := NewCDN(srv.Client(), srv.URL+"/rates.json", srv.URL+"/prices.json", cache, nil)

	data, err := cdn.Fetch(context.Background(), Request{Currency: "INR"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if data.Rate != 83 || data.Symbol != "₹" || data.Via != StrategyCDN {
		t.Fatalf("Fetch() = %+v", data)
	}
	if p := data.Prices["123"]; p.Regular != 10 || p.Sale != 8 {
		t.Fatalf("prices[123] = %+v", p)
	}

	// EUR reuses both cached tables; its symbol comes from the built-in map.
	eur, err := cdn.Fetch(context.Background(), Request{Currency: "EUR"})
	if err != nil {
		t.Fatalf("Fetch(EUR) error = %v", err)
	}
	if eur.Symbol != "€" || eur.Rate != 0.92 {
		t.Fatalf("Fetch(EUR) = %+v", eur)
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("upstream hits = %d, want 2", got)
	}
}

func TestCDNFetchUSDNeedsNoRate(t *testing.T) {
	var hits atomic.Int32
	srv := cdnServer(t, `{"rates":{}}`, `{"prices":{"1":{"regular":5}}}`, &hits)
	data, err := NewCDN(srv.Client(), srv.URL+"/rates.json", srv.URL+"/prices.json", nil, nil).
		Fetch(context.Background(), Request{Currency: currency.USD})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if data.Rate != 1 || data.Symbol != "$" {
		t.Fatalf("Fetch() = %+v", data)
	}
}

type stubSource struct {
	name  string
	calls atomic.Int32
	fetch func(ctx context.Context, req Request) (*Data, error)
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(ctx context.Context, req Request) (*Data, error) {
	s.calls.Add(1)
	return s.fetch(ctx, req)
}

func inrData(via string) *Data {
	return &Data{
		Prices:   map[string]pricecache.ProductPrice{"123": {Regular: 10, Sale: 8}},
		Currency: "INR",
		Symbol:   "₹",
		Rate:     83,
		Via:      via,
	}
}

func TestCDNFallsBackWhenRateMissing(t *testing.T) {
	var hits atomic.Int32
	srv := cdnServer(t, `{"rates":{"EUR":0.92}}`, `{"prices":{}}`, &hits)
	fb := &stubSource{name: StrategyDirect, fetch: func(context.Context, Request) (*Data, error) {
		return inrData(StrategyDirect), nil
	}}

	data, err := NewCDN(srv.Client(), srv.URL+"/rates.json", srv.URL+"/prices.json", nil, fb).
		Fetch(context.Background(), Request{Currency: "INR"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if data.Via != StrategyDirect || fb.calls.Load() != 1 {
		t.Fatalf("Fetch() via = %q, fallback calls = %d", data.Via, fb.calls.Load())
	}
}

func TestCDNFallbackFailureWrapsBoth(t *testing.T) {
	fb := &stubSource{name: StrategyDirect, fetch: func(context.Context, Request) (*Data, error) {
		return nil, ErrMalformed
	}}
	_, err := NewCDN(nil, "", "", nil, fb).Fetch(context.Background(), Request{Currency: "INR"})
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("Fetch() error = %v, want ErrMalformed", err)
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (r *recordingObserver) FetchCompleted(_ context.Context, o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func TestLoaderCachesFetchedEntry(t *testing.T) {
	src := &stubSource{name: StrategyDirect, fetch: func(context.Context, Request) (*Data, error) {
		return inrData(StrategyDirect), nil
	}}
	obs := &recordingObserver{}
	l := NewLoader(newTestCache(), src, 0, obs)

	e, err := l.Load(context.Background(), Request{Currency: "INR"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if e.Currency != "INR" || e.Timestamp != testNow.UnixMilli() {
		t.Fatalf("Load() = %+v", e)
	}
	if _, err := l.Load(context.Background(), Request{Currency: "INR"}); err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if got := src.calls.Load(); got != 1 {
		t.Fatalf("source calls = %d, want 1", got)
	}
	if len(obs.outcomes) != 1 || obs.outcomes[0].Products != 1 || obs.outcomes[0].ID == "" {
		t.Fatalf("outcomes = %+v", obs.outcomes)
	}
	if _, ok := l.Peek(context.Background(), "INR"); !ok {
		t.Fatal("Peek() missing after Load")
	}
}

func TestLoaderSingleFlight(t *testing.T) {
	release := make(chan struct{})
	src := &stubSource{name: StrategyDirect, fetch: func(context.Context, Request) (*Data, error) {
		<-release
		return inrData(StrategyDirect), nil
	}}
	l := NewLoader(newTestCache(), src, 0)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Load(context.Background(), Request{Currency: "INR"})
			errs <- err
		}()
	}
	// Wait until the single fetch is running before releasing it.
	deadline := time.Now().Add(2 * time.Second)
	for src.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
	}
	if got := src.calls.Load(); got != 1 {
		t.Fatalf("source calls = %d, want 1", got)
	}
}

func TestLoaderTimeoutIsUnavailable(t *testing.T) {
	src := &stubSource{name: StrategyDirect, fetch: func(ctx context.Context, _ Request) (*Data, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	obs := &recordingObserver{}
	l := NewLoader(newTestCache(), src, 0, obs)
	l.timeout = 20 * time.Millisecond

	_, err := l.Load(context.Background(), Request{Currency: "INR"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Load() error = %v, want ErrUnavailable", err)
	}
	if len(obs.outcomes) != 1 || obs.outcomes[0].Err == nil {
		t.Fatalf("outcomes = %+v", obs.outcomes)
	}
	if _, ok := l.Peek(context.Background(), "INR"); ok {
		t.Fatal("failed fetch left an entry behind")
	}
}

func TestLoaderCallerCancelStillCaches(t *testing.T) {
	release := make(chan struct{})
	src := &stubSource{name: StrategyDirect, fetch: func(context.Context, Request) (*Data, error) {
		<-release
		return inrData(StrategyDirect), nil
	}}
	done := make(chan struct{})
	obs := observerFunc(func(Outcome) { close(done) })
	l := NewLoader(newTestCache(), src, 0, obs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Load(ctx, Request{Currency: "INR"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Load() error = %v, want context.Canceled", err)
	}
	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("detached fetch never completed")
	}
	if _, ok := l.Peek(context.Background(), "INR"); !ok {
		t.Fatal("detached fetch result not cached")
	}
}

// A currency switch while a fetch is in flight does not cancel it; both
// currencies end up cached under their own keys.
func TestLoaderCurrencySwitchDuringFetch(t *testing.T) {
	inrStarted := make(chan struct{})
	release := make(chan struct{})
	src := &stubSource{name: StrategyDirect, fetch: func(_ context.Context, req Request) (*Data, error) {
		if req.Currency == "INR" {
			close(inrStarted)
			<-release
			return inrData(StrategyDirect), nil
		}
		return &Data{
			Prices:   map[string]pricecache.ProductPrice{"123": {Regular: 10}},
			Currency: "EUR",
			Symbol:   "€",
			Rate:     0.92,
			Via:      StrategyDirect,
		}, nil
	}}
	l := NewLoader(newTestCache(), src, 0)

	inrDone := make(chan error, 1)
	go func() {
		_, err := l.Load(context.Background(), Request{Currency: "INR"})
		inrDone <- err
	}()
	<-inrStarted

	eur, err := l.Load(context.Background(), Request{Currency: "EUR"})
	if err != nil || eur.Currency != "EUR" {
		t.Fatalf("Load(EUR) = %+v, %v", eur, err)
	}
	close(release)
	if err := <-inrDone; err != nil {
		t.Fatalf("Load(INR) error = %v", err)
	}

	for _, code := range []currency.Code{"INR", "EUR"} {
		e, ok := l.Peek(context.Background(), code)
		if !ok || e.Currency != code {
			t.Fatalf("Peek(%s) = %+v, %v", code, e, ok)
		}
	}
}

func TestLoaderRejectsOtherCurrency(t *testing.T) {
	src := &stubSource{name: StrategyDirect, fetch: func(context.Context, Request) (*Data, error) {
		return inrData(StrategyDirect), nil
	}}
	obs := &recordingObserver{}
	l := NewLoader(newTestCache(), src, 0, obs)

	if _, err := l.Load(context.Background(), Request{Currency: "EUR"}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Load(EUR) error = %v, want ErrUnavailable", err)
	}
	if _, ok := l.Peek(context.Background(), "EUR"); ok {
		t.Fatal("mismatched entry cached under EUR")
	}
	if len(obs.outcomes) != 1 || !errors.Is(obs.outcomes[0].Err, ErrMalformed) {
		t.Fatalf("outcomes = %+v, want one malformed failure", obs.outcomes)
	}
}

func TestNewLoaderClampsTimeout(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{0, DefaultTimeout},
		{time.Second, MinTimeout},
		{10 * time.Second, 10 * time.Second},
		{time.Minute, MaxTimeout},
	}
	for _, tt := range tests {
		if got := NewLoader(nil, nil, tt.in).timeout; got != tt.want {
			t.Fatalf("NewLoader(%v).timeout = %v, want %v", tt.in, got, tt.want)
		}
	}
}

type observerFunc func(Outcome)

func (f observerFunc) FetchCompleted(_ context.Context, o Outcome) { f(o) }
