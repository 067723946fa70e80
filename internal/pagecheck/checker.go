package pagecheck

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"github.com/better95159-hub/pricegate/internal/currency"
	"github.com/better95159-hub/pricegate/internal/pricedom"
)

// Options configures a Checker.
type Options struct {
	// CDPURL attaches to a running browser. Empty launches headless Chrome.
	CDPURL   string
	Timeout  time.Duration
	Settle   time.Duration
	Contract pricedom.Contract
}

// Checker drives one browser tab per check.
type Checker struct {
	opts Options
}

func NewChecker(opts Options) *Checker {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	opts.Contract = opts.Contract.WithDefaults()
	return &Checker{opts: opts}
}

func (c *Checker) allocator(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.CDPURL != "" {
		slog.Info("connecting to browser", "url", c.opts.CDPURL)
		return chromedp.NewRemoteAllocator(ctx, c.opts.CDPURL)
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(1366, 900),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	return chromedp.NewExecAllocator(ctx, opts...)
}

// Check opens pageURL with the currency cookie set to code and analyzes the
// page once it settled. The captured markup is returned with the report.
func (c *Checker) Check(ctx context.Context, pageURL string, code currency.Code) (*Report, string, error) {
	start := time.Now()
	html, err := c.capture(ctx, pageURL, code)
	if err != nil {
		return nil, "", err
	}
	report, err := Analyze(html, c.opts.Contract)
	if err != nil {
		return nil, "", fmt.Errorf("pagecheck: analyze %s: %w", pageURL, err)
	}
	report.ID = uuid.NewString()
	report.URL = pageURL
	report.Currency = code
	report.CheckedAt = time.Now().UTC()
	slog.Info("page checked",
		"url", pageURL,
		"currency", code,
		"hidden_placeholders", len(report.HiddenPlaceholders),
		"plain_dollar_in_cart", len(report.PlainDollarInCart),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return report, html, nil
}

func (c *Checker) capture(ctx context.Context, pageURL string, code currency.Code) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("pagecheck: invalid url %q", pageURL)
	}

	allocCtx, allocCancel := c.allocator(ctx)
	defer allocCancel()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	defer tabCancel()
	runCtx, cancel := context.WithTimeout(tabCtx, c.opts.Timeout)
	defer cancel()

	var html string
	err = chromedp.Run(runCtx,
		network.Enable(),
		network.SetCacheDisabled(true),
		network.SetCookies([]*network.CookieParam{{
			Name:  currency.CookieName,
			Value: string(code),
			URL:   u.Scheme + "://" + u.Host + "/",
			Path:  "/",
		}}),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(c.opts.Settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("pagecheck: load %s: %w", pageURL, err)
	}
	return html, nil
}
