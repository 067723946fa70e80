// Package notify posts plain-text alerts to an ntfy-style webhook.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/better95159-hub/pricegate/internal/pricesource"
)

const (
	sendTimeout = 10 * time.Second
	// DefaultInterval is the minimum gap between two alerts of the same kind
	// for the same currency.
	DefaultInterval = 10 * time.Minute
)

// Send posts message to endpoint.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	if endpoint == "" {
		return errors.New("alert endpoint is empty")
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Title", "pricegate")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert notification failed: status=%d", resp.StatusCode)
	}
	return nil
}

// Alerter turns failed and fallen-back price fetches into alerts. Repeats
// within the interval are suppressed.
type Alerter struct {
	client   *http.Client
	endpoint string
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
	wg   sync.WaitGroup
}

func NewAlerter(client *http.Client, endpoint string, interval time.Duration) *Alerter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Alerter{
		client:   client,
		endpoint: endpoint,
		interval: interval,
		now:      time.Now,
		last:     make(map[string]time.Time),
	}
}

// FetchCompleted implements pricesource.Observer. Alerts are sent in the
// background; Wait blocks until they finish.
func (a *Alerter) FetchCompleted(ctx context.Context, o pricesource.Outcome) {
	var kind, msg string
	switch {
	case o.Err != nil:
		kind = "failed"
		msg = fmt.Sprintf("price fetch for %s failed (strategy %s): %v", o.Currency, o.Strategy, o.Err)
	case o.Fallback():
		kind = "fallback"
		msg = fmt.Sprintf("%s price source fell back to %s for %s", o.Strategy, o.Via, o.Currency)
	default:
		return
	}
	if !a.allow(kind + ":" + string(o.Currency)) {
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()
		if err := Send(sendCtx, a.client, a.endpoint, msg); err != nil {
			slog.Warn("alert not delivered", "kind", kind, "currency", o.Currency, "error", err)
		}
	}()
}

func (a *Alerter) allow(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	if last, ok := a.last[key]; ok && now.Sub(last) < a.interval {
		return false
	}
	a.last[key] = now
	return true
}

// Wait blocks until in-flight alerts are delivered or abandoned.
func (a *Alerter) Wait() { a.wg.Wait() }
