package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/better95159-hub/pricegate/internal/api"
	"github.com/better95159-hub/pricegate/internal/config"
	"github.com/better95159-hub/pricegate/internal/journal"
	"github.com/better95159-hub/pricegate/internal/localize"
	"github.com/better95159-hub/pricegate/internal/netutil"
	"github.com/better95159-hub/pricegate/internal/notify"
	"github.com/better95159-hub/pricegate/internal/pricecache"
	"github.com/better95159-hub/pricegate/internal/pricesource"
	"github.com/better95159-hub/pricegate/internal/proxy"
	"github.com/better95159-hub/pricegate/internal/relay"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Info("pricegate config loaded",
		"bind_addr", cfg.BindAddr,
		"upstream_url", cfg.UpstreamURL,
		"strategy", cfg.Strategy,
		"fetch_timeout_ms", cfg.FetchTimeoutMS,
		"cache_backend", cfg.CacheBackend,
		"cache_ttl_seconds", cfg.CacheTTLSeconds,
		"key_scheme", cfg.KeyScheme,
		"journal_enabled", cfg.JournalEnabled,
		"alerts", cfg.AlertURL != "",
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	storefront, err := config.LoadStorefront(cfg.StorefrontConfig)
	if err != nil {
		slog.Error("failed to load storefront config", "path", cfg.StorefrontConfig, "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open price cache", "backend", cfg.CacheBackend, "error", err)
		os.Exit(1)
	}
	defer closeStore()
	cache := pricecache.New(store, pricecache.KeyScheme{Name: cfg.KeyScheme, Prefix: cfg.KeyPrefix}, cfg.CacheTTL())

	client := &http.Client{Timeout: cfg.FetchTimeout()}
	var source pricesource.Source = pricesource.NewDirect(client, cfg.DirectAjaxURL(), cfg.AjaxAction, cfg.Nonce)
	if cfg.Strategy == pricesource.StrategyCDN {
		fallback := source
		if cfg.DirectAjaxURL() == "" {
			fallback = nil
		}
		source = pricesource.NewCDN(client, cfg.CDNRatesURL, cfg.CDNPricesURL, cache, fallback)
	}

	broker := relay.NewBroker()
	feed := relay.NewPriceFeed(broker)
	observers := []pricesource.Observer{feed}

	var jw *journal.Writer
	if cfg.JournalEnabled {
		jw, err = journal.Open(cfg.JournalDir, 0)
		if err != nil {
			slog.Error("failed to open journal", "dir", cfg.JournalDir, "error", err)
			os.Exit(1)
		}
		observers = append(observers, jw)
	}
	var alerter *notify.Alerter
	if cfg.AlertURL != "" {
		alerter = notify.NewAlerter(&http.Client{Timeout: 10 * time.Second}, cfg.AlertURL, notify.DefaultInterval)
		observers = append(observers, alerter)
	}

	loader := pricesource.NewLoader(cache, source, cfg.FetchTimeout(), observers...)
	svc := localize.New(loader, storefront.DOM, storefront.Bindings())

	opts := api.Options{Service: svc, Loader: loader, Broker: broker, Feed: feed}
	if cfg.UpstreamURL != "" {
		target, err := url.Parse(cfg.UpstreamURL)
		if err != nil {
			slog.Error("invalid upstream url", "url", cfg.UpstreamURL, "error", err)
			os.Exit(1)
		}
		opts.Storefront = proxy.New(target, svc, nil)
	}
	h := api.NewServer(opts)

	ln, err := netutil.Listen(cfg.BindAddr, netutil.ParseCandidates(cfg.PortCandidates, cfg.BindHost()), cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to listen", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}
	addr := ln.Addr().String()
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		slog.Info("pricegate listening", "addr", addr, "docs", "http://"+addr+api.Prefix+"/docs", "upstream", cfg.UpstreamURL)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("pricegate server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("pricegate shutdown failed", "error", err)
	}
	if alerter != nil {
		alerter.Wait()
	}
	if jw != nil {
		if err := jw.Close(); err != nil {
			slog.Error("journal close failed", "error", err)
		}
	}
}

func openStore(ctx context.Context, cfg *config.Config) (pricecache.Store, func(), error) {
	noop := func() {}
	switch cfg.CacheBackend {
	case "file":
		s, err := pricecache.NewFileStore(cfg.CacheDir, int64(cfg.CacheQuotaBytes))
		return s, noop, err
	case "redis":
		s, err := pricecache.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.KeyPrefix, cfg.CacheTTL())
		if err != nil {
			return nil, noop, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				slog.Warn("redis close failed", "error", err)
			}
		}, nil
	case "memory":
		return pricecache.NewMemoryStore(cfg.CacheQuotaBytes), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: parseLevel(level)})
	slog.SetDefault(slog.New(h))
	return nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
