// Command pricecheck loads a storefront page in Chrome with a currency cookie
// and reports placeholders that stayed hidden and cart prices left in USD.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/better95159-hub/pricegate/internal/config"
	"github.com/better95159-hub/pricegate/internal/currency"
	"github.com/better95159-hub/pricegate/internal/pagecheck"
)

const (
	exitOK     = 0
	exitHidden = 1
	exitError  = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pricecheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	pageURL := fs.String("url", "", "storefront page to check")
	code := fs.String("currency", "INR", "currency cookie to set")
	storefrontPath := fs.String("storefront", os.Getenv("PRICEGATE_STOREFRONT_CONFIG"), "storefront contract YAML")
	saveDir := fs.String("save", "", "directory to keep the report and captured markup in")
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	cfg, err := config.LoadChecker()
	if err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return exitError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: levelOf(cfg.LogLevel)})))

	if *pageURL == "" {
		fmt.Fprintln(stderr, "pricecheck: -url is required")
		fs.Usage()
		return exitError
	}
	cur, ok := currency.Parse(*code)
	if !ok {
		fmt.Fprintf(stderr, "pricecheck: invalid currency %q\n", *code)
		return exitError
	}
	storefront, err := config.LoadStorefront(*storefrontPath)
	if err != nil {
		slog.Error("failed to load storefront config", "path", *storefrontPath, "error", err)
		return exitError
	}

	checker := pagecheck.NewChecker(pagecheck.Options{
		CDPURL:   cfg.CDPURL,
		Timeout:  time.Duration(cfg.TimeoutMS) * time.Millisecond,
		Settle:   time.Duration(cfg.SettleMS) * time.Millisecond,
		Contract: storefront.DOM,
	})
	report, html, err := checker.Check(context.Background(), *pageURL, cur)
	if err != nil {
		slog.Error("page check failed", "url", *pageURL, "error", err)
		return exitError
	}

	if *saveDir != "" {
		store, err := pagecheck.NewStore(*saveDir)
		if err != nil {
			slog.Error("failed to open report store", "dir", *saveDir, "error", err)
			return exitError
		}
		if err := store.Save(report, html); err != nil {
			slog.Error("failed to save report", "id", report.ID, "error", err)
			return exitError
		}
		slog.Info("report saved", "id", report.ID, "dir", *saveDir)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(report); err != nil {
		slog.Error("failed to write report", "error", err)
		return exitError
	}
	if !report.OK() {
		return exitHidden
	}
	return exitOK
}

func levelOf(level string) slog.Level {
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
