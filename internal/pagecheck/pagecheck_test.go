package pagecheck

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/better95159-hub/pricegate/internal/pricedom"
)

const checkedPage = `<html><body>` +
	`<ul><li class="product">` +
	`<span class="price" data-product-id="1" data-converted="INR"><span class="woocommerce-Price-amount amount">` +
	`<span class="woocommerce-Price-currencySymbol">₹</span>830</span></span></li>` +
	`<li class="product"><span class="price loading-price" data-price-placeholder data-product-id="2" style="visibility:hidden"></span></li>` +
	`<li class="product"><span class="wc-price-prefetch" data-product-id="3">₹415</span></li>` +
	`</ul>` +
	`<div class="cart_totals"><span class="woocommerce-Price-amount amount"><bdi>` +
	`<span class="woocommerce-Price-currencySymbol">$</span>25.00</bdi></span>` +
	`<span class="woocommerce-Price-amount amount" data-converted="EUR"><bdi>` +
	`<span class="woocommerce-Price-currencySymbol">€</span>23</bdi></span></div>` +
	`</body></html>`

func TestAnalyze(t *testing.T) {
	r, err := Analyze(checkedPage, pricedom.DefaultContract())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if r.Placeholders != 2 {
		t.Fatalf("Placeholders = %d, want 2", r.Placeholders)
	}
	if len(r.HiddenPlaceholders) != 1 || r.HiddenPlaceholders[0].ProductID != "2" {
		t.Fatalf("HiddenPlaceholders = %+v", r.HiddenPlaceholders)
	}
	if r.Converted["INR"] != 1 || r.Converted["EUR"] != 1 {
		t.Fatalf("Converted = %v", r.Converted)
	}
	if len(r.PlainDollarInCart) != 1 || r.PlainDollarInCart[0].Text != "$25.00" {
		t.Fatalf("PlainDollarInCart = %+v", r.PlainDollarInCart)
	}
	if r.OK() {
		t.Fatal("OK() = true with a hidden placeholder")
	}
}

func TestAnalyzeCleanPage(t *testing.T) {
	r, err := Analyze(`<html><body><span class="price" data-converted="INR">₹830</span></body></html>`, pricedom.Contract{})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if !r.OK() || len(r.PlainDollarInCart) != 0 || r.HiddenPlaceholders == nil {
		t.Fatalf("Analyze() = %+v", r)
	}
}

func TestFindingTruncatesText(t *testing.T) {
	long := strings.Repeat("₹", maxFindingText+10)
	r, _ := Analyze(`<body><span class="loading-price wc-price-prefetch">`+long+`</span></body>`, pricedom.DefaultContract())
	if len(r.HiddenPlaceholders) != 1 {
		t.Fatalf("HiddenPlaceholders = %d, want 1", len(r.HiddenPlaceholders))
	}
	if got := r.HiddenPlaceholders[0].Text; !strings.HasSuffix(got, "...") || len([]rune(got)) != maxFindingText+3 {
		t.Fatalf("Text = %q", got)
	}
}

func TestNewCheckerDefaults(t *testing.T) {
	c := NewChecker(Options{})
	if c.opts.Timeout != 30*time.Second || c.opts.Contract.PriceSelector == "" {
		t.Fatalf("opts = %+v", c.opts)
	}
}

func TestStoreSaveListDelete(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "reports"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	older := &Report{ID: uuid.NewString(), URL: "https://shop.example.com/a", CheckedAt: time.Now().Add(-time.Minute)}
	newer := &Report{ID: uuid.NewString(), URL: "https://shop.example.com/b", CheckedAt: time.Now()}
	for _, r := range []*Report{older, newer} {
		if err := store.Save(r, "<html>"+r.URL+"</html>"); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	list, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != newer.ID {
		t.Fatalf("List() = %+v, want newest first", list)
	}
	html, err := store.ReadHTML(older.ID)
	if err != nil || !strings.Contains(html, "/a") {
		t.Fatalf("ReadHTML() = %q, %v", html, err)
	}

	if err := store.Delete(older.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(older.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after Delete error = %v, want ErrNotFound", err)
	}
	if err := store.Save(&Report{ID: "../escape"}, ""); err == nil {
		t.Fatal("Save() accepted an invalid id")
	}
}

func TestDeleteLogsHTMLCleanupFailureWhenMarkupMissing(t *testing.T) {
	dir := t.TempDir()
	store := &Store{dir: dir}
	id := "123e4567-e89b-12d3-a456-426614174000"
	if err := os.WriteFile(filepath.Join(dir, id+".json"), []byte(`{"id":"`+id+`"}`), 0o644); err != nil {
		t.Fatalf("os.WriteFile() failed: %v", err)
	}

	var buf bytes.Buffer
	oldLogger := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() {
		slog.SetDefault(oldLogger)
	})

	if err := store.Delete(id); err != nil {
		t.Fatalf("Delete() = %v; want nil", err)
	}
	if !strings.Contains(buf.String(), "report html cleanup failed") {
		t.Fatalf("expected html cleanup debug log, got %q", buf.String())
	}
}
