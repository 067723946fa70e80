package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDocsDarkMode(t *testing.T) {
	h, _ := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/pricegate/docs", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if !strings.Contains(body, `data-theme="dark"`) {
		t.Fatalf("docs missing dark theme marker")
	}
	if !strings.Contains(body, `/pricegate/openapi.json`) {
		t.Fatalf("docs not pointing at the openapi document")
	}
}

func TestOpenAPIListsOperations(t *testing.T) {
	h, _ := newTestServer(t, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/pricegate/openapi.json", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	for _, op := range []string{"localize-page", "handle-event", "set-currency", "convert"} {
		if !strings.Contains(w.Body.String(), op) {
			t.Fatalf("openapi missing operation %q", op)
		}
	}
}
