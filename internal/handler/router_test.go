package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/murphlabs/murph/backend/internal/handler/listing"
	listingModel "github.com/murphlabs/murph/backend/internal/model/listing"
)

func TestHealthz(t *testing.T) {
	r := NewRouter(Routes{}, []string{"*"})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() == "" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body)
	}
}

func TestRouterMountsHandlersWithCORS(t *testing.T) {
	store := listingModel.NewMemoryStore([]listingModel.Listing{{ID: "lst-1", Title: "Go"}})
	r := NewRouter(Routes{Listings: listing.New(store, nil)}, []string{"https://murph.app"})

	req := httptest.NewRequest(http.MethodGet, "/api/listings", nil)
	req.Header.Set("Origin", "https://murph.app")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("listings = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://murph.app" {
		t.Fatalf("allow origin = %q", got)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/wallet/balance", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unmounted route = %d", rec.Code)
	}
}
