package listing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/murphlabs/murph/backend/internal/backend"
	"github.com/murphlabs/murph/backend/internal/model/listing"
	"github.com/murphlabs/murph/backend/pkg/apperr"
)

type stubCatalog struct {
	lastQuery string
}

func (s *stubCatalog) GetListingDetail(_ context.Context, id string) (listing.Detail, error) {
	if id != "lst-1" {
		return listing.Detail{}, apperr.New(apperr.NotFound, "backend.GetListingDetail", "Listing not found")
	}
	return listing.Detail{Title: "Go concurrency", VideoURLs: []string{"a.mp4", "b.mp4"}}, nil
}

func (s *stubCatalog) Suggest(_ context.Context, query string) (backend.Suggestion, error) {
	s.lastQuery = query
	if strings.TrimSpace(query) == "" {
		return backend.Suggestion{}, apperr.New(apperr.ValidationFailed, "backend.Suggest", "query is required")
	}
	return backend.Suggestion{Reasoning: "matches your goal"}, nil
}

func newRouter(catalog Catalog) http.Handler {
	store := listing.NewMemoryStore([]listing.Listing{
		{ID: "lst-1", Title: "Go concurrency", PricePerMinute: decimal.NewFromInt(10), Tags: map[string]any{"topic": "go"}},
		{ID: "lst-2", Title: "Rust ownership", PricePerMinute: decimal.NewFromInt(12), Tags: map[string]any{"topic": "rust"}},
	})
	r := chi.NewRouter()
	r.Route("/api", New(store, catalog).RegisterRoutes)
	return r
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestListListings(t *testing.T) {
	h := newRouter(&stubCatalog{})

	rec := get(t, h, "/api/listings")
	var items []listing.Listing
	if err := json.NewDecoder(rec.Body).Decode(&items); err != nil || len(items) != 2 {
		t.Fatalf("list = %v, %v", items, err)
	}

	rec = get(t, h, "/api/listings?limit=abc")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit = %d", rec.Code)
	}
}

func TestGetListing(t *testing.T) {
	h := newRouter(&stubCatalog{})

	rec := get(t, h, "/api/listings/lst-2")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Rust ownership") {
		t.Fatalf("get = %d %s", rec.Code, rec.Body)
	}

	rec = get(t, h, "/api/listings/nope")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing = %d", rec.Code)
	}
}

func TestListingDetail(t *testing.T) {
	h := newRouter(&stubCatalog{})

	rec := get(t, h, "/api/listings/lst-1/detail")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"videoUrls":["a.mp4","b.mp4"]`) {
		t.Fatalf("detail = %d %s", rec.Code, rec.Body)
	}

	rec = get(t, h, "/api/listings/zzz/detail")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing detail = %d", rec.Code)
	}

	rec = get(t, newRouter(nil), "/api/listings/lst-1/detail")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("no catalog = %d", rec.Code)
	}
}

func TestSuggest(t *testing.T) {
	catalog := &stubCatalog{}
	h := newRouter(catalog)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/discovery/suggest", strings.NewReader(`{"query":"learn channels"}`)))
	if rec.Code != http.StatusOK || catalog.lastQuery != "learn channels" {
		t.Fatalf("suggest = %d %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"matches":[]`) {
		t.Fatalf("matches should encode as an empty list: %s", rec.Body)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/discovery/suggest", strings.NewReader(`{"query":" "}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty query = %d", rec.Code)
	}
}
