package wallet

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/murphlabs/murph/backend/internal/backend"
	"github.com/murphlabs/murph/backend/internal/middleware"
	walletService "github.com/murphlabs/murph/backend/internal/service/wallet"
)

type stubBackend struct{}

func (stubBackend) WalletBalance(_ context.Context, userID string) (backend.WalletBalance, error) {
	return backend.WalletBalance{UserID: userID, Balance: decimal.RequireFromString("250.50"), Currency: "USD"}, nil
}

func (stubBackend) WalletConnect(_ context.Context, userID string) (backend.WalletBalance, error) {
	return backend.WalletBalance{UserID: userID, WalletAddress: "0xabc", Balance: decimal.NewFromInt(1000), Currency: "USD"}, nil
}

func newRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Auth)
	r.Route("/api", New(walletService.NewService(stubBackend{}, nil, nil, nil)).RegisterRoutes)
	return r
}

func serve(h http.Handler, method, path, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if user != "" {
		req.Header.Set(middleware.UserIDHeader, user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBalance(t *testing.T) {
	h := newRouter()

	rec := serve(h, http.MethodGet, "/api/wallet/balance", "stu-1")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"userId":"stu-1"`) {
		t.Fatalf("balance = %d %s", rec.Code, rec.Body)
	}

	rec = serve(h, http.MethodGet, "/api/wallet/balance?userId=stu-3", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"userId":"stu-3"`) {
		t.Fatalf("query balance = %d %s", rec.Code, rec.Body)
	}

	rec = serve(h, http.MethodGet, "/api/wallet/balance?userId=stu-3", "stu-1")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("foreign balance = %d", rec.Code)
	}

	rec = serve(h, http.MethodGet, "/api/wallet/balance", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("anonymous balance = %d", rec.Code)
	}
}

func TestConnectAndTransactions(t *testing.T) {
	h := newRouter()

	rec := serve(h, http.MethodPost, "/api/wallet/connect", "stu-1")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"walletAddress":"0xabc"`) {
		t.Fatalf("connect = %d %s", rec.Code, rec.Body)
	}

	rec = serve(h, http.MethodGet, "/api/wallet/transactions", "stu-1")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("transactions = %d %s", rec.Code, rec.Body)
	}
}
