package review

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/murphlabs/murph/backend/internal/middleware"
	"github.com/murphlabs/murph/backend/internal/model/ledger"
	reviewModel "github.com/murphlabs/murph/backend/internal/model/review"
	reviewService "github.com/murphlabs/murph/backend/internal/service/review"
	"github.com/murphlabs/murph/backend/pkg/apperr"
)

type stubBackend struct {
	got reviewModel.Request
}

func (s *stubBackend) SubmitReview(_ context.Context, req reviewModel.Request) (reviewModel.BackendResult, error) {
	s.got = req
	return reviewModel.BackendResult{ReviewID: "rev-1", QualityScore: 0.92}, nil
}

type stubStore struct {
	records []*ledger.ReviewRecord
}

func (s *stubStore) SaveReview(_ context.Context, rec *ledger.ReviewRecord) error {
	s.records = append(s.records, rec)
	return nil
}

func (s *stubStore) GetReviewBySession(_ context.Context, id string) (*ledger.ReviewRecord, error) {
	for _, rec := range s.records {
		if rec.SessionID == id {
			return rec, nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "test", "Review not found")
}

func newRouter(backend *stubBackend) http.Handler {
	svc := reviewService.NewService(reviewService.Config{Backend: backend, Store: &stubStore{}})
	r := chi.NewRouter()
	r.Use(middleware.Auth)
	r.Route("/api", New(svc).RegisterRoutes)
	return r
}

func post(h http.Handler, path, body string, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set(middleware.UserIDHeader, user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSubmitReview(t *testing.T) {
	backend := &stubBackend{}
	h := newRouter(backend)

	rec := post(h, "/api/reviews", `{"sessionId":"ses-1","rating":5,"text":"Great walkthrough of select"}`, "stu-1")
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit = %d %s", rec.Code, rec.Body)
	}
	if backend.got.UserID != "stu-1" {
		t.Fatalf("user not taken from auth: %+v", backend.got)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"bonus":46`) || !strings.Contains(body, `"label":"Excellent"`) {
		t.Fatalf("body = %s", body)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/reviews/session/ses-1", nil)
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"reviewId":"rev-1"`) {
		t.Fatalf("get = %d %s", rec.Code, rec.Body)
	}
}

func TestSubmitReviewValidation(t *testing.T) {
	h := newRouter(&stubBackend{})

	rec := post(h, "/api/reviews", `{"sessionId":"ses-1","rating":0,"text":"ok"}`, "")
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), `"kind":"validation_failed"`) {
		t.Fatalf("invalid rating = %d %s", rec.Code, rec.Body)
	}

	rec = post(h, "/api/reviews", `{"sessionId":"ses-1","userId":"stu-2","rating":4,"text":"ok"}`, "stu-1")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("foreign user = %d", rec.Code)
	}
}

func TestPreview(t *testing.T) {
	h := newRouter(&stubBackend{})

	rec := post(h, "/api/reviews/preview", `{"text":"The worked example helped me understand mutexes","rating":4}`, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"source":"heuristic"`) {
		t.Fatalf("preview = %d %s", rec.Code, rec.Body)
	}
}

func TestPreviewWithoutRating(t *testing.T) {
	h := newRouter(&stubBackend{})

	rec := post(h, "/api/reviews/preview", `{"text":"The worked example helped me understand mutexes"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("preview without rating = %d %s", rec.Code, rec.Body)
	}
	rec = post(h, "/api/reviews/preview", `{"text":"The worked example helped me understand mutexes","rating":7}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("preview rating 7 = %d %s", rec.Code, rec.Body)
	}
}
