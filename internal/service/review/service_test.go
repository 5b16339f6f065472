package review

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/murphlabs/murph/backend/internal/analysis/bonus"
	"github.com/murphlabs/murph/backend/internal/model/ledger"
	"github.com/murphlabs/murph/backend/internal/model/review"
	"github.com/murphlabs/murph/backend/internal/service/ai"
	"github.com/murphlabs/murph/backend/pkg/apperr"
)

type fakeBackend struct {
	result review.BackendResult
	err    error
	calls  int
}

func (f *fakeBackend) SubmitReview(_ context.Context, _ review.Request) (review.BackendResult, error) {
	f.calls++
	return f.result, f.err
}

type memoryStore struct {
	saved   []*ledger.ReviewRecord
	saveErr error
}

func (m *memoryStore) SaveReview(_ context.Context, record *ledger.ReviewRecord) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, record)
	return nil
}

func (m *memoryStore) GetReviewBySession(_ context.Context, sessionID string) (*ledger.ReviewRecord, error) {
	for _, r := range m.saved {
		if r.SessionID == sessionID {
			return r, nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "test", "no review")
}

type fakeGrader struct {
	enabled bool
	grade   ai.Grade
	err     error
}

func (g *fakeGrader) Enabled() bool { return g.enabled }

func (g *fakeGrader) Grade(_ context.Context, _ ai.Draft) (ai.Grade, error) {
	return g.grade, g.err
}

func validRequest() review.Request {
	return review.Request{SessionID: "ses-1", UserID: "stu-1", Rating: 5, Text: "  Clear examples and a good project  "}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		mod  func(r *review.Request)
	}{
		{"rating zero", func(r *review.Request) { r.Rating = 0 }},
		{"rating six", func(r *review.Request) { r.Rating = 6 }},
		{"blank text", func(r *review.Request) { r.Text = "   " }},
		{"missing session", func(r *review.Request) { r.SessionID = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mod(&req)
			if err := Validate(req); !apperr.Is(err, apperr.ValidationFailed) {
				t.Fatalf("Validate() = %v, want ValidationFailed", err)
			}
		})
	}

	if err := Validate(validRequest()); err != nil {
		t.Fatalf("Validate(valid) = %v", err)
	}
}

func TestSubmitRejectsInvalidWithoutBackendCall(t *testing.T) {
	backend := &fakeBackend{}
	svc := NewService(Config{Backend: backend})

	req := validRequest()
	req.Rating = 0
	if _, err := svc.Submit(context.Background(), req); !apperr.Is(err, apperr.ValidationFailed) {
		t.Fatalf("Submit() = %v", err)
	}
	if backend.calls != 0 {
		t.Fatalf("backend called %d times", backend.calls)
	}
}

func TestSubmitDerivesBonusAndPersists(t *testing.T) {
	backend := &fakeBackend{result: review.BackendResult{
		ReviewID:           "rev-9",
		QualityScore:       0.95,
		AppliedBonusAmount: decimal.RequireFromString("1.20"),
	}}
	store := &memoryStore{}
	svc := NewService(Config{Backend: backend, Store: store})

	sub, err := svc.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if sub.ReviewID != "rev-9" || sub.Bonus != 48 || sub.Label != string(bonus.Excellent) || sub.Feedback != "Excellent review!" {
		t.Fatalf("unexpected submission %+v", sub)
	}
	if sub.Text != "Clear examples and a good project" {
		t.Fatalf("text not trimmed: %q", sub.Text)
	}
	if len(store.saved) != 1 || store.saved[0].Bonus != 48 || store.saved[0].StudentID != "stu-1" {
		t.Fatalf("stored = %+v", store.saved)
	}

	got, err := svc.GetBySession(context.Background(), "ses-1")
	if err != nil || got.ReviewID != "rev-9" || got.Feedback != "Excellent review!" {
		t.Fatalf("GetBySession() = %+v, %v", got, err)
	}
}

func TestSubmitGeneratesIDAndClampsScore(t *testing.T) {
	backend := &fakeBackend{result: review.BackendResult{QualityScore: 1.4}}
	svc := NewService(Config{Backend: backend})

	sub, err := svc.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if sub.ReviewID == "" {
		t.Fatal("expected a generated review id")
	}
	if sub.QualityScore != 1 || sub.Bonus != bonus.MaxBonus {
		t.Fatalf("score=%v bonus=%d", sub.QualityScore, sub.Bonus)
	}
}

func TestSubmitSurvivesStoreFailure(t *testing.T) {
	backend := &fakeBackend{result: review.BackendResult{ReviewID: "rev-1", QualityScore: 0.5}}
	svc := NewService(Config{Backend: backend, Store: &memoryStore{saveErr: errors.New("disk full")}})

	sub, err := svc.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if sub.Bonus != 30 || sub.Label != string(bonus.NeedsImprovement) {
		t.Fatalf("unexpected submission %+v", sub)
	}
}

func TestSubmitPropagatesBackendError(t *testing.T) {
	backend := &fakeBackend{err: apperr.New(apperr.NetworkFailed, "backend.SubmitReview", "connection refused")}
	svc := NewService(Config{Backend: backend})

	_, err := svc.Submit(context.Background(), validRequest())
	if !apperr.Is(err, apperr.NetworkFailed) || !apperr.Retryable(err) {
		t.Fatalf("Submit() = %v", err)
	}
}

func TestPreviewUsesGrader(t *testing.T) {
	grader := &fakeGrader{enabled: true, grade: ai.Grade{Score: 0.85, Feedback: "Mention one concrete example."}}
	svc := NewService(Config{Grader: grader})

	p, err := svc.Preview(context.Background(), "Loved the channel section", 4, 70)
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if p.Source != SourceAI || p.Bonus != 44 || p.Label != string(bonus.Great) || p.Feedback != "Mention one concrete example." {
		t.Fatalf("unexpected preview %+v", p)
	}
}

func TestPreviewFallsBackToHeuristic(t *testing.T) {
	cases := []struct {
		name   string
		grader Grader
	}{
		{"no grader", nil},
		{"disabled", &fakeGrader{}},
		{"grader error", &fakeGrader{enabled: true, err: errors.New("timeout")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewService(Config{Grader: tc.grader})
			p, err := svc.Preview(context.Background(), "The code walkthrough helped me understand channels", 4, 0)
			if err != nil {
				t.Fatalf("Preview() error = %v", err)
			}
			if p.Source != SourceHeuristic {
				t.Fatalf("Source = %q", p.Source)
			}
			want, _ := bonus.Calculate(p.QualityScore)
			if p.Bonus != want || p.Feedback == "" {
				t.Fatalf("unexpected preview %+v", p)
			}
		})
	}
}

func TestPreviewRejectsEmptyDraft(t *testing.T) {
	svc := NewService(Config{})
	if _, err := svc.Preview(context.Background(), " ", 3, 0); !apperr.Is(err, apperr.ValidationFailed) {
		t.Fatalf("Preview() = %v", err)
	}
}

func TestPreviewRatingRange(t *testing.T) {
	svc := NewService(Config{})
	text := "The code walkthrough helped me understand channels"

	for _, rating := range []int{Unrated, MinRating, MaxRating} {
		if _, err := svc.Preview(context.Background(), text, rating, 0); err != nil {
			t.Fatalf("Preview(rating=%d) error = %v", rating, err)
		}
	}
	for _, rating := range []int{-1, MaxRating + 1} {
		if _, err := svc.Preview(context.Background(), text, rating, 0); !apperr.Is(err, apperr.ValidationFailed) {
			t.Fatalf("Preview(rating=%d) = %v, want ValidationFailed", rating, err)
		}
	}
}
