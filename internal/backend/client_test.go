package backend

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/murphlabs/murph/backend/internal/model/listing"
	"github.com/murphlabs/murph/backend/internal/model/review"
	"github.com/murphlabs/murph/backend/internal/model/session"
	"github.com/murphlabs/murph/backend/pkg/apperr"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(srv.URL, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func backendError(code, message string) map[string]any {
	return map[string]any{"detail": map[string]any{"error": map[string]string{"message": message, "code": code}}}
}

func TestStartSessionSendsTokenAndParsesResult(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions/start", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["student_id"] != "stu-1" || body["listing_id"] != "lst-1" {
			t.Errorf("unexpected body %v", body)
		}
		if body["reserve_amount"] != 15.0 {
			t.Errorf("reserve_amount = %v, want 15", body["reserve_amount"])
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id":     "ses-1",
			"status":         "active",
			"reserve_amount": 15.0,
			"transaction_id": "tx-1",
		})
	})
	client := newTestClient(t, mux)

	ctx := WithToken(context.Background(), "tok-1")
	res, err := client.StartSession(ctx, session.StartRequest{
		StudentID:     "stu-1",
		ListingID:     "lst-1",
		ReserveAmount: decimal.NewFromInt(15),
	})
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if res.SessionID != "ses-1" || res.TransactionID != "tx-1" {
		t.Fatalf("unexpected result %+v", res)
	}
	if !res.ReserveAmount.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("ReserveAmount = %s", res.ReserveAmount)
	}
}

func TestStartSessionInsufficientBalance(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusPaymentRequired, backendError("INSUFFICIENT_BALANCE", "Insufficient balance"))
	}))

	_, err := client.StartSession(context.Background(), session.StartRequest{StudentID: "s", ListingID: "l"})
	if !apperr.Is(err, apperr.PaymentLockFailed) {
		t.Fatalf("kind = %s, want PaymentLockFailed (%v)", apperr.KindOf(err), err)
	}
	if apperr.Message(err) != "Insufficient balance" {
		t.Fatalf("message = %q", apperr.Message(err))
	}
}

func TestStartSessionUnknownListing(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, backendError("LISTING_NOT_FOUND", "Listing not found"))
	}))

	_, err := client.StartSession(context.Background(), session.StartRequest{StudentID: "s", ListingID: "l"})
	if !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("kind = %s, want NotFound", apperr.KindOf(err))
	}
}

func TestEndSessionErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   any
		want   apperr.Kind
	}{
		{"not active", http.StatusBadRequest, backendError("SESSION_NOT_ACTIVE", "Session is not active"), apperr.SessionNotActive},
		{"server error", http.StatusInternalServerError, map[string]any{"detail": "boom"}, apperr.SettlementFailed},
		{"unknown session", http.StatusNotFound, backendError("SESSION_NOT_FOUND", "Session not found"), apperr.NotFound},
		{"unauthorized", http.StatusUnauthorized, map[string]any{"detail": "Not authenticated"}, apperr.Unauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.status, tc.body)
			}))
			_, err := client.EndSession(context.Background(), session.EndRequest{SessionID: "ses-1"})
			if got := apperr.KindOf(err); got != tc.want {
				t.Fatalf("kind = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestEndSessionParsesBreakdown(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions/end", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			SessionID            string  `json:"session_id"`
			CompletionPercentage float64 `json:"completion_percentage"`
			EngagementMetrics    struct {
				ElapsedTime   int64   `json:"elapsedTime"`
				VideoProgress float64 `json:"videoProgress"`
				Timestamp     string  `json:"timestamp"`
			} `json:"engagement_metrics"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body.CompletionPercentage != 60 || body.EngagementMetrics.ElapsedTime != 90 {
			t.Errorf("unexpected body %+v", body)
		}
		if body.EngagementMetrics.Timestamp == "" {
			t.Error("timestamp should be set")
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id":            "ses-1",
			"duration_min":          1.5,
			"completion_percentage": 60,
			"reserve_amount":        30,
			"final_amount_charged":  15,
			"refund_amount":         15,
			"escrow_id":             "esc-1",
		})
	})
	client := newTestClient(t, mux)

	res, err := client.EndSession(context.Background(), session.EndRequest{
		SessionID:            "ses-1",
		CompletionPercentage: 60,
		Engagement:           session.EngagementMetrics{ElapsedSeconds: 90, VideoProgress: 60},
	})
	if err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if !res.FinalCharge.Equal(decimal.NewFromInt(15)) || !res.Refund.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("unexpected amounts %+v", res)
	}
	if res.EscrowID != "esc-1" {
		t.Fatalf("EscrowID = %q", res.EscrowID)
	}
}

func TestListMilestonesKeepsOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /milestones", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("session_id") != "ses-1" {
			t.Errorf("session_id = %q", r.URL.Query().Get("session_id"))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"milestones": []map[string]any{
				{"id": "m-2", "index": 1, "status": "pending", "amount": 5},
				{"id": "m-1", "index": 0, "status": "completed", "amount": 5},
			},
			"total": 2,
		})
	})
	client := newTestClient(t, mux)

	items, err := client.ListMilestones(context.Background(), "ses-1")
	if err != nil {
		t.Fatalf("ListMilestones() error = %v", err)
	}
	if len(items) != 2 || items[0].ID != "m-2" || items[1].Status != session.MilestoneCompleted {
		t.Fatalf("unexpected milestones %+v", items)
	}
}

func TestSubmitMilestoneProofAlreadyCompleted(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /milestones/{id}/proof", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, backendError("ALREADY_COMPLETED", "Milestone already completed"))
	})
	client := newTestClient(t, mux)

	_, err := client.SubmitMilestoneProof(context.Background(), "m-1", session.Proof{ContentRef: "v.mp4", Notes: "Completed 60% of content"})
	if !apperr.Is(err, apperr.AlreadyCompleted) {
		t.Fatalf("kind = %s, want AlreadyCompleted", apperr.KindOf(err))
	}
}

func TestSubmitMilestoneProofSuccess(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /milestones/{id}/proof", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "m-1" {
			t.Errorf("id = %q", r.PathValue("id"))
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["video_url"] != "v.mp4" || body["notes"] != "Completed 60% of content" {
			t.Errorf("unexpected body %v", body)
		}
		writeJSON(w, http.StatusOK, map[string]any{"milestone_id": "m-1", "status": "completed"})
	})
	client := newTestClient(t, mux)

	status, err := client.SubmitMilestoneProof(context.Background(), "m-1", session.Proof{ContentRef: "v.mp4", Notes: "Completed 60% of content"})
	if err != nil {
		t.Fatalf("SubmitMilestoneProof() error = %v", err)
	}
	if status != session.MilestoneCompleted {
		t.Fatalf("status = %q", status)
	}
}

func TestTransportFailureIsNetworkFailed(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	client, err := New(baseURL, time.Second, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = client.WalletBalance(context.Background(), "u-1")
	if !apperr.Is(err, apperr.NetworkFailed) {
		t.Fatalf("kind = %s, want NetworkFailed", apperr.KindOf(err))
	}
	if !apperr.Retryable(err) {
		t.Fatal("network failures should be retryable")
	}
}

func TestDeadlineIsTimeout(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.ListMilestones(ctx, "ses-1")
	if !apperr.Is(err, apperr.Timeout) {
		t.Fatalf("kind = %s, want Timeout (%v)", apperr.KindOf(err), err)
	}
}

func TestListListingsMapsFields(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /discovery/listings", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "100" {
			t.Errorf("limit = %q", r.URL.Query().Get("limit"))
		}
		writeJSON(w, http.StatusOK, []map[string]any{{
			"id":                 "lst-1",
			"teacher_id":         "t-1",
			"teacher_name":       "Ada",
			"title":              "Go basics",
			"type":               "video",
			"total_duration_min": 30,
			"reserve_amount":     15,
			"price_per_min":      0.5,
			"status":             "published",
			"video_urls":         []string{"a.mp4", "b.mp4"},
			"reviews_rating":     4.5,
		}})
	})
	client := newTestClient(t, mux)

	items, err := client.ListListings(context.Background(), listing.Query{})
	if err != nil {
		t.Fatalf("ListListings() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d listings", len(items))
	}
	got := items[0]
	if got.InstructorName != "Ada" || got.DurationMinutes != 30 || got.Rating != 4.5 {
		t.Fatalf("unexpected listing %+v", got)
	}
	if !got.PricePerMinute.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("PricePerMinute = %s", got.PricePerMinute)
	}
	if got.PrimaryVideo() != "a.mp4" {
		t.Fatalf("PrimaryVideo() = %q", got.PrimaryVideo())
	}
}

func TestGetListingDetailVideoShapes(t *testing.T) {
	cases := []struct {
		name  string
		video any
		want  int
	}{
		{"single", "a.mp4", 1},
		{"list", []string{"a.mp4", "b.mp4"}, 2},
		{"missing", nil, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{
					"title":     "Go basics",
					"category":  "programming",
					"video_url": tc.video,
					"thumbnail": "t.png",
				})
			}))
			detail, err := client.GetListingDetail(context.Background(), "lst-1")
			if err != nil {
				t.Fatalf("GetListingDetail() error = %v", err)
			}
			if len(detail.VideoURLs) != tc.want {
				t.Fatalf("VideoURLs = %v, want %d entries", detail.VideoURLs, tc.want)
			}
		})
	}
}

func TestSubmitReviewMapsCredibility(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /reviews/submit", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["student_id"] != "u-1" || body["review_text"] != "Clear and practical" {
			t.Errorf("unexpected body %v", body)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"review_id":            "rev-1",
			"credibility_score":    0.85,
			"bonus_percentage":     10,
			"applied_bonus_amount": 1.5,
		})
	})
	client := newTestClient(t, mux)

	res, err := client.SubmitReview(context.Background(), review.Request{SessionID: "ses-1", UserID: "u-1", Rating: 5, Text: "Clear and practical"})
	if err != nil {
		t.Fatalf("SubmitReview() error = %v", err)
	}
	if res.ReviewID != "rev-1" || res.QualityScore != 0.85 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRegisterValidatesLocally(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend should not be called")
	}))

	_, err := client.Register(context.Background(), Registration{Email: "a@b.c", Password: "123", Role: "student", Name: "A"})
	if !apperr.Is(err, apperr.ValidationFailed) {
		t.Fatalf("kind = %s, want ValidationFailed", apperr.KindOf(err))
	}
}

func TestParseErrorBody(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		wantMsg  string
		wantCode string
	}{
		{"nested detail", `{"detail":{"error":{"message":"Wallet not connected","code":"WALLET_NOT_CONNECTED"}}}`, "Wallet not connected", "WALLET_NOT_CONNECTED"},
		{"top level", `{"error":{"message":"nope","code":"X"}}`, "nope", "X"},
		{"detail string", `{"detail":"Not authenticated"}`, "Not authenticated", ""},
		{"validation list", `{"detail":[{"msg":"field required"},{"msg":"too short"}]}`, "field required; too short", ""},
		{"plain text", `Bad Gateway`, "Bad Gateway", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, code := parseErrorBody([]byte(tc.body))
			if msg != tc.wantMsg || code != tc.wantCode {
				t.Fatalf("parseErrorBody() = (%q, %q), want (%q, %q)", msg, code, tc.wantMsg, tc.wantCode)
			}
		})
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New("  ", time.Second, nil); err == nil {
		t.Fatal("expected error for empty base url")
	}
}

func TestGetSessionMapsNullableFields(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"id":                   r.PathValue("id"),
			"student_id":           "stu-1",
			"listing_id":           "lst-1",
			"status":               "ended",
			"end_time":             "2026-03-01T10:00:00.123456+00:00",
			"duration_min":         2.5,
			"final_amount_charged": 5.0,
			"refund_amount":        nil,
		})
	})
	client := newTestClient(t, mux)

	rec, err := client.GetSession(context.Background(), "ses-9")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if rec.ID != "ses-9" || !rec.Ended() || rec.DurationMinutes != 2.5 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if !rec.FinalCharge.Equal(decimal.NewFromInt(5)) || !rec.Refund.IsZero() {
		t.Fatalf("amounts = %s / %s", rec.FinalCharge, rec.Refund)
	}
	if rec.EndTime.Hour() != 10 || rec.EndTime.Year() != 2026 {
		t.Fatalf("EndTime = %v", rec.EndTime)
	}
}

func TestStudentSessionsListShapes(t *testing.T) {
	cases := []struct {
		name string
		body any
	}{
		{"array", []map[string]any{{"id": "ses-1", "status": "ended"}, {"id": "ses-2", "status": "active"}}},
		{"wrapped", map[string]any{"sessions": []map[string]any{{"id": "ses-1", "status": "ended"}, {"id": "ses-2", "status": "active"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /sessions/student/{id}", func(w http.ResponseWriter, r *http.Request) {
				if r.PathValue("id") != "stu-1" {
					t.Errorf("student = %q", r.PathValue("id"))
				}
				writeJSON(w, http.StatusOK, tc.body)
			})
			client := newTestClient(t, mux)

			items, err := client.StudentSessions(context.Background(), "stu-1")
			if err != nil {
				t.Fatalf("StudentSessions() error = %v", err)
			}
			if len(items) != 2 || items[0].ID != "ses-1" || !items[0].Ended() || items[1].Ended() {
				t.Fatalf("unexpected sessions %+v", items)
			}
		})
	}
}

func TestSessionPayments(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /payments/by_session", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("session_id") != "ses-1" {
			writeJSON(w, http.StatusNotFound, backendError("SESSION_NOT_FOUND", "Session not found"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id": "ses-1",
			"payments": []map[string]any{
				{"id": "p-1", "type": "lock", "amount": 30.0, "status": "success", "created_at": "2026-03-01T09:00:00"},
				{"id": "p-2", "type": "settle", "amount": 12.5, "status": "success", "created_at": "2026-03-01T09:10:00+00:00"},
				{"id": "p-3", "type": "refund", "amount": 17.5, "status": "failed", "created_at": "2026-03-01T09:10:00+00:00"},
			},
		})
	})
	client := newTestClient(t, mux)

	payments, err := client.SessionPayments(context.Background(), "ses-1")
	if err != nil {
		t.Fatalf("SessionPayments() error = %v", err)
	}
	if len(payments) != 3 || payments[1].Type != session.PaymentSettle || payments[0].SessionID != "ses-1" {
		t.Fatalf("unexpected payments %+v", payments)
	}
	if payments[0].CreatedAt.IsZero() || !payments[1].Amount.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected payment fields %+v", payments[:2])
	}
	if payments[2].Succeeded() {
		t.Fatal("failed refund reported as succeeded")
	}

	if _, err := client.SessionPayments(context.Background(), "missing"); !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("missing session = %v", err)
	}
}
