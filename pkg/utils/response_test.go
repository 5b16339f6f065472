package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/murphlabs/murph/backend/pkg/apperr"
)

func TestRespondAppError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		status    int
		kind      apperr.Kind
		retryable bool
	}{
		{"payment", apperr.New(apperr.PaymentLockFailed, "backend.StartSession", "Insufficient balance"), http.StatusPaymentRequired, apperr.PaymentLockFailed, false},
		{"network", apperr.New(apperr.NetworkFailed, "backend.EndSession", "connection refused"), http.StatusBadGateway, apperr.NetworkFailed, true},
		{"plain", errors.New("boom"), http.StatusInternalServerError, apperr.Internal, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondAppError(rec, tc.err)

			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			var body ErrorBody
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Kind != string(tc.kind) || body.Retryable != tc.retryable || body.Error == "" {
				t.Fatalf("body = %+v", body)
			}
		})
	}
}

func TestDecodeJSONRejectsGarbage(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))
	var dst map[string]any
	if err := DecodeJSON(httptest.NewRecorder(), req, &dst); !apperr.Is(err, apperr.InvalidArgument) {
		t.Fatalf("DecodeJSON() = %v", err)
	}
}

func TestSendSSEEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := SendSSEEvent(rec, rec, "tick", map[string]int{"elapsed": 3}); err != nil {
		t.Fatalf("SendSSEEvent() error = %v", err)
	}
	if got := rec.Body.String(); got != "event: tick\ndata: {\"elapsed\":3}\n\n" {
		t.Fatalf("body = %q", got)
	}
}
