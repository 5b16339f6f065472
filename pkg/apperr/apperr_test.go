package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("connection refused")
	err := &Error{Kind: NetworkFailed, Op: "backend.StartSession", Err: cause}

	msg := err.Error()
	if !strings.Contains(msg, "backend.StartSession") {
		t.Errorf("Error() should contain op, got %q", msg)
	}
	if !strings.Contains(msg, "connection refused") {
		t.Errorf("Error() should fall back to cause, got %q", msg)
	}
	if !errors.Is(err, cause) {
		t.Error("Unwrap() should expose the cause")
	}
}

func TestKindOfThroughWrapping(t *testing.T) {
	base := New(PaymentLockFailed, "backend.StartSession", "Insufficient balance")
	wrapped := fmt.Errorf("start: %w", base)

	if got := KindOf(wrapped); got != PaymentLockFailed {
		t.Fatalf("KindOf() = %s, want %s", got, PaymentLockFailed)
	}
	if !Is(wrapped, PaymentLockFailed) {
		t.Fatal("Is() should match wrapped kind")
	}
	if got := Message(wrapped); got != "Insufficient balance" {
		t.Fatalf("Message() = %q", got)
	}
}

func TestKindOfPlainErrors(t *testing.T) {
	if got := KindOf(nil); got != "" {
		t.Errorf("KindOf(nil) = %q, want empty", got)
	}
	if got := KindOf(errors.New("boom")); got != Internal {
		t.Errorf("KindOf(plain) = %s, want internal", got)
	}
	if got := KindOf(fmt.Errorf("call: %w", context.DeadlineExceeded)); got != Timeout {
		t.Errorf("KindOf(deadline) = %s, want timeout", got)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(Internal, "op", nil) != nil {
		t.Fatal("Wrap(nil) should return nil")
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{NetworkFailed, true},
		{Timeout, true},
		{SettlementFailed, true},
		{ValidationFailed, false},
		{MilestoneProofFailed, false},
		{PaymentLockFailed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := Retryable(New(tt.kind, "", "x")); got != tt.want {
				t.Fatalf("Retryable(%s) = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{ValidationFailed, http.StatusBadRequest},
		{NotFound, http.StatusNotFound},
		{PaymentLockFailed, http.StatusPaymentRequired},
		{Conflict, http.StatusConflict},
		{SettlementFailed, http.StatusBadGateway},
		{Timeout, http.StatusGatewayTimeout},
		{Internal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.kind); got != tt.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}
