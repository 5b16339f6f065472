package backend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/murphlabs/murph/backend/pkg/apperr"
)

// classifier picks the error Kind for a rejected call.
type classifier func(status int, code string) apperr.Kind

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// decodeError understands the backend's error envelopes:
//
//	{"detail": {"error": {"message": "...", "code": "..."}}}
//	{"error": {"message": "...", "code": "..."}}
//	{"detail": "..."}
//	{"detail": [{"msg": "..."}]}
func decodeError(op string, status int, data []byte, classify classifier) error {
	message, code := parseErrorBody(data)
	if message == "" {
		message = http.StatusText(status)
		if message == "" {
			message = fmt.Sprintf("request failed with status %d", status)
		}
	}

	if classify == nil {
		classify = classifyDefault
	}
	return &apperr.Error{
		Kind:    classify(status, code),
		Op:      op,
		Code:    code,
		Message: message,
		Err:     fmt.Errorf("backend status %d", status),
	}
}

func parseErrorBody(data []byte) (string, string) {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
		Error  *errorBody      `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return strings.TrimSpace(string(data)), ""
	}

	if envelope.Error != nil {
		return envelope.Error.Message, envelope.Error.Code
	}
	if len(envelope.Detail) == 0 {
		return "", ""
	}

	var nested struct {
		Error *errorBody `json:"error"`
	}
	if err := json.Unmarshal(envelope.Detail, &nested); err == nil && nested.Error != nil {
		return nested.Error.Message, nested.Error.Code
	}

	var text string
	if err := json.Unmarshal(envelope.Detail, &text); err == nil {
		return text, ""
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil && len(items) > 0 {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if item.Msg != "" {
				msgs = append(msgs, item.Msg)
			}
		}
		return strings.Join(msgs, "; "), ""
	}
	return "", ""
}

func isAuthFailure(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

func isNotFound(status int, code string) bool {
	return status == http.StatusNotFound || strings.HasSuffix(code, "_NOT_FOUND")
}

func classifyDefault(status int, code string) apperr.Kind {
	switch {
	case isAuthFailure(status):
		return apperr.Unauthorized
	case isNotFound(status, code):
		return apperr.NotFound
	case status == http.StatusConflict:
		return apperr.Conflict
	case status >= http.StatusInternalServerError:
		return apperr.NetworkFailed
	default:
		return apperr.ValidationFailed
	}
}

// classifyStart: any refusal to lock funds is a payment failure unless the
// listing or student is unknown.
func classifyStart(status int, code string) apperr.Kind {
	switch {
	case isAuthFailure(status):
		return apperr.Unauthorized
	case code == "INSUFFICIENT_BALANCE", code == "WALLET_NOT_CONNECTED", status == http.StatusPaymentRequired:
		return apperr.PaymentLockFailed
	case isNotFound(status, code):
		return apperr.NotFound
	case status == http.StatusUnprocessableEntity:
		return apperr.ValidationFailed
	default:
		return apperr.PaymentLockFailed
	}
}

func classifyEnd(status int, code string) apperr.Kind {
	switch {
	case isAuthFailure(status):
		return apperr.Unauthorized
	case code == "SESSION_NOT_ACTIVE":
		return apperr.SessionNotActive
	case isNotFound(status, code):
		return apperr.NotFound
	default:
		return apperr.SettlementFailed
	}
}

func classifyProof(status int, code string) apperr.Kind {
	switch {
	case isAuthFailure(status):
		return apperr.Unauthorized
	case code == "ALREADY_COMPLETED":
		return apperr.AlreadyCompleted
	case isNotFound(status, code):
		return apperr.NotFound
	default:
		return apperr.MilestoneProofFailed
	}
}

func classifyReview(status int, code string) apperr.Kind {
	switch {
	case isAuthFailure(status):
		return apperr.Unauthorized
	case isNotFound(status, code):
		return apperr.NotFound
	case status >= http.StatusInternalServerError:
		return apperr.NetworkFailed
	default:
		return apperr.ValidationFailed
	}
}
