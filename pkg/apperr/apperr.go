package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind 标识错误所属的类别，决定展示方式与是否允许用户重试。
type Kind string

const (
	Internal             Kind = "internal"
	InvalidArgument      Kind = "invalid_argument"
	ValidationFailed     Kind = "validation_failed"
	NetworkFailed        Kind = "network_failed"
	Timeout              Kind = "timeout"
	NotFound             Kind = "not_found"
	Unauthorized         Kind = "unauthorized"
	PaymentLockFailed    Kind = "payment_lock_failed"
	SessionNotActive     Kind = "session_not_active"
	SettlementFailed     Kind = "settlement_failed"
	AlreadyCompleted     Kind = "already_completed"
	MilestoneProofFailed Kind = "milestone_proof_failed"
	Conflict             Kind = "conflict"
)

// Error carries a Kind plus the operation that produced it.
type Error struct {
	Kind    Kind
	Op      string // e.g. "backend.StartSession"
	Code    string // backend error code, if any
	Message string // human readable
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error without an underlying cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap creates an Error around err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain. Context errors
// map to Timeout; anything else is Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the human readable part of err, suitable for the UI.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}

// Retryable reports whether the user should be offered a retry control.
// Nothing in this module retries automatically.
func Retryable(err error) bool {
	switch KindOf(err) {
	case NetworkFailed, Timeout, SettlementFailed, Conflict:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a kind to the status the BFF answers with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidArgument, ValidationFailed:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case PaymentLockFailed:
		return http.StatusPaymentRequired
	case NotFound:
		return http.StatusNotFound
	case Conflict, SessionNotActive, AlreadyCompleted:
		return http.StatusConflict
	case NetworkFailed, SettlementFailed, MilestoneProofFailed:
		return http.StatusBadGateway
	case Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
