package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/murphlabs/murph/backend/internal/model/session"
	"github.com/murphlabs/murph/backend/pkg/apperr"
)

type sessionPayload struct {
	ID                   string              `json:"id"`
	SessionID            string              `json:"session_id"`
	StudentID            string              `json:"student_id"`
	TeacherID            string              `json:"teacher_id"`
	ListingID            string              `json:"listing_id"`
	Status               string              `json:"status"`
	StartTime            string              `json:"start_time"`
	EndTime              string              `json:"end_time"`
	DurationMin          *float64            `json:"duration_min"`
	CompletionPercentage *float64            `json:"completion_percentage"`
	FinalAmountCharged   decimal.NullDecimal `json:"final_amount_charged"`
	RefundAmount         decimal.NullDecimal `json:"refund_amount"`
	TransactionID        string              `json:"transaction_id"`
}

func (p sessionPayload) toRecord() session.Record {
	rec := session.Record{
		ID:            p.ID,
		StudentID:     p.StudentID,
		TeacherID:     p.TeacherID,
		ListingID:     p.ListingID,
		Status:        p.Status,
		StartTime:     parseTimestamp(p.StartTime),
		EndTime:       parseTimestamp(p.EndTime),
		FinalCharge:   p.FinalAmountCharged.Decimal,
		Refund:        p.RefundAmount.Decimal,
		TransactionID: p.TransactionID,
	}
	if rec.ID == "" {
		rec.ID = p.SessionID
	}
	if p.DurationMin != nil {
		rec.DurationMinutes = *p.DurationMin
	}
	if p.CompletionPercentage != nil {
		rec.CompletionPercentage = *p.CompletionPercentage
	}
	return rec
}

// GetSession reads one session row from the backend.
func (c *Client) GetSession(ctx context.Context, sessionID string) (session.Record, error) {
	const op = "backend.GetSession"
	if sessionID == "" {
		return session.Record{}, apperr.New(apperr.InvalidArgument, op, "session id is required")
	}

	var resp sessionPayload
	if err := c.call(ctx, op, http.MethodGet, "/sessions/"+url.PathEscape(sessionID), nil, nil, &resp, classifyDefault); err != nil {
		return session.Record{}, err
	}
	rec := resp.toRecord()
	if rec.ID == "" {
		rec.ID = sessionID
	}
	return rec, nil
}

// StudentSessions lists a student's recent sessions. The backend answers
// either with a bare array or with {"sessions": [...]}.
func (c *Client) StudentSessions(ctx context.Context, studentID string) ([]session.Record, error) {
	const op = "backend.StudentSessions"
	if studentID == "" {
		return nil, apperr.New(apperr.InvalidArgument, op, "student id is required")
	}

	var raw json.RawMessage
	path := "/sessions/student/" + url.PathEscape(studentID)
	if err := c.call(ctx, op, http.MethodGet, path, nil, nil, &raw, classifyDefault); err != nil {
		return nil, err
	}

	payloads, err := decodeSessionList(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, op, err)
	}
	out := make([]session.Record, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, p.toRecord())
	}
	return out, nil
}

func decodeSessionList(raw json.RawMessage) ([]sessionPayload, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var list []sessionPayload
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Sessions []sessionPayload `json:"sessions"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode session list: %w", err)
	}
	return wrapped.Sessions, nil
}

type paymentPayload struct {
	ID            string          `json:"id"`
	SessionID     string          `json:"session_id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	FinternetTxID string          `json:"finternet_tx_id"`
	CreatedAt     string          `json:"created_at"`
}

type sessionPaymentsResponse struct {
	SessionID string           `json:"session_id"`
	Payments  []paymentPayload `json:"payments"`
}

// SessionPayments returns the lock, settle and refund rows of a session,
// oldest first.
func (c *Client) SessionPayments(ctx context.Context, sessionID string) ([]session.Payment, error) {
	const op = "backend.SessionPayments"
	if sessionID == "" {
		return nil, apperr.New(apperr.InvalidArgument, op, "session id is required")
	}

	var resp sessionPaymentsResponse
	query := url.Values{"session_id": []string{sessionID}}
	if err := c.call(ctx, op, http.MethodGet, "/payments/by_session", query, nil, &resp, classifyDefault); err != nil {
		return nil, err
	}

	out := make([]session.Payment, 0, len(resp.Payments))
	for _, p := range resp.Payments {
		sid := p.SessionID
		if sid == "" {
			sid = sessionID
		}
		out = append(out, session.Payment{
			ID:            p.ID,
			SessionID:     sid,
			Type:          session.PaymentType(p.Type),
			Amount:        p.Amount,
			Status:        p.Status,
			FinternetTxID: p.FinternetTxID,
			CreatedAt:     parseTimestamp(p.CreatedAt),
		})
	}
	return out, nil
}

// 后端时间戳有时不带时区
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05.999999",
}

func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
