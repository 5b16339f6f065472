package backend

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/murphlabs/murph/backend/internal/model/session"
	"github.com/murphlabs/murph/backend/pkg/apperr"
)

type startSessionRequest struct {
	StudentID     string   `json:"student_id"`
	ListingID     string   `json:"listing_id"`
	ReserveAmount *float64 `json:"reserve_amount,omitempty"`
}

type startSessionResponse struct {
	SessionID     string          `json:"session_id"`
	Status        string          `json:"status"`
	ReserveAmount decimal.Decimal `json:"reserve_amount"`
	TransactionID string          `json:"transaction_id"`
}

// StartSession asks the backend to lock the reserve and open a session.
func (c *Client) StartSession(ctx context.Context, req session.StartRequest) (session.StartResult, error) {
	const op = "backend.StartSession"
	if req.StudentID == "" || req.ListingID == "" {
		return session.StartResult{}, apperr.New(apperr.InvalidArgument, op, "student and listing are required")
	}

	body := startSessionRequest{StudentID: req.StudentID, ListingID: req.ListingID}
	if req.ReserveAmount.IsPositive() {
		amount := req.ReserveAmount.InexactFloat64()
		body.ReserveAmount = &amount
	}

	var resp startSessionResponse
	if err := c.call(ctx, op, http.MethodPost, "/sessions/start", nil, body, &resp, classifyStart); err != nil {
		return session.StartResult{}, err
	}
	if resp.SessionID == "" {
		return session.StartResult{}, apperr.New(apperr.PaymentLockFailed, op, "backend returned no session id")
	}

	return session.StartResult{
		SessionID:     resp.SessionID,
		Status:        resp.Status,
		ReserveAmount: resp.ReserveAmount,
		TransactionID: resp.TransactionID,
	}, nil
}

type engagementPayload struct {
	ElapsedTime   int64   `json:"elapsedTime"`
	VideoProgress float64 `json:"videoProgress"`
	Timestamp     string  `json:"timestamp"`
}

type endSessionRequest struct {
	SessionID            string            `json:"session_id"`
	CompletionPercentage float64           `json:"completion_percentage"`
	EngagementMetrics    engagementPayload `json:"engagement_metrics"`
}

type endSessionResponse struct {
	SessionID            string          `json:"session_id"`
	ListingID            string          `json:"listing_id"`
	TeacherID            string          `json:"teacher_id"`
	StudentID            string          `json:"student_id"`
	DurationMin          float64         `json:"duration_min"`
	CompletionPercentage float64         `json:"completion_percentage"`
	ReserveAmount        decimal.Decimal `json:"reserve_amount"`
	FinalAmountCharged   decimal.Decimal `json:"final_amount_charged"`
	RefundAmount         decimal.Decimal `json:"refund_amount"`
	SettleTransactionID  string          `json:"settle_transaction_id"`
	RefundTransactionID  string          `json:"refund_transaction_id"`
	EscrowID             string          `json:"escrow_id"`
}

// EndSession settles a session with the backend.
func (c *Client) EndSession(ctx context.Context, req session.EndRequest) (session.EndResult, error) {
	const op = "backend.EndSession"
	if req.SessionID == "" {
		return session.EndResult{}, apperr.New(apperr.InvalidArgument, op, "session id is required")
	}

	ts := req.Engagement.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	body := endSessionRequest{
		SessionID:            req.SessionID,
		CompletionPercentage: req.CompletionPercentage,
		EngagementMetrics: engagementPayload{
			ElapsedTime:   req.Engagement.ElapsedSeconds,
			VideoProgress: req.Engagement.VideoProgress,
			Timestamp:     ts.UTC().Format(time.RFC3339),
		},
	}

	var resp endSessionResponse
	if err := c.call(ctx, op, http.MethodPost, "/sessions/end", nil, body, &resp, classifyEnd); err != nil {
		return session.EndResult{}, err
	}

	sessionID := resp.SessionID
	if sessionID == "" {
		sessionID = req.SessionID
	}
	return session.EndResult{
		SessionID:            sessionID,
		ListingID:            resp.ListingID,
		TeacherID:            resp.TeacherID,
		StudentID:            resp.StudentID,
		DurationMinutes:      resp.DurationMin,
		CompletionPercentage: resp.CompletionPercentage,
		ReserveAmount:        resp.ReserveAmount,
		FinalCharge:          resp.FinalAmountCharged,
		Refund:               resp.RefundAmount,
		EscrowID:             resp.EscrowID,
		SettleTransactionID:  resp.SettleTransactionID,
		RefundTransactionID:  resp.RefundTransactionID,
	}, nil
}

type milestonePayload struct {
	ID          string          `json:"id"`
	EscrowID    string          `json:"escrow_id"`
	SessionID   string          `json:"session_id"`
	Index       int             `json:"index"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
}

type listMilestonesResponse struct {
	Milestones []milestonePayload `json:"milestones"`
	Total      int                `json:"total"`
}

// ListMilestones returns a session's milestones in backend enumeration order.
func (c *Client) ListMilestones(ctx context.Context, sessionID string) ([]session.Milestone, error) {
	const op = "backend.ListMilestones"
	if sessionID == "" {
		return nil, apperr.New(apperr.InvalidArgument, op, "session id is required")
	}

	var resp listMilestonesResponse
	query := url.Values{"session_id": []string{sessionID}}
	if err := c.call(ctx, op, http.MethodGet, "/milestones", query, nil, &resp, classifyDefault); err != nil {
		return nil, err
	}

	out := make([]session.Milestone, 0, len(resp.Milestones))
	for _, m := range resp.Milestones {
		out = append(out, session.Milestone{
			ID:          m.ID,
			EscrowID:    m.EscrowID,
			SessionID:   m.SessionID,
			Index:       m.Index,
			Description: m.Description,
			Amount:      m.Amount,
			Status:      session.MilestoneStatus(m.Status),
		})
	}
	return out, nil
}

type proofRequest struct {
	VideoURL string `json:"video_url"`
	Notes    string `json:"notes"`
}

type proofResponse struct {
	MilestoneID    string          `json:"milestone_id"`
	Status         string          `json:"status"`
	AmountReleased decimal.Decimal `json:"amount_released"`
	FinternetTxID  string          `json:"finternet_tx_id"`
}

// SubmitMilestoneProof posts completion evidence and returns the new status.
func (c *Client) SubmitMilestoneProof(ctx context.Context, milestoneID string, proof session.Proof) (session.MilestoneStatus, error) {
	const op = "backend.SubmitMilestoneProof"
	if milestoneID == "" {
		return "", apperr.New(apperr.InvalidArgument, op, "milestone id is required")
	}

	var resp proofResponse
	path := "/milestones/" + url.PathEscape(milestoneID) + "/proof"
	body := proofRequest{VideoURL: proof.ContentRef, Notes: proof.Notes}
	if err := c.call(ctx, op, http.MethodPost, path, nil, body, &resp, classifyProof); err != nil {
		return "", err
	}

	if resp.Status == "" {
		return session.MilestoneCompleted, nil
	}
	return session.MilestoneStatus(resp.Status), nil
}
