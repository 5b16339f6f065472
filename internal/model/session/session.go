package session

import (
	"time"

	"github.com/shopspring/decimal"
)

// State 是会话生命周期控制器的状态。
type State string

const (
	Idle     State = "idle"
	Starting State = "starting"
	Active   State = "active"
	Ending   State = "ending"
	Ended    State = "ended"
)

// ActiveState is what the timer view renders on every tick.
type ActiveState struct {
	ElapsedSeconds int64           `json:"elapsedSeconds"`
	IsPaused       bool            `json:"isPaused"`
	EstimatedCost  decimal.Decimal `json:"estimatedCost"`
}

// StartRequest is the input of a session start.
type StartRequest struct {
	StudentID     string          `json:"studentId"`
	ListingID     string          `json:"listingId"`
	ReserveAmount decimal.Decimal `json:"reserveAmount"`
}

// StartResult is returned by the backend once funds are locked.
type StartResult struct {
	SessionID     string          `json:"sessionId"`
	Status        string          `json:"status"`
	ReserveAmount decimal.Decimal `json:"reserveAmount"`
	TransactionID string          `json:"transactionId"`
}

// EngagementMetrics travel with the end-of-session call.
type EngagementMetrics struct {
	ElapsedSeconds int64     `json:"elapsedTime"`
	VideoProgress  float64   `json:"videoProgress"`
	Timestamp      time.Time `json:"timestamp"`
}

// EndRequest is the input of the end-session call.
type EndRequest struct {
	SessionID            string            `json:"sessionId"`
	CompletionPercentage float64           `json:"completionPercentage"`
	Engagement           EngagementMetrics `json:"engagementMetrics"`
}

// EndResult is the backend's settlement breakdown.
type EndResult struct {
	SessionID            string          `json:"sessionId"`
	ListingID            string          `json:"listingId,omitempty"`
	TeacherID            string          `json:"teacherId,omitempty"`
	StudentID            string          `json:"studentId,omitempty"`
	DurationMinutes      float64         `json:"durationMinutes"`
	CompletionPercentage float64         `json:"completionPercentage"`
	ReserveAmount        decimal.Decimal `json:"reserveAmount"`
	FinalCharge          decimal.Decimal `json:"finalCharge"`
	Refund               decimal.Decimal `json:"refund"`
	EscrowID             string          `json:"escrowId,omitempty"`
	SettleTransactionID  string          `json:"settleTransactionId,omitempty"`
	RefundTransactionID  string          `json:"refundTransactionId,omitempty"`
}

// MilestoneStatus mirrors the backend's milestone states.
type MilestoneStatus string

const (
	MilestonePending   MilestoneStatus = "pending"
	MilestoneCompleted MilestoneStatus = "completed"
)

// Milestone is a slice of an escrow, referenced but not owned here.
type Milestone struct {
	ID          string          `json:"id"`
	EscrowID    string          `json:"escrowId"`
	SessionID   string          `json:"sessionId"`
	Index       int             `json:"index"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Status      MilestoneStatus `json:"status"`
}

// Proof is the evidence submitted for a milestone.
type Proof struct {
	ContentRef string `json:"contentRef"`
	Notes      string `json:"notes"`
}

// ProofOutcome records what happened to one milestone during settlement.
type ProofOutcome struct {
	MilestoneID string          `json:"milestoneId"`
	Status      MilestoneStatus `json:"status"`
	Submitted   bool            `json:"submitted"`
	Error       string          `json:"error,omitempty"`
	ErrorKind   string          `json:"errorKind,omitempty"`
}

// Settlement is the full outcome of a successful End.
type Settlement struct {
	Result    EndResult      `json:"result"`
	Proofs    []ProofOutcome `json:"proofs,omitempty"`
	Redirect  string         `json:"redirect"`
	EndedAt   time.Time      `json:"endedAt"`
	StudentID string         `json:"studentId,omitempty"`
	ListingID string         `json:"listingId,omitempty"`
	Title     string         `json:"title,omitempty"`
	Elapsed   int64          `json:"elapsedSeconds"`

	// MilestoneError is set when the milestone list could not be read.
	MilestoneError string `json:"milestoneError,omitempty"`
}

// FailedProofs counts outcomes that did not reach the backend successfully.
func (s Settlement) FailedProofs() int {
	failed := 0
	for _, p := range s.Proofs {
		if p.Error != "" {
			failed++
		}
	}
	return failed
}

// Record is the backend's row for one session, live or settled.
type Record struct {
	ID                   string          `json:"id"`
	StudentID            string          `json:"studentId"`
	TeacherID            string          `json:"teacherId,omitempty"`
	ListingID            string          `json:"listingId"`
	Status               string          `json:"status"`
	StartTime            time.Time       `json:"startTime,omitempty"`
	EndTime              time.Time       `json:"endTime,omitempty"`
	DurationMinutes      float64         `json:"durationMinutes"`
	CompletionPercentage float64         `json:"completionPercentage"`
	FinalCharge          decimal.Decimal `json:"finalCharge"`
	Refund               decimal.Decimal `json:"refund"`
	TransactionID        string          `json:"transactionId,omitempty"`
}

// RecordEnded is the backend status of a settled session.
const RecordEnded = "ended"

// Ended reports whether the backend has settled the session.
func (r Record) Ended() bool {
	return r.Status == RecordEnded
}

// PaymentType is the kind of money movement recorded for a session.
type PaymentType string

const (
	PaymentLock   PaymentType = "lock"
	PaymentSettle PaymentType = "settle"
	PaymentRefund PaymentType = "refund"
)

// Payment is one lock, settle or refund row kept by the backend.
type Payment struct {
	ID            string          `json:"id"`
	SessionID     string          `json:"sessionId"`
	Type          PaymentType     `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	FinternetTxID string          `json:"finternetTxId,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Succeeded is false only for pending or failed rows.
func (p Payment) Succeeded() bool {
	return p.Status == "" || p.Status == "success"
}
