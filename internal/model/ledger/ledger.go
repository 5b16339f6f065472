package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/murphlabs/murph/backend/internal/model/session"
)

// TransactionType 对应钱包页面的交易分类。
type TransactionType string

const (
	TypePurchase TransactionType = "purchase"
	TypeRefund   TransactionType = "refund"
	TypeBonus    TransactionType = "bonus"
)

// SettlementRecord is the local copy of a finished session.
type SettlementRecord struct {
	SessionID            string
	StudentID            string
	ListingID            string
	ListingTitle         string
	ElapsedSeconds       int64
	CompletionPercentage float64
	ReserveAmount        decimal.Decimal
	FinalCharge          decimal.Decimal
	Refund               decimal.Decimal
	EscrowID             string
	Proofs               []session.ProofOutcome
	EndedAt              time.Time
}

// ReviewRecord is the local copy of a submitted review.
type ReviewRecord struct {
	ReviewID           string
	SessionID          string
	StudentID          string
	Rating             int
	Text               string
	QualityScore       float64
	Bonus              int
	Label              string
	AppliedBonusAmount decimal.Decimal
	CreatedAt          time.Time
}

// Transaction is one wallet line.
type Transaction struct {
	ID        string          `json:"id"`
	Type      TransactionType `json:"type"`
	SessionID string          `json:"sessionId"`
	Title     string          `json:"title,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Credits   int             `json:"credits,omitempty"`
	Date      time.Time       `json:"date"`
}

// FromSettlement converts a controller settlement into a record.
func FromSettlement(s session.Settlement) *SettlementRecord {
	return &SettlementRecord{
		SessionID:            s.Result.SessionID,
		StudentID:            s.StudentID,
		ListingID:            s.ListingID,
		ListingTitle:         s.Title,
		ElapsedSeconds:       s.Elapsed,
		CompletionPercentage: s.Result.CompletionPercentage,
		ReserveAmount:        s.Result.ReserveAmount,
		FinalCharge:          s.Result.FinalCharge,
		Refund:               s.Result.Refund,
		EscrowID:             s.Result.EscrowID,
		Proofs:               append([]session.ProofOutcome(nil), s.Proofs...),
		EndedAt:              s.EndedAt,
	}
}
