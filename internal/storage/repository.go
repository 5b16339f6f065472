package storage

import (
	"context"

	"github.com/murphlabs/murph/backend/internal/model/ledger"
)

// Repository 保存本地账本：已结算的会话与已提交的评价。
type Repository interface {
	SaveSettlement(ctx context.Context, record *ledger.SettlementRecord) error

	GetSettlement(ctx context.Context, sessionID string) (*ledger.SettlementRecord, error)

	ListSettlementsByStudent(ctx context.Context, studentID string) ([]ledger.SettlementRecord, error)

	SaveReview(ctx context.Context, record *ledger.ReviewRecord) error

	GetReviewBySession(ctx context.Context, sessionID string) (*ledger.ReviewRecord, error)

	ListReviewsByStudent(ctx context.Context, studentID string) ([]ledger.ReviewRecord, error)

	Close() error
}
