package wallet

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/murphlabs/murph/backend/internal/backend"
	"github.com/murphlabs/murph/backend/internal/model/ledger"
	"github.com/murphlabs/murph/backend/internal/model/session"
	"github.com/murphlabs/murph/backend/pkg/apperr"
)

// Backend is the wallet slice of the backend client.
type Backend interface {
	WalletBalance(ctx context.Context, userID string) (backend.WalletBalance, error)
	WalletConnect(ctx context.Context, userID string) (backend.WalletBalance, error)
}

// Ledger lists what the student has settled and reviewed locally.
type Ledger interface {
	ListSettlementsByStudent(ctx context.Context, studentID string) ([]ledger.SettlementRecord, error)
	ListReviewsByStudent(ctx context.Context, studentID string) ([]ledger.ReviewRecord, error)
}

// History reads settled sessions and their payments from the backend. It
// fills in sessions the local ledger never saw.
type History interface {
	StudentSessions(ctx context.Context, studentID string) ([]session.Record, error)
	SessionPayments(ctx context.Context, sessionID string) ([]session.Payment, error)
}

// Service 钱包：余额走后端，交易记录来自本地账本，缺失的会话由后端历史补齐。
type Service struct {
	backend Backend
	ledger  Ledger
	history History
	logger  *slog.Logger
}

// NewService builds the wallet service. l and h may be nil.
func NewService(b Backend, l Ledger, h History, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: b, ledger: l, history: h, logger: logger}
}

func (s *Service) Balance(ctx context.Context, userID string) (backend.WalletBalance, error) {
	if strings.TrimSpace(userID) == "" {
		return backend.WalletBalance{}, apperr.New(apperr.InvalidArgument, "wallet.Balance", "user id is required")
	}
	return s.backend.WalletBalance(ctx, userID)
}

func (s *Service) Connect(ctx context.Context, userID string) (backend.WalletBalance, error) {
	if strings.TrimSpace(userID) == "" {
		return backend.WalletBalance{}, apperr.New(apperr.InvalidArgument, "wallet.Connect", "user id is required")
	}
	bal, err := s.backend.WalletConnect(ctx, userID)
	if err != nil {
		return backend.WalletBalance{}, err
	}
	s.logger.Info("wallet connected", "user_id", userID, "address", bal.WalletAddress)
	return bal, nil
}

// Transactions builds the wallet history, newest first. Each settlement
// yields a purchase and, when something was returned, a refund; each review
// with a bonus yields a bonus line. Ended sessions missing from the ledger
// are rebuilt from the backend's payment rows.
func (s *Service) Transactions(ctx context.Context, userID string) ([]ledger.Transaction, error) {
	const op = "wallet.Transactions"
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.New(apperr.InvalidArgument, op, "user id is required")
	}

	var (
		settlements []ledger.SettlementRecord
		reviews     []ledger.ReviewRecord
		err         error
	)
	if s.ledger != nil {
		if settlements, err = s.ledger.ListSettlementsByStudent(ctx, userID); err != nil {
			return nil, apperr.Wrap(apperr.Internal, op, err)
		}
		if reviews, err = s.ledger.ListReviewsByStudent(ctx, userID); err != nil {
			return nil, apperr.Wrap(apperr.Internal, op, err)
		}
	}

	txs := make([]ledger.Transaction, 0, len(settlements)*2+len(reviews))
	known := make(map[string]bool, len(settlements))
	for _, st := range settlements {
		known[st.SessionID] = true
		txs = append(txs, ledger.Transaction{
			ID:        st.SessionID + ":purchase",
			Type:      ledger.TypePurchase,
			SessionID: st.SessionID,
			Title:     st.ListingTitle,
			Amount:    st.FinalCharge,
			Date:      st.EndedAt,
		})
		if st.Refund.GreaterThan(decimal.Zero) {
			txs = append(txs, ledger.Transaction{
				ID:        st.SessionID + ":refund",
				Type:      ledger.TypeRefund,
				SessionID: st.SessionID,
				Title:     st.ListingTitle,
				Amount:    st.Refund,
				Date:      st.EndedAt,
			})
		}
	}
	for _, rv := range reviews {
		if rv.Bonus <= 0 && rv.AppliedBonusAmount.IsZero() {
			continue
		}
		txs = append(txs, ledger.Transaction{
			ID:        rv.ReviewID + ":bonus",
			Type:      ledger.TypeBonus,
			SessionID: rv.SessionID,
			Amount:    rv.AppliedBonusAmount,
			Credits:   rv.Bonus,
			Date:      rv.CreatedAt,
		})
	}

	txs = append(txs, s.remoteTransactions(ctx, userID, known)...)

	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Date.After(txs[j].Date)
	})
	return txs, nil
}

// remoteTransactions 后端历史不可用时只记录日志，账本数据照常返回。
func (s *Service) remoteTransactions(ctx context.Context, userID string, known map[string]bool) []ledger.Transaction {
	if s.history == nil {
		return nil
	}

	records, err := s.history.StudentSessions(ctx, userID)
	if err != nil {
		s.logger.Warn("backend session history unavailable", "user_id", userID, "error", err)
		return nil
	}

	var txs []ledger.Transaction
	for _, rec := range records {
		if !rec.Ended() || known[rec.ID] {
			continue
		}
		payments, err := s.history.SessionPayments(ctx, rec.ID)
		if err != nil {
			s.logger.Warn("session payments unavailable", "session_id", rec.ID, "error", err)
			continue
		}
		txs = append(txs, paymentTransactions(rec, payments)...)
	}
	return txs
}

func paymentTransactions(rec session.Record, payments []session.Payment) []ledger.Transaction {
	var txs []ledger.Transaction
	for _, p := range payments {
		if !p.Succeeded() {
			continue
		}
		date := p.CreatedAt
		if date.IsZero() {
			date = rec.EndTime
		}
		switch p.Type {
		case session.PaymentSettle:
			txs = append(txs, ledger.Transaction{
				ID:        rec.ID + ":purchase",
				Type:      ledger.TypePurchase,
				SessionID: rec.ID,
				Amount:    p.Amount,
				Date:      date,
			})
		case session.PaymentRefund:
			if p.Amount.GreaterThan(decimal.Zero) {
				txs = append(txs, ledger.Transaction{
					ID:        rec.ID + ":refund",
					Type:      ledger.TypeRefund,
					SessionID: rec.ID,
					Amount:    p.Amount,
					Date:      date,
				})
			}
		}
	}
	return txs
}
