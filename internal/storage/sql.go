package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/murphlabs/murph/backend/internal/model/ledger"
	"github.com/murphlabs/murph/backend/internal/model/session"
	"github.com/murphlabs/murph/backend/pkg/apperr"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// sqlRepository implements Repository over database/sql. Queries are written
// with ? placeholders and rebound for Postgres.
type sqlRepository struct {
	db      *sql.DB
	dialect dialect
}

func (r *sqlRepository) q(query string) string {
	if r.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (r *sqlRepository) SaveSettlement(ctx context.Context, record *ledger.SettlementRecord) error {
	if record == nil || record.SessionID == "" {
		return apperr.New(apperr.InvalidArgument, "storage.SaveSettlement", "settlement needs a session id")
	}

	proofsJSON, err := json.Marshal(record.Proofs)
	if err != nil {
		return fmt.Errorf("marshal proofs: %w", err)
	}

	query := `
		INSERT INTO settlements (session_id, student_id, listing_id, listing_title, elapsed_seconds,
			completion_percentage, reserve_amount, final_charge, refund, escrow_id, proofs_json, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			final_charge = excluded.final_charge,
			refund = excluded.refund,
			proofs_json = excluded.proofs_json,
			ended_at = excluded.ended_at
	`

	_, err = r.db.ExecContext(ctx, r.q(query),
		record.SessionID,
		record.StudentID,
		record.ListingID,
		record.ListingTitle,
		record.ElapsedSeconds,
		record.CompletionPercentage,
		record.ReserveAmount,
		record.FinalCharge,
		record.Refund,
		record.EscrowID,
		string(proofsJSON),
		record.EndedAt.UTC(),
	)
	return err
}

const settlementColumns = `session_id, student_id, listing_id, listing_title, elapsed_seconds,
	completion_percentage, reserve_amount, final_charge, refund, escrow_id, proofs_json, ended_at`

func (r *sqlRepository) GetSettlement(ctx context.Context, sessionID string) (*ledger.SettlementRecord, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE session_id = ?`

	rows, err := r.db.QueryContext(ctx, r.q(query), sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records, err := scanSettlements(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperr.New(apperr.NotFound, "storage.GetSettlement", "Session not found")
	}
	return &records[0], nil
}

func (r *sqlRepository) ListSettlementsByStudent(ctx context.Context, studentID string) ([]ledger.SettlementRecord, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE student_id = ? ORDER BY ended_at DESC`

	rows, err := r.db.QueryContext(ctx, r.q(query), studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSettlements(rows)
}

func scanSettlements(rows *sql.Rows) ([]ledger.SettlementRecord, error) {
	var records []ledger.SettlementRecord

	for rows.Next() {
		var record ledger.SettlementRecord
		var proofsJSON string

		err := rows.Scan(
			&record.SessionID,
			&record.StudentID,
			&record.ListingID,
			&record.ListingTitle,
			&record.ElapsedSeconds,
			&record.CompletionPercentage,
			&record.ReserveAmount,
			&record.FinalCharge,
			&record.Refund,
			&record.EscrowID,
			&proofsJSON,
			&record.EndedAt,
		)
		if err != nil {
			return nil, err
		}

		if proofsJSON != "" && proofsJSON != "null" {
			var proofs []session.ProofOutcome
			if err := json.Unmarshal([]byte(proofsJSON), &proofs); err != nil {
				return nil, fmt.Errorf("decode proofs for %s: %w", record.SessionID, err)
			}
			record.Proofs = proofs
		}

		records = append(records, record)
	}

	return records, rows.Err()
}

func (r *sqlRepository) SaveReview(ctx context.Context, record *ledger.ReviewRecord) error {
	if record == nil || record.ReviewID == "" {
		return apperr.New(apperr.InvalidArgument, "storage.SaveReview", "review needs an id")
	}

	query := `
		INSERT INTO reviews (review_id, session_id, student_id, rating, review_text,
			quality_score, bonus, label, applied_bonus_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.q(query),
		record.ReviewID,
		record.SessionID,
		record.StudentID,
		record.Rating,
		record.Text,
		record.QualityScore,
		record.Bonus,
		record.Label,
		record.AppliedBonusAmount,
		record.CreatedAt.UTC(),
	)
	return err
}

const reviewColumns = `review_id, session_id, student_id, rating, review_text,
	quality_score, bonus, label, applied_bonus_amount, created_at`

func (r *sqlRepository) GetReviewBySession(ctx context.Context, sessionID string) (*ledger.ReviewRecord, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE session_id = ? ORDER BY created_at DESC LIMIT 1`

	var record ledger.ReviewRecord
	err := r.db.QueryRowContext(ctx, r.q(query), sessionID).Scan(
		&record.ReviewID,
		&record.SessionID,
		&record.StudentID,
		&record.Rating,
		&record.Text,
		&record.QualityScore,
		&record.Bonus,
		&record.Label,
		&record.AppliedBonusAmount,
		&record.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "storage.GetReviewBySession", "Review not found")
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *sqlRepository) ListReviewsByStudent(ctx context.Context, studentID string) ([]ledger.ReviewRecord, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE student_id = ? ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, r.q(query), studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ledger.ReviewRecord
	for rows.Next() {
		var record ledger.ReviewRecord
		err := rows.Scan(
			&record.ReviewID,
			&record.SessionID,
			&record.StudentID,
			&record.Rating,
			&record.Text,
			&record.QualityScore,
			&record.Bonus,
			&record.Label,
			&record.AppliedBonusAmount,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (r *sqlRepository) Close() error {
	return r.db.Close()
}
