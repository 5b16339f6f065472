package storage

import (
	"database/sql"

	_ "github.com/lib/pq"
)

// PostgresRepository keeps the ledger in a shared database so several BFF
// replicas see the same history.
type PostgresRepository struct {
	sqlRepository
}

func NewPostgresRepository(connStr string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	repo := &PostgresRepository{sqlRepository{db: db, dialect: dialectPostgres}}
	if err := repo.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	return repo, nil
}

func (r *PostgresRepository) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settlements (
		session_id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		listing_id TEXT NOT NULL,
		listing_title TEXT NOT NULL DEFAULT '',
		elapsed_seconds BIGINT NOT NULL,
		completion_percentage DOUBLE PRECISION NOT NULL,
		reserve_amount NUMERIC NOT NULL,
		final_charge NUMERIC NOT NULL,
		refund NUMERIC NOT NULL,
		escrow_id TEXT NOT NULL DEFAULT '',
		proofs_json TEXT NOT NULL,
		ended_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_settlements_student ON settlements(student_id);

	CREATE TABLE IF NOT EXISTS reviews (
		review_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		rating INTEGER NOT NULL,
		review_text TEXT NOT NULL,
		quality_score DOUBLE PRECISION NOT NULL,
		bonus INTEGER NOT NULL,
		label TEXT NOT NULL,
		applied_bonus_amount NUMERIC NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reviews_student ON reviews(student_id);
	CREATE INDEX IF NOT EXISTS idx_reviews_session ON reviews(session_id);
	`

	_, err := r.db.Exec(schema)
	return err
}
