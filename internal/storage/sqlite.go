package storage

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteRepository is the default local ledger.
type SQLiteRepository struct {
	sqlRepository
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// sqlite has a single writer
	db.SetMaxOpenConns(1)

	repo := &SQLiteRepository{sqlRepository{db: db, dialect: dialectSQLite}}
	if err := repo.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	return repo, nil
}

func (r *SQLiteRepository) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settlements (
		session_id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		listing_id TEXT NOT NULL,
		listing_title TEXT NOT NULL DEFAULT '',
		elapsed_seconds INTEGER NOT NULL,
		completion_percentage REAL NOT NULL,
		reserve_amount TEXT NOT NULL,
		final_charge TEXT NOT NULL,
		refund TEXT NOT NULL,
		escrow_id TEXT NOT NULL DEFAULT '',
		proofs_json TEXT NOT NULL,
		ended_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_settlements_student ON settlements(student_id);

	CREATE TABLE IF NOT EXISTS reviews (
		review_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		rating INTEGER NOT NULL,
		review_text TEXT NOT NULL,
		quality_score REAL NOT NULL,
		bonus INTEGER NOT NULL,
		label TEXT NOT NULL,
		applied_bonus_amount TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reviews_student ON reviews(student_id);
	CREATE INDEX IF NOT EXISTS idx_reviews_session ON reviews(session_id);
	`

	_, err := r.db.Exec(schema)
	return err
}
