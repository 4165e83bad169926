package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/lendflow/internal/domain"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tx_records (
			id TEXT PRIMARY KEY,
			chain TEXT NOT NULL,
			market TEXT NOT NULL,
			account TEXT NOT NULL,
			form_type TEXT NOT NULL,
			step TEXT NOT NULL,
			status TEXT NOT NULL,
			tx_hash TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tx_records_account ON tx_records(account, created_at);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// TxHistoryRepository Implementation

func (s *SQLiteStore) SaveTxRecord(ctx context.Context, rec *domain.TxRecord) error {
	query := `INSERT INTO tx_records (id, chain, market, account, form_type, step, status, tx_hash, error, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Chain, rec.Market, rec.Account, rec.FormType, rec.Step,
		rec.Status, rec.TxHash, rec.Error, rec.CreatedAt)
	return err
}

// ListTxRecords returns the newest records first. An empty account lists
// every account.
func (s *SQLiteStore) ListTxRecords(ctx context.Context, account string, limit int) ([]*domain.TxRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, chain, market, account, form_type, step, status, tx_hash, error, created_at FROM tx_records`
	args := []any{}
	if account != "" {
		query += ` WHERE account = ?`
		args = append(args, account)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.TxRecord
	for rows.Next() {
		var r domain.TxRecord
		if err := rows.Scan(&r.ID, &r.Chain, &r.Market, &r.Account, &r.FormType, &r.Step, &r.Status, &r.TxHash, &r.Error, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}
