package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteReceiptStore is a durable ReceiptStore backed by modernc.org/sqlite
// (pure Go, no cgo), grounded on the teacher's
// pkg/store/receipt_store_sqlite.go migration/query shape, re-keyed from
// decision_id onto intent_id and trimmed to the spec's EffectReceipt fields.
type SQLiteReceiptStore struct {
	db *sql.DB
}

// NewSQLiteReceiptStore wraps an already-open *sql.DB and ensures the
// receipts table exists.
func NewSQLiteReceiptStore(db *sql.DB) (*SQLiteReceiptStore, error) {
	s := &SQLiteReceiptStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteReceiptStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS receipts (
		intent_id  TEXT PRIMARY KEY,
		event_id   TEXT NOT NULL,
		status     TEXT NOT NULL,
		payload    JSON,
		cost_cents INTEGER,
		signature  TEXT
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteReceiptStore) Store(ctx context.Context, r *EffectReceiptRecord) error {
	query := `INSERT INTO receipts (intent_id, event_id, status, payload, cost_cents, signature)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (intent_id) DO NOTHING`
	_, err := s.db.ExecContext(ctx, query, r.IntentID, r.EventID, r.Status, string(r.PayloadJSON), r.CostCents, r.Signature)
	if err != nil {
		return fmt.Errorf("store: insert receipt: %w", err)
	}
	return nil
}

func (s *SQLiteReceiptStore) Get(ctx context.Context, intentID string) (*EffectReceiptRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT intent_id, event_id, status, payload, cost_cents, signature FROM receipts WHERE intent_id = ?`,
		intentID)
	return scanReceiptRow(row)
}

func (s *SQLiteReceiptStore) List(ctx context.Context, limit int) ([]*EffectReceiptRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT intent_id, event_id, status, payload, cost_cents, signature FROM receipts ORDER BY rowid DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("store: list receipts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*EffectReceiptRecord
	for rows.Next() {
		r, err := scanReceiptRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceiptRow(row *sql.Row) (*EffectReceiptRecord, error) {
	r, err := scanInto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: receipt not found")
	}
	return r, err
}

func scanReceiptRows(rows *sql.Rows) (*EffectReceiptRecord, error) {
	return scanInto(rows)
}

func scanInto(s rowScanner) (*EffectReceiptRecord, error) {
	var r EffectReceiptRecord
	var payload sql.NullString
	var costCents sql.NullInt64
	var signature sql.NullString

	if err := s.Scan(&r.IntentID, &r.EventID, &r.Status, &payload, &costCents, &signature); err != nil {
		return nil, err
	}
	if payload.Valid {
		r.PayloadJSON = []byte(payload.String)
	}
	if costCents.Valid {
		r.CostCents = &costCents.Int64
	}
	r.Signature = signature.String
	return &r, nil
}
