package store

import (
	"context"
)

// EffectReceiptRecord is the durable row shape for an EffectReceipt:
// { intent_id, status, payload, cost_cents?, signature? } per spec, plus the
// journal event id that appended it for cross-reference during replay.
type EffectReceiptRecord struct {
	IntentID    string
	EventID     string
	Status      string
	PayloadJSON []byte
	CostCents   *int64
	Signature   string
}

// ReceiptStore persists EffectReceipts as a durable mirror of the journal's
// ReceiptAppended events, queryable without replaying the whole journal.
// Grounded on the teacher's pkg/store/receipt_store.go interface, re-keyed
// from decision_id/receipt_id onto the spec's intent_id.
type ReceiptStore interface {
	Store(ctx context.Context, r *EffectReceiptRecord) error
	Get(ctx context.Context, intentID string) (*EffectReceiptRecord, error)
	List(ctx context.Context, limit int) ([]*EffectReceiptRecord, error)
}
