package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteReceiptStore_StoreAndGet(t *testing.T) {
	db := openTestDB(t)
	store, err := NewSQLiteReceiptStore(db)
	require.NoError(t, err)

	ctx := context.Background()
	cost := int64(150)
	rec := &EffectReceiptRecord{
		IntentID:    "intent-1",
		EventID:     "event-9",
		Status:      "Ok",
		PayloadJSON: []byte(`{"result":"done"}`),
		CostCents:   &cost,
		Signature:   "ed25519:key1:deadbeef",
	}
	require.NoError(t, store.Store(ctx, rec))

	got, err := store.Get(ctx, "intent-1")
	require.NoError(t, err)
	assert.Equal(t, "Ok", got.Status)
	assert.Equal(t, "event-9", got.EventID)
	require.NotNil(t, got.CostCents)
	assert.Equal(t, int64(150), *got.CostCents)

	_, err = store.Get(ctx, "missing")
	assert.Error(t, err)
}

func TestSQLiteReceiptStore_List(t *testing.T) {
	db := openTestDB(t)
	store, err := NewSQLiteReceiptStore(db)
	require.NoError(t, err)

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Store(ctx, &EffectReceiptRecord{IntentID: id, EventID: "e-" + id, Status: "Ok"}))
	}

	list, err := store.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
