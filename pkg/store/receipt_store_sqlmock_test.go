package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

// Grounded on the teacher's pkg/store/ledger/sql_ledger_test.go sqlmock
// idiom: exercise the insert statement shape against a stub driver rather
// than a real SQLite file, to pin down the exact column order without
// needing a live database.
func TestSQLiteReceiptStore_StoreUsesExpectedColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS receipts").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO receipts").
		WithArgs("intent-1", "event-1", "Ok", `{"result":"ok"}`, nil, "").
		WillReturnResult(sqlmock.NewResult(1, 1))

	store, err := NewSQLiteReceiptStore(db)
	require.NoError(t, err)

	err = store.Store(context.Background(), &EffectReceiptRecord{
		IntentID:    "intent-1",
		EventID:     "event-1",
		Status:      "Ok",
		PayloadJSON: []byte(`{"result":"ok"}`),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
