package postgres

import (
	"context"
	"os"
	"testing"

	"finwatch/internal/storage"
	"finwatch/internal/storage/storetest"
)

// Runs only when FINWATCH_TEST_DATABASE_URL points at a disposable database.
func TestStoreContract(t *testing.T) {
	dsn := os.Getenv("FINWATCH_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("FINWATCH_TEST_DATABASE_URL not set")
	}

	storetest.Run(t, func(t *testing.T) storage.Store {
		ctx := context.Background()
		s, err := New(ctx, dsn)
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		if _, err := s.db.ExecContext(ctx, `TRUNCATE ledger_entries, budgets, goals, notifications`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}
