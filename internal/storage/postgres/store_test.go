package postgres

import (
	"context"
	"os"
	"testing"

	interfaces "github.com/sheikh-saqib/dubloons/internal/interfaces"
	"github.com/sheikh-saqib/dubloons/internal/storage/storagetest"
)

// Runs only when a disposable database is provided, e.g.
// DUBLOONS_TEST_POSTGRES_DSN=postgres://localhost/dubloons_test?sslmode=disable
func TestPostgresLedgerStore(t *testing.T) {
	dsn := os.Getenv("DUBLOONS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DUBLOONS_TEST_POSTGRES_DSN not set")
	}

	storagetest.Run(t, func(t *testing.T) interfaces.LedgerStore {
		store, err := Open(context.Background(), dsn)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if _, err := store.db.Exec(`TRUNCATE balances, applied_events`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return store
	})
}
