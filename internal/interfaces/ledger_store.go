package interfaces

import (
	"context"

	"github.com/sheikh-saqib/dubloons/internal/models"
)

// UpdateFunc receives the current balances of the requested users (0 for
// users without an entry) and returns the balances to store. Returning an
// error aborts the update with nothing written. Optimistic backends may call
// it more than once, so it must not have side effects.
type UpdateFunc func(balances map[string]int64) (map[string]int64, error)

// LedgerStore is the durable mapping from user id to balance.
type LedgerStore interface {
	GetBalance(ctx context.Context, userID string) (int64, error)
	SetBalance(ctx context.Context, userID string, amount int64) error

	// UpdateBalances atomically reads, transforms and writes the balances of
	// userIDs. A non-empty eventKey is recorded in the same atomic unit; if it
	// was recorded before, storage.ErrDuplicateEvent is returned and fn is
	// never called.
	UpdateBalances(ctx context.Context, eventKey string, userIDs []string, fn UpdateFunc) error

	ListBalances(ctx context.Context) ([]models.LedgerEntry, error)
	Close() error
}
