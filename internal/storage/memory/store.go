package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	interfaces "github.com/sheikh-saqib/dubloons/internal/interfaces"
	"github.com/sheikh-saqib/dubloons/internal/models"
	"github.com/sheikh-saqib/dubloons/internal/storage"
)

// MemoryLedgerStore is an in-memory implementation of interfaces.LedgerStore.
// It is safe for concurrent use; state is lost when the process exits.
type MemoryLedgerStore struct {
	mu      sync.Mutex
	entries map[string]models.LedgerEntry
	events  map[string]time.Time // applied event keys
	now     func() time.Time
}

// NewMemoryLedgerStore creates an empty store.
func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		entries: make(map[string]models.LedgerEntry),
		events:  make(map[string]time.Time),
		now:     time.Now,
	}
}

// GetBalance returns 0 for users with no entry.
func (m *MemoryLedgerStore) GetBalance(ctx context.Context, userID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, storage.Wrap("memory", "get balance", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.entries[userID].Balance, nil
}

// SetBalance overwrites a balance, creating the entry if needed.
func (m *MemoryLedgerStore) SetBalance(ctx context.Context, userID string, amount int64) error {
	if err := ctx.Err(); err != nil {
		return storage.Wrap("memory", "set balance", err)
	}
	if amount < 0 {
		return storage.ErrNegativeBalance
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.put(userID, amount)
	return nil
}

// UpdateBalances holds the store lock for the whole read-modify-write, so
// fn sees and replaces a consistent snapshot of the listed accounts.
func (m *MemoryLedgerStore) UpdateBalances(ctx context.Context, eventKey string, userIDs []string, fn interfaces.UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return storage.Wrap("memory", "update balances", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if eventKey != "" {
		if _, seen := m.events[eventKey]; seen {
			return storage.ErrDuplicateEvent
		}
	}

	ids := storage.Dedupe(userIDs)
	current := make(map[string]int64, len(ids))
	for _, id := range ids {
		current[id] = m.entries[id].Balance
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	if err := storage.CheckBalances(next); err != nil {
		return err
	}

	for _, id := range ids {
		if b, ok := next[id]; ok {
			m.put(id, b)
		}
	}
	if eventKey != "" {
		m.events[eventKey] = m.now()
	}
	return nil
}

// ListBalances returns a copy of all entries ordered by user id.
func (m *MemoryLedgerStore) ListBalances(ctx context.Context) ([]models.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, storage.Wrap("memory", "list balances", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.LedgerEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *MemoryLedgerStore) Close() error { return nil }

// put must be called with mu held.
func (m *MemoryLedgerStore) put(userID string, balance int64) {
	m.entries[userID] = models.LedgerEntry{
		UserID:    userID,
		Balance:   balance,
		UpdatedAt: m.now(),
	}
}

// Compile-time check: ensure MemoryLedgerStore implements LedgerStore interface
var _ interfaces.LedgerStore = (*MemoryLedgerStore)(nil)
