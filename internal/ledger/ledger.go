package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	interfaces "github.com/sheikh-saqib/dubloons/internal/interfaces"
	"github.com/sheikh-saqib/dubloons/internal/models"
	"github.com/sheikh-saqib/dubloons/internal/models/events"
	"github.com/sheikh-saqib/dubloons/internal/storage"
)

// Ledger is the transfer engine. It is the only writer of the store.
//
// Two layers keep read-modify-write sequences from racing: an in-process
// mutex per account, taken in sorted order, and the store's atomic
// UpdateBalances, which also covers other processes sharing the store.
type Ledger struct {
	store     interfaces.LedgerStore
	publisher interfaces.EventPublisher
	topic     string
	logger    *slog.Logger
	now       func() time.Time

	muMap map[string]*sync.Mutex // per-account locks
	mapMu sync.Mutex             // protects muMap
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithPublisher emits a TransactionCompleted event to topic after every
// committed transaction.
func WithPublisher(p interfaces.EventPublisher, topic string) Option {
	return func(l *Ledger) {
		l.publisher = p
		l.topic = topic
	}
}

// WithLogger sets the logger; the default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// NewLedger returns a Ledger writing to store. Without WithPublisher no
// events are emitted.
func NewLedger(store interfaces.LedgerStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
		muMap:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) getAccountLock(accountID string) *sync.Mutex {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()

	if _, exists := l.muMap[accountID]; !exists {
		l.muMap[accountID] = &sync.Mutex{}
	}
	return l.muMap[accountID]
}

// lockAccounts locks every distinct account in id order to avoid deadlocks
// and returns the matching unlock.
func (l *Ledger) lockAccounts(ids ...string) func() {
	ordered := storage.Dedupe(ids)
	sort.Strings(ordered)

	locks := make([]*sync.Mutex, len(ordered))
	for i, id := range ordered {
		locks[i] = l.getAccountLock(id)
		locks[i].Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

// Mint creates amount dubloons in to's balance.
func (l *Ledger) Mint(ctx context.Context, to string, amount int64) error {
	return l.PostTransaction(ctx, models.Transaction{Kind: models.KindMint, ToUser: to, Amount: amount})
}

// Transfer moves amount from one balance to another. It fails with
// ErrInsufficientFunds, and changes nothing, when from holds less than amount.
func (l *Ledger) Transfer(ctx context.Context, from, to string, amount int64) error {
	return l.PostTransaction(ctx, models.Transaction{Kind: models.KindTransfer, FromUser: from, ToUser: to, Amount: amount})
}

// PostTransaction applies tx atomically. A transaction whose idempotency key
// was already applied returns ErrDuplicateTransaction and changes nothing.
func (l *Ledger) PostTransaction(ctx context.Context, tx models.Transaction) error {
	if tx.Amount < 0 {
		return ErrInvalidAmount
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = l.now()
	}

	// Pick the accounts to lock and the pure update to run on them.
	var ids []string
	var apply interfaces.UpdateFunc
	switch tx.Kind {
	case models.KindMint:
		ids = []string{tx.ToUser}
		apply = mint(tx.ToUser, tx.Amount)
	case models.KindTransfer:
		ids = []string{tx.FromUser, tx.ToUser}
		apply = transfer(tx.FromUser, tx.ToUser, tx.Amount)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, tx.Kind)
	}

	// Local locks serialize this process; the store makes the write and
	// the idempotency record one atomic step.
	unlock := l.lockAccounts(ids...)
	err := l.store.UpdateBalances(ctx, tx.IdempotencyKey, ids, apply)
	unlock()

	if errors.Is(err, storage.ErrDuplicateEvent) {
		l.logger.Info("duplicate transaction ignored",
			"idempotency_key", tx.IdempotencyKey, "kind", tx.Kind)
		return ErrDuplicateTransaction
	}
	if err != nil {
		return err
	}

	l.logger.Debug("transaction applied",
		"id", tx.ID, "kind", tx.Kind, "from", tx.FromUser, "to", tx.ToUser, "amount", tx.Amount)
	// Publishing happens after commit and never rolls it back.
	l.publish(ctx, tx)
	return nil
}

func mint(to string, amount int64) interfaces.UpdateFunc {
	return func(b map[string]int64) (map[string]int64, error) {
		if b[to] > storage.MaxBalance-amount {
			return nil, ErrBalanceOverflow
		}
		return map[string]int64{to: b[to] + amount}, nil
	}
}

func transfer(from, to string, amount int64) interfaces.UpdateFunc {
	return func(b map[string]int64) (map[string]int64, error) {
		if b[from] < amount {
			return nil, ErrInsufficientFunds
		}
		if from == to {
			return map[string]int64{from: b[from]}, nil
		}
		if b[to] > storage.MaxBalance-amount {
			return nil, ErrBalanceOverflow
		}
		return map[string]int64{
			from: b[from] - amount,
			to:   b[to] + amount,
		}, nil
	}
}

func (l *Ledger) publish(ctx context.Context, tx models.Transaction) {
	if l.publisher == nil {
		return
	}
	event := events.TransactionCompleted{
		TransactionID: tx.ID,
		Kind:          string(tx.Kind),
		FromUser:      tx.FromUser,
		ToUser:        tx.ToUser,
		Amount:        decimal.NewFromInt(tx.Amount),
		OccurredAt:    tx.CreatedAt,
	}
	if err := l.publisher.Publish(ctx, l.topic, tx.ToUser, event); err != nil {
		l.logger.Warn("publish transaction event failed", "id", tx.ID, "error", err)
	}
}

// GetBalance returns 0 for users with no entry.
func (l *Ledger) GetBalance(ctx context.Context, userID string) (int64, error) {
	return l.store.GetBalance(ctx, userID)
}

// Balances returns every persisted entry.
func (l *Ledger) Balances(ctx context.Context) ([]models.LedgerEntry, error) {
	return l.store.ListBalances(ctx)
}
