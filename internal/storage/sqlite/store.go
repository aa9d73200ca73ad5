// Package sqlite is the default ledger store: a single SQLite file accessed
// through a zombiezen connection pool.
//
// Every connection is opened in WAL mode with a busy timeout so concurrent
// writers queue on the database write lock instead of failing with
// SQLITE_BUSY. UpdateBalances runs inside an IMMEDIATE transaction, which
// takes the write lock up front; the read and the write of a balance can
// therefore never interleave with another writer.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	interfaces "github.com/sheikh-saqib/dubloons/internal/interfaces"
	"github.com/sheikh-saqib/dubloons/internal/models"
	"github.com/sheikh-saqib/dubloons/internal/storage"
)

const backend = "sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS balances (
	user_id    TEXT PRIMARY KEY,
	balance    INTEGER NOT NULL CHECK (balance >= 0),
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS applied_events (
	event_key  TEXT PRIMARY KEY,
	applied_at INTEGER NOT NULL
);
`

// Config holds the parameters for opening a store.
type Config struct {
	// Path is the database file. The parent directory must exist.
	Path string

	// PoolSize defaults to max(runtime.NumCPU(), 4) when zero.
	PoolSize int

	// Logger defaults to a discarding logger.
	Logger *slog.Logger
}

// Store is a LedgerStore backed by SQLite.
type Store struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	path   string
	now    func() time.Time
}

// Open creates the pool. Connections (and the schema) are initialized
// lazily on first use.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite: Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = max(runtime.NumCPU(), 4)
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening %s: %w", cfg.Path, err)
	}

	logger.Info("sqlite ledger opened", "path", cfg.Path, "pool_size", poolSize)
	return &Store{pool: pool, logger: logger, path: cfg.Path, now: time.Now}, nil
}

func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("sqlite: schema: %w", err)
	}
	return nil
}

func (s *Store) GetBalance(ctx context.Context, userID string) (balance int64, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, storage.Wrap(backend, "get balance", err)
	}
	defer s.pool.Put(conn)

	balance, err = readBalance(conn, userID)
	return balance, storage.Wrap(backend, "get balance", err)
}

func (s *Store) SetBalance(ctx context.Context, userID string, amount int64) (err error) {
	if amount < 0 {
		return storage.ErrNegativeBalance
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return storage.Wrap(backend, "set balance", err)
	}
	defer s.pool.Put(conn)

	return storage.Wrap(backend, "set balance", s.writeBalance(conn, userID, amount))
}

func (s *Store) UpdateBalances(ctx context.Context, eventKey string, userIDs []string, fn interfaces.UpdateFunc) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return storage.Wrap(backend, "update balances", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return storage.Wrap(backend, "begin transaction", err)
	}
	defer endTransaction(&err)

	if eventKey != "" {
		if err = sqlitex.Execute(conn,
			`INSERT INTO applied_events(event_key, applied_at) VALUES (?, ?) ON CONFLICT(event_key) DO NOTHING`,
			&sqlitex.ExecOptions{Args: []any{eventKey, s.now().UnixMilli()}},
		); err != nil {
			return storage.Wrap(backend, "record event", err)
		}
		if conn.Changes() == 0 {
			return storage.ErrDuplicateEvent
		}
	}

	ids := storage.Dedupe(userIDs)
	current := make(map[string]int64, len(ids))
	for _, id := range ids {
		b, rerr := readBalance(conn, id)
		if rerr != nil {
			err = storage.Wrap(backend, "read balance", rerr)
			return err
		}
		current[id] = b
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	if err = storage.CheckBalances(next); err != nil {
		return err
	}
	for _, id := range ids {
		b, ok := next[id]
		if !ok {
			continue
		}
		if werr := s.writeBalance(conn, id, b); werr != nil {
			err = storage.Wrap(backend, "write balance", werr)
			return err
		}
	}
	return nil
}

func (s *Store) ListBalances(ctx context.Context) ([]models.LedgerEntry, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, storage.Wrap(backend, "list balances", err)
	}
	defer s.pool.Put(conn)

	var entries []models.LedgerEntry
	err = sqlitex.Execute(conn,
		`SELECT user_id, balance, updated_at FROM balances ORDER BY user_id`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				entries = append(entries, models.LedgerEntry{
					UserID:    stmt.ColumnText(0),
					Balance:   stmt.ColumnInt64(1),
					UpdatedAt: time.UnixMilli(stmt.ColumnInt64(2)),
				})
				return nil
			},
		})
	if err != nil {
		return nil, storage.Wrap(backend, "list balances", err)
	}
	return entries, nil
}

// Close blocks until every borrowed connection has been returned.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		s.logger.Error("sqlite ledger close error", "path", s.path, "error", err)
		return fmt.Errorf("sqlite: closing %s: %w", s.path, err)
	}
	s.logger.Info("sqlite ledger closed", "path", s.path)
	return nil
}

func readBalance(conn *sqlite.Conn, userID string) (int64, error) {
	var balance int64
	err := sqlitex.Execute(conn,
		`SELECT balance FROM balances WHERE user_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{userID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				balance = stmt.ColumnInt64(0)
				return nil
			},
		})
	return balance, err
}

func (s *Store) writeBalance(conn *sqlite.Conn, userID string, balance int64) error {
	return sqlitex.Execute(conn,
		`INSERT INTO balances(user_id, balance, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET balance = excluded.balance, updated_at = excluded.updated_at`,
		&sqlitex.ExecOptions{Args: []any{userID, balance, s.now().UnixMilli()}},
	)
}

var _ interfaces.LedgerStore = (*Store)(nil)
