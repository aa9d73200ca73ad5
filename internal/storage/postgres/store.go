package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"

	interfaces "github.com/sheikh-saqib/dubloons/internal/interfaces"
	"github.com/sheikh-saqib/dubloons/internal/models"
	"github.com/sheikh-saqib/dubloons/internal/storage"
)

const backend = "postgres"

//go:embed migrations/*.sql
var migrations embed.FS

type PostgresLedgerStore struct {
	db *sql.DB
}

func NewPostgresLedgerStore(db *sql.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{
		db: db,
	}
}

// Open connects with lib/pq, pings, and applies pending migrations.
func Open(ctx context.Context, dsn string) (*PostgresLedgerStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pg open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pg ping: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return NewPostgresLedgerStore(db), nil
}

// Migrate applies the embedded goose migrations.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

func (p *PostgresLedgerStore) GetBalance(ctx context.Context, userID string) (int64, error) {
	const query = `SELECT balance FROM balances WHERE user_id = $1`

	var balance int64
	err := p.db.QueryRowContext(ctx, query, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, storage.Wrap(backend, "get balance", err)
	}
	return balance, nil
}

func (p *PostgresLedgerStore) SetBalance(ctx context.Context, userID string, amount int64) error {
	if amount < 0 {
		return storage.ErrNegativeBalance
	}
	const query = `INSERT INTO balances (user_id, balance, updated_at) VALUES ($1, $2, now())
	ON CONFLICT (user_id) DO UPDATE SET balance = EXCLUDED.balance, updated_at = EXCLUDED.updated_at`

	_, err := p.db.ExecContext(ctx, query, userID, amount)
	return storage.Wrap(backend, "set balance", err)
}

func (p *PostgresLedgerStore) UpdateBalances(ctx context.Context, eventKey string, userIDs []string, fn interfaces.UpdateFunc) (err error) {
	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Wrap(backend, "begin", err)
	}

	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	if eventKey != "" {
		const recordEvent = `INSERT INTO applied_events (event_key) VALUES ($1) ON CONFLICT (event_key) DO NOTHING`
		res, execErr := dbTx.ExecContext(ctx, recordEvent, eventKey)
		if execErr != nil {
			return storage.Wrap(backend, "record event", execErr)
		}
		n, execErr := res.RowsAffected()
		if execErr != nil {
			return storage.Wrap(backend, "record event", execErr)
		}
		if n == 0 {
			return storage.ErrDuplicateEvent
		}
	}

	ids := storage.Dedupe(userIDs)
	current, err := lockBalances(ctx, dbTx, ids)
	if err != nil {
		return err
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	if err = storage.CheckBalances(next); err != nil {
		return err
	}

	const update = `UPDATE balances SET balance = $2, updated_at = now() WHERE user_id = $1`
	for _, id := range ids {
		b, ok := next[id]
		if !ok {
			continue
		}
		if _, execErr := dbTx.ExecContext(ctx, update, id, b); execErr != nil {
			return storage.Wrap(backend, "write balance", execErr)
		}
	}

	if commitErr := dbTx.Commit(); commitErr != nil {
		return storage.Wrap(backend, "commit", commitErr)
	}
	return nil
}

// lockBalances creates missing rows and takes row locks in user id order,
// so concurrent transactions over overlapping users cannot deadlock.
func lockBalances(ctx context.Context, dbTx *sql.Tx, ids []string) (map[string]int64, error) {
	const ensure = `INSERT INTO balances (user_id, balance)
	SELECT unnest($1::text[]), 0
	ON CONFLICT (user_id) DO NOTHING`
	if _, err := dbTx.ExecContext(ctx, ensure, pq.Array(ids)); err != nil {
		return nil, storage.Wrap(backend, "ensure rows", err)
	}

	const lock = `SELECT user_id, balance FROM balances
	WHERE user_id = ANY($1) ORDER BY user_id FOR UPDATE`
	rows, err := dbTx.QueryContext(ctx, lock, pq.Array(ids))
	if err != nil {
		return nil, storage.Wrap(backend, "lock rows", err)
	}
	defer rows.Close()

	current := make(map[string]int64, len(ids))
	for rows.Next() {
		var id string
		var balance int64
		if err := rows.Scan(&id, &balance); err != nil {
			return nil, storage.Wrap(backend, "scan balance", err)
		}
		current[id] = balance
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap(backend, "lock rows", err)
	}
	return current, nil
}

func (p *PostgresLedgerStore) ListBalances(ctx context.Context) ([]models.LedgerEntry, error) {
	const query = `SELECT user_id, balance, updated_at FROM balances ORDER BY user_id`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storage.Wrap(backend, "list balances", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var entry models.LedgerEntry
		if err := rows.Scan(&entry.UserID, &entry.Balance, &entry.UpdatedAt); err != nil {
			return nil, storage.Wrap(backend, "list balances", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap(backend, "list balances", err)
	}
	return entries, nil
}

func (p *PostgresLedgerStore) Close() error {
	return p.db.Close()
}

var _ interfaces.LedgerStore = (*PostgresLedgerStore)(nil)
