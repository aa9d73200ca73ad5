// Package bolt stores the ledger in a single bbolt file. bbolt allows one
// read-write transaction at a time, so every UpdateBalances call is
// serialized by the database itself.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	interfaces "github.com/sheikh-saqib/dubloons/internal/interfaces"
	"github.com/sheikh-saqib/dubloons/internal/models"
	"github.com/sheikh-saqib/dubloons/internal/storage"
)

const (
	backend       = "bolt"
	balanceBucket = "balances"
	eventBucket   = "applied_events"
)

// Store provides a BoltDB-backed ledger.
type Store struct {
	db  *bbolt.DB
	now func() time.Time
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("bolt: storage path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt: open storage db: %w", err)
	}

	store := &Store{db: db, now: time.Now}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) GetBalance(ctx context.Context, userID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, storage.Wrap(backend, "get balance", err)
	}
	var balance int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		entry, err := readEntry(tx.Bucket([]byte(balanceBucket)), userID)
		balance = entry.Balance
		return err
	})
	return balance, storage.Wrap(backend, "get balance", err)
}

func (s *Store) SetBalance(ctx context.Context, userID string, amount int64) error {
	if err := ctx.Err(); err != nil {
		return storage.Wrap(backend, "set balance", err)
	}
	if amount < 0 {
		return storage.ErrNegativeBalance
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return s.writeEntry(tx.Bucket([]byte(balanceBucket)), userID, amount)
	})
	return storage.Wrap(backend, "set balance", err)
}

func (s *Store) UpdateBalances(ctx context.Context, eventKey string, userIDs []string, fn interfaces.UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return storage.Wrap(backend, "update balances", err)
	}
	var fnErr error
	err := s.db.Update(func(tx *bbolt.Tx) error {
		balances := tx.Bucket([]byte(balanceBucket))
		events := tx.Bucket([]byte(eventBucket))

		if eventKey != "" && events.Get([]byte(eventKey)) != nil {
			return storage.ErrDuplicateEvent
		}

		ids := storage.Dedupe(userIDs)
		current := make(map[string]int64, len(ids))
		for _, id := range ids {
			entry, err := readEntry(balances, id)
			if err != nil {
				return err
			}
			current[id] = entry.Balance
		}

		next, err := fn(current)
		if err != nil {
			fnErr = err
			return err
		}
		if err := storage.CheckBalances(next); err != nil {
			return err
		}
		for _, id := range ids {
			if b, ok := next[id]; ok {
				if err := s.writeEntry(balances, id, b); err != nil {
					return err
				}
			}
		}

		if eventKey != "" {
			stamp := []byte(s.now().UTC().Format(time.RFC3339Nano))
			if err := events.Put([]byte(eventKey), stamp); err != nil {
				return &storage.Error{Backend: backend, Op: "record event", Err: err}
			}
		}
		return nil
	})
	if fnErr != nil {
		return fnErr
	}
	return storage.Wrap(backend, "update balances", err)
}

func (s *Store) ListBalances(ctx context.Context) ([]models.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, storage.Wrap(backend, "list balances", err)
	}
	var entries []models.LedgerEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(balanceBucket)).ForEach(func(_, v []byte) error {
			var entry models.LedgerEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshal entry: %w", err)
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, storage.Wrap(backend, "list balances", err)
	}
	return entries, nil
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{balanceBucket, eventBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("bolt: create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

func readEntry(bucket *bbolt.Bucket, userID string) (models.LedgerEntry, error) {
	payload := bucket.Get([]byte(userID))
	if payload == nil {
		return models.LedgerEntry{UserID: userID}, nil
	}
	var entry models.LedgerEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return models.LedgerEntry{}, &storage.Error{Backend: backend, Op: "unmarshal entry", Err: err}
	}
	return entry, nil
}

func (s *Store) writeEntry(bucket *bbolt.Bucket, userID string, balance int64) error {
	payload, err := json.Marshal(models.LedgerEntry{
		UserID:    userID,
		Balance:   balance,
		UpdatedAt: s.now().UTC(),
	})
	if err != nil {
		return &storage.Error{Backend: backend, Op: "marshal entry", Err: err}
	}
	if err := bucket.Put([]byte(userID), payload); err != nil {
		return &storage.Error{Backend: backend, Op: "put entry", Err: err}
	}
	return nil
}

var _ interfaces.LedgerStore = (*Store)(nil)
