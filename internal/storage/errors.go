// Package storage holds what every ledger store backend shares.
package storage

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDuplicateEvent is returned by UpdateBalances when the event key
	// has already been applied.
	ErrDuplicateEvent = errors.New("storage: event already applied")

	// ErrNegativeBalance is returned when an update would persist a
	// balance below zero.
	ErrNegativeBalance = errors.New("storage: negative balance")
)

// Error reports an I/O failure in a ledger store.
type Error struct {
	Backend string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns nil for a nil err, passes ErrDuplicateEvent and
// ErrNegativeBalance through untouched, and wraps anything else in *Error.
func Wrap(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDuplicateEvent) || errors.Is(err, ErrNegativeBalance) {
		return err
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Backend: backend, Op: op, Err: err}
}

// IsStorageError reports whether err came from a failing store.
func IsStorageError(err error) bool {
	var se *Error
	return errors.As(err, &se)
}

// CheckBalances validates the output of an UpdateFunc before it is written.
func CheckBalances(balances map[string]int64) error {
	for id, b := range balances {
		if b < 0 {
			return fmt.Errorf("%w: %s", ErrNegativeBalance, id)
		}
	}
	return nil
}

// Dedupe returns ids without repeats, preserving order.
func Dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// MaxBalance is the largest balance any store will hold.
const MaxBalance = math.MaxInt64
