// Package storagetest is the behavioural contract every LedgerStore must pass.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	interfaces "github.com/sheikh-saqib/dubloons/internal/interfaces"
	"github.com/sheikh-saqib/dubloons/internal/storage"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) interfaces.LedgerStore

// Run exercises store semantics against a backend.
func Run(t *testing.T, newStore Factory) {
	t.Run("MissingUserIsZero", func(t *testing.T) { testMissingUserIsZero(t, newStore) })
	t.Run("SetGetRoundTrip", func(t *testing.T) { testSetGetRoundTrip(t, newStore) })
	t.Run("UpdateBalances", func(t *testing.T) { testUpdateBalances(t, newStore) })
	t.Run("UpdateAbortWritesNothing", func(t *testing.T) { testUpdateAbort(t, newStore) })
	t.Run("NegativeBalanceRejected", func(t *testing.T) { testNegativeRejected(t, newStore) })
	t.Run("DuplicateEvent", func(t *testing.T) { testDuplicateEvent(t, newStore) })
	t.Run("ListBalances", func(t *testing.T) { testListBalances(t, newStore) })
	t.Run("ConcurrentUpdates", func(t *testing.T) { testConcurrentUpdates(t, newStore) })
}

func open(t *testing.T, newStore Factory) interfaces.LedgerStore {
	t.Helper()
	store := newStore(t)
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func mustBalance(t *testing.T, store interfaces.LedgerStore, userID string, want int64) {
	t.Helper()
	got, err := store.GetBalance(context.Background(), userID)
	if err != nil {
		t.Fatalf("get balance %s: %v", userID, err)
	}
	if got != want {
		t.Fatalf("balance of %s = %d, want %d", userID, got, want)
	}
}

func testMissingUserIsZero(t *testing.T, newStore Factory) {
	store := open(t, newStore)
	mustBalance(t, store, "U-nobody", 0)
}

func testSetGetRoundTrip(t *testing.T, newStore Factory) {
	store := open(t, newStore)
	ctx := context.Background()

	for _, n := range []int64{0, 1, 42, 1 << 40, storage.MaxBalance} {
		if err := store.SetBalance(ctx, "U1", n); err != nil {
			t.Fatalf("set balance %d: %v", n, err)
		}
		mustBalance(t, store, "U1", n)
	}
}

func testUpdateBalances(t *testing.T, newStore Factory) {
	store := open(t, newStore)
	ctx := context.Background()

	if err := store.SetBalance(ctx, "alice", 10); err != nil {
		t.Fatalf("seed: %v", err)
	}
	err := store.UpdateBalances(ctx, "", []string{"alice", "bob"}, func(b map[string]int64) (map[string]int64, error) {
		if b["alice"] != 10 || b["bob"] != 0 {
			return nil, fmt.Errorf("unexpected balances %v", b)
		}
		return map[string]int64{"alice": 3, "bob": 7}, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	mustBalance(t, store, "alice", 3)
	mustBalance(t, store, "bob", 7)
}

func testUpdateAbort(t *testing.T, newStore Factory) {
	store := open(t, newStore)
	ctx := context.Background()

	if err := store.SetBalance(ctx, "alice", 5); err != nil {
		t.Fatalf("seed: %v", err)
	}
	boom := errors.New("boom")
	err := store.UpdateBalances(ctx, "evt-abort", []string{"alice", "bob"}, func(map[string]int64) (map[string]int64, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	mustBalance(t, store, "alice", 5)
	mustBalance(t, store, "bob", 0)

	// The aborted event key must not have been recorded.
	err = store.UpdateBalances(ctx, "evt-abort", []string{"bob"}, func(b map[string]int64) (map[string]int64, error) {
		return map[string]int64{"bob": 1}, nil
	})
	if err != nil {
		t.Fatalf("retry after abort: %v", err)
	}
	mustBalance(t, store, "bob", 1)
}

func testNegativeRejected(t *testing.T, newStore Factory) {
	store := open(t, newStore)
	ctx := context.Background()

	if err := store.SetBalance(ctx, "alice", 2); err != nil {
		t.Fatalf("seed: %v", err)
	}
	err := store.UpdateBalances(ctx, "", []string{"alice", "bob"}, func(b map[string]int64) (map[string]int64, error) {
		return map[string]int64{"alice": -1, "bob": 3}, nil
	})
	if !errors.Is(err, storage.ErrNegativeBalance) {
		t.Fatalf("expected ErrNegativeBalance, got %v", err)
	}
	mustBalance(t, store, "alice", 2)
	mustBalance(t, store, "bob", 0)
}

func testDuplicateEvent(t *testing.T, newStore Factory) {
	store := open(t, newStore)
	ctx := context.Background()

	add := func(b map[string]int64) (map[string]int64, error) {
		return map[string]int64{"alice": b["alice"] + 5}, nil
	}
	if err := store.UpdateBalances(ctx, "msg-1", []string{"alice"}, add); err != nil {
		t.Fatalf("first update: %v", err)
	}

	called := false
	err := store.UpdateBalances(ctx, "msg-1", []string{"alice"}, func(b map[string]int64) (map[string]int64, error) {
		called = true
		return add(b)
	})
	if !errors.Is(err, storage.ErrDuplicateEvent) {
		t.Fatalf("expected ErrDuplicateEvent, got %v", err)
	}
	if called {
		t.Fatal("update func called for duplicate event")
	}
	mustBalance(t, store, "alice", 5)
}

func testListBalances(t *testing.T, newStore Factory) {
	store := open(t, newStore)
	ctx := context.Background()

	want := map[string]int64{"alice": 1, "bob": 2, "carol": 0}
	for id, b := range want {
		if err := store.SetBalance(ctx, id, b); err != nil {
			t.Fatalf("set %s: %v", id, err)
		}
	}

	entries, err := store.ListBalances(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for _, e := range entries {
		if want[e.UserID] != e.Balance {
			t.Fatalf("entry %s = %d, want %d", e.UserID, e.Balance, want[e.UserID])
		}
	}
}

func testConcurrentUpdates(t *testing.T, newStore Factory) {
	store := open(t, newStore)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.UpdateBalances(ctx, "", []string{"pot"}, func(b map[string]int64) (map[string]int64, error) {
				return map[string]int64{"pot": b["pot"] + 1}, nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent update: %v", err)
		}
	}
	mustBalance(t, store, "pot", workers)
}
