package bolt

import (
	"context"
	"path/filepath"
	"testing"

	interfaces "github.com/sheikh-saqib/dubloons/internal/interfaces"
	"github.com/sheikh-saqib/dubloons/internal/storage/storagetest"
)

func TestBoltStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) interfaces.LedgerStore {
		store, err := Open(filepath.Join(t.TempDir(), "dubloons.bolt"))
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		return store
	})
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for blank path")
	}
}

func TestBoltStoreClosedIsSafe(t *testing.T) {
	var s *Store
	if err := s.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}

func TestBoltStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dubloons.bolt")
	ctx := context.Background()

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	err = store.UpdateBalances(ctx, "msg-9", []string{"U1"}, func(b map[string]int64) (map[string]int64, error) {
		return map[string]int64{"U1": b["U1"] + 12}, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetBalance(ctx, "U1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != 12 {
		t.Fatalf("expected 12, got %d", got)
	}
}
