package memory

import (
	"testing"

	interfaces "github.com/sheikh-saqib/dubloons/internal/interfaces"
	"github.com/sheikh-saqib/dubloons/internal/storage/storagetest"
)

func TestMemoryLedgerStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) interfaces.LedgerStore {
		return NewMemoryLedgerStore()
	})
}
