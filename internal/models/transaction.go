package models

import "time"

// TransactionKind distinguishes supply-increasing mints from transfers.
type TransactionKind string

const (
	KindMint     TransactionKind = "mint"
	KindTransfer TransactionKind = "transfer"
)

// Transaction represents an intent to move or create dubloons
type Transaction struct {
	ID             string
	IdempotencyKey string // chat message id; empty disables deduplication
	Kind           TransactionKind
	FromUser       string // empty for mints
	ToUser         string
	Amount         int64
	CreatedAt      time.Time
}
