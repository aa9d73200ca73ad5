package events

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionCompleted struct {
	TransactionID string          `json:"transaction_id"`
	Kind          string          `json:"kind"`
	FromUser      string          `json:"from_user,omitempty"`
	ToUser        string          `json:"to_user"`
	Amount        decimal.Decimal `json:"amount"`
	OccurredAt    time.Time       `json:"occurred_at"`
}
