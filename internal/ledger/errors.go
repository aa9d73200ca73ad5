package ledger

import "errors"

var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInvalidAmount        = errors.New("amount must not be negative")
	ErrBalanceOverflow      = errors.New("balance would overflow")
	ErrDuplicateTransaction = errors.New("transaction already applied")
	ErrUnknownKind          = errors.New("unknown transaction kind")
)
