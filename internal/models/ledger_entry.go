package models

import "time"

// LedgerEntry is the persisted balance record for a single user.
// One entry exists per user; it is created on first mutation and updated in place.
type LedgerEntry struct {
	UserID    string    // stable user id from the chat platform
	Balance   int64     // dubloons, never negative
	UpdatedAt time.Time // last mutation
}
