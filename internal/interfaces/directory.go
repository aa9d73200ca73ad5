package interfaces

import (
	"context"
	"errors"

	"github.com/sheikh-saqib/dubloons/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserDirectory maps chat mentions to stable user ids. It is owned by the
// chat transport; the ledger never keeps its own user list.
type UserDirectory interface {
	ResolveMention(ctx context.Context, mention string) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}
