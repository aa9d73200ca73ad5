package interfaces

import (
	"context"

	"github.com/sheikh-saqib/dubloons/internal/models"
)

// MessageHandler processes one inbound message.
type MessageHandler func(ctx context.Context, msg models.Message)

// Transport delivers inbound messages and posts replies.
type Transport interface {
	// Run blocks until ctx is cancelled or the transport fails, calling
	// handle for every message that mentions the bot.
	Run(ctx context.Context, handle MessageHandler) error
	Post(ctx context.Context, to models.Destination, text string) error
}
