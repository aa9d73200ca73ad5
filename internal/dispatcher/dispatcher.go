// Package dispatcher routes parsed chat commands to the ledger and decides
// what the bot says back and where.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sheikh-saqib/dubloons/internal/command"
	interfaces "github.com/sheikh-saqib/dubloons/internal/interfaces"
	"github.com/sheikh-saqib/dubloons/internal/ledger"
	"github.com/sheikh-saqib/dubloons/internal/models"
	"github.com/sheikh-saqib/dubloons/internal/storage"
)

var errNotBanker = errors.New("sender is not a banker")

// Ledger is the part of the transfer engine the dispatcher needs.
type Ledger interface {
	PostTransaction(ctx context.Context, tx models.Transaction) error
	GetBalance(ctx context.Context, userID string) (int64, error)
	Balances(ctx context.Context) ([]models.LedgerEntry, error)
}

// Config is the bot's policy and wording.
type Config struct {
	// Announcements is the channel id for confirmations and standings.
	Announcements string
	Messages      Messages

	// Bankers lists mentions or user ids allowed to give when
	// EnforceBankers is set.
	Bankers        []string
	EnforceBankers bool

	// Groups maps a group name to member mentions for the standings.
	Groups map[string][]string
}

// Dispatcher turns inbound messages into ledger calls and replies. It is
// safe for concurrent use.
type Dispatcher struct {
	ledger    Ledger
	directory interfaces.UserDirectory
	cfg       Config
	logger    *slog.Logger
}

// New returns a Dispatcher. A nil logger discards.
func New(l Ledger, directory interfaces.UserDirectory, cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{ledger: l, directory: directory, cfg: cfg, logger: logger}
}

// Handle runs one message through the parser and the ledger. It never
// panics and never returns an error: every failure becomes a reply.
func (d *Dispatcher) Handle(ctx context.Context, msg models.Message) (reply Reply) {
	cmd := command.Parse(msg.Text)
	logger := d.logger.With("message_id", msg.ID, "sender", msg.Sender.ID, "command", cmd.Kind.String())

	defer func() {
		if r := recover(); r != nil {
			logger.Error("command panicked", "panic", r)
			reply = d.usage(msg, d.cfg.Messages.Error)
		}
	}()

	reply, err := d.execute(ctx, msg, cmd)
	if err != nil {
		return d.failure(logger, msg, err)
	}
	logger.Debug("command handled")
	return reply
}

func (d *Dispatcher) execute(ctx context.Context, msg models.Message, cmd command.Command) (Reply, error) {
	switch cmd.Kind {
	case command.Give:
		if d.cfg.EnforceBankers && !d.isBanker(msg.Sender) {
			return Reply{}, errNotBanker
		}
		to, err := d.directory.ResolveMention(ctx, cmd.Target)
		if err != nil {
			return Reply{}, err
		}
		err = d.ledger.PostTransaction(ctx, models.Transaction{
			IdempotencyKey: msg.ID,
			Kind:           models.KindMint,
			ToUser:         to.ID,
			Amount:         cmd.Amount,
		})
		if err != nil {
			return Reply{}, err
		}
		return d.toChannel(fmt.Sprintf("%s gave %s %d dubloons! 🎉", msg.Sender.Mention, to.Mention, cmd.Amount)), nil

	case command.Pay:
		to, err := d.directory.ResolveMention(ctx, cmd.Target)
		if err != nil {
			return Reply{}, err
		}
		err = d.ledger.PostTransaction(ctx, models.Transaction{
			IdempotencyKey: msg.ID,
			Kind:           models.KindTransfer,
			FromUser:       msg.Sender.ID,
			ToUser:         to.ID,
			Amount:         cmd.Amount,
		})
		if err != nil {
			return Reply{}, err
		}
		return d.toChannel(fmt.Sprintf("%s paid %s %d dubloons! 🎉", msg.Sender.Mention, to.Mention, cmd.Amount)), nil

	case command.Balance:
		balance, err := d.ledger.GetBalance(ctx, msg.Sender.ID)
		if err != nil {
			return Reply{}, err
		}
		return d.toSender(msg, fmt.Sprintf("You have %d dubloons.", balance)), nil

	case command.BalanceOf:
		of, err := d.directory.ResolveMention(ctx, cmd.Target)
		if err != nil {
			return Reply{}, err
		}
		balance, err := d.ledger.GetBalance(ctx, of.ID)
		if err != nil {
			return Reply{}, err
		}
		return d.toSender(msg, fmt.Sprintf("%s has %d dubloons.", of.Mention, balance)), nil

	case command.Balances:
		text, err := d.standings(ctx)
		if err != nil {
			return Reply{}, err
		}
		return d.toChannel(text), nil

	case command.Help:
		return d.usage(msg, ""), nil

	default:
		return d.usage(msg, d.cfg.Messages.Unknown), nil
	}
}

func (d *Dispatcher) failure(logger *slog.Logger, msg models.Message, err error) Reply {
	switch {
	case errors.Is(err, ledger.ErrDuplicateTransaction):
		logger.Info("duplicate delivery, not replying")
		return Reply{}
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return d.toSender(msg, insufficientFundsText)
	case errors.Is(err, errNotBanker):
		return d.toSender(msg, notBankerText)
	case errors.Is(err, interfaces.ErrUserNotFound):
		logger.Info("mention did not resolve", "error", err)
	case storage.IsStorageError(err):
		logger.Error("storage failure", "error", err)
	default:
		logger.Error("command failed", "error", err)
	}
	return d.usage(msg, d.cfg.Messages.Error)
}

func (d *Dispatcher) isBanker(u models.User) bool {
	for _, b := range d.cfg.Bankers {
		if b == u.ID || (u.Mention != "" && strings.EqualFold(b, u.Mention)) {
			return true
		}
	}
	return false
}
