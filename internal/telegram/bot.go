// Package telegram connects the dispatcher to the Telegram Bot API.
//
// In group chats the bot only reacts to messages that start with its
// @username or that are slash commands addressed to it; in private chats
// every message is a command. Every sender is remembered in the user
// directory so mentions can be resolved later: the Bot API offers no way
// to look a user up by @username.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sheikh-saqib/dubloons/internal/directory"
	interfaces "github.com/sheikh-saqib/dubloons/internal/interfaces"
	"github.com/sheikh-saqib/dubloons/internal/models"
)

type Bot struct {
	api         *tgbotapi.BotAPI
	username    string // without "@"
	pollTimeout int
	directory   *directory.Directory
	logger      *slog.Logger
}

// New logs in with token.
func New(token string, pollTimeout int, debug bool, dir *directory.Directory, logger *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: bot init: %w", err)
	}
	api.Debug = debug
	return NewWithAPI(api, pollTimeout, dir, logger), nil
}

func NewWithAPI(api *tgbotapi.BotAPI, pollTimeout int, dir *directory.Directory, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bot{
		api:         api,
		username:    api.Self.UserName,
		pollTimeout: pollTimeout,
		directory:   dir,
		logger:      logger,
	}
}

// Run long-polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context, handle interfaces.MessageHandler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	b.logger.Info("telegram polling started", "bot", "@"+b.username)
	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			if msg, ok := b.toMessage(upd); ok {
				handle(ctx, msg)
			}
		}
	}
}

// Post sends text to a chat. Sender-directed replies go to the user's
// private chat, whose id equals the user id. A channel may also be given
// as @channelusername. Replies are Markdown; if Telegram rejects the markup
// (an underscore in a username, say) the text is sent again as plain text.
func (b *Bot) Post(ctx context.Context, to models.Destination, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := newMessage(to, text)
	if err != nil {
		return err
	}

	msg.ParseMode = tgbotapi.ModeMarkdown
	_, err = b.api.Send(msg)
	if err == nil {
		return nil
	}
	b.logger.Debug("markdown send failed, retrying as plain text", "chat", to.ID, "error", err)

	msg.ParseMode = ""
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("telegram: send to %s: %w", to.ID, err)
	}
	return nil
}

func newMessage(to models.Destination, text string) (tgbotapi.MessageConfig, error) {
	if to.Kind == models.ToChannel && strings.HasPrefix(to.ID, "@") && len(to.ID) > 1 {
		return tgbotapi.NewMessageToChannel(to.ID, text), nil
	}
	chatID, err := strconv.ParseInt(to.ID, 10, 64)
	if err != nil {
		return tgbotapi.MessageConfig{}, fmt.Errorf("telegram: bad chat id %q: %w", to.ID, err)
	}
	return tgbotapi.NewMessage(chatID, text), nil
}

func (b *Bot) toMessage(upd tgbotapi.Update) (models.Message, bool) {
	m := upd.Message
	if m == nil || m.From == nil || m.Chat == nil || m.From.IsBot {
		return models.Message{}, false
	}

	sender := senderOf(m.From)
	b.directory.Remember(sender)

	text, ok := b.addressedText(m)
	if !ok {
		return models.Message{}, false
	}
	return models.Message{
		ID:      fmt.Sprintf("%d:%d", m.Chat.ID, m.MessageID),
		Sender:  sender,
		Text:    text,
		Channel: strconv.FormatInt(m.Chat.ID, 10),
	}, true
}

// addressedText returns the command text if the message is meant for the
// bot, with any leading mention of the bot removed.
func (b *Bot) addressedText(m *tgbotapi.Message) (string, bool) {
	if m.IsCommand() {
		if at := strings.SplitN(m.CommandWithAt(), "@", 2); len(at) == 2 && !strings.EqualFold(at[1], b.username) {
			return "", false
		}
		return strings.TrimSpace(m.Command() + " " + m.CommandArguments()), true
	}

	text := strings.TrimSpace(m.Text)
	if rest, ok := b.stripMention(text); ok {
		return rest, true
	}
	if m.Chat.IsPrivate() {
		return text, true
	}
	return "", false
}

func (b *Bot) stripMention(text string) (string, bool) {
	prefix := "@" + b.username
	if b.username == "" || len(text) < len(prefix) || !strings.EqualFold(text[:len(prefix)], prefix) {
		return "", false
	}
	rest := text[len(prefix):]
	if rest != "" && !strings.ContainsAny(rest[:1], " \t\n:,") {
		// "@dubloonsbotfan" is someone else.
		return "", false
	}
	rest = strings.TrimLeft(rest, " \t\n:,")
	return strings.TrimSpace(rest), true
}

func senderOf(u *tgbotapi.User) models.User {
	mention := ""
	if u.UserName != "" {
		mention = "@" + u.UserName
	} else {
		mention = strings.TrimSpace(u.FirstName + " " + u.LastName)
	}
	return models.User{ID: strconv.FormatInt(u.ID, 10), Mention: mention}
}

var _ interfaces.Transport = (*Bot)(nil)
