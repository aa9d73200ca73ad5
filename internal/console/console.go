// Package console is a line-oriented transport for local play and demos.
// Each input line is "name: command", e.g. "alice: give 10 to @bob".
// Unknown names join the directory on first use with their name as id.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/sheikh-saqib/dubloons/internal/directory"
	interfaces "github.com/sheikh-saqib/dubloons/internal/interfaces"
	"github.com/sheikh-saqib/dubloons/internal/models"
)

// Channel is the only channel the console knows.
const Channel = "console"

// Console is a Transport over an input stream and an output stream.
type Console struct {
	in        io.Reader
	directory *directory.Directory
	logger    *slog.Logger

	mu  sync.Mutex
	out io.Writer
	seq int
}

// New reads commands from in and writes replies to out. A nil logger
// discards.
func New(in io.Reader, out io.Writer, dir *directory.Directory, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Console{in: in, out: out, directory: dir, logger: logger}
}

type line struct {
	text string
	err  error
}

// Run returns when input is exhausted or ctx is cancelled. Messages are
// handed to handle in input order. After cancellation the reader goroutine
// may stay blocked in a read until the input closes; on stdin that lasts
// until the process exits.
func (c *Console) Run(ctx context.Context, handle interfaces.MessageHandler) error {
	lines := make(chan line)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- line{text: sc.Text()}:
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			select {
			case lines <- line{err: err}:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			if l.err != nil {
				return fmt.Errorf("console: read: %w", l.err)
			}
			msg, ok := c.toMessage(l.text)
			if !ok {
				continue
			}
			handle(ctx, msg)
		}
	}
}

func (c *Console) toMessage(raw string) (models.Message, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return models.Message{}, false
	}
	name, text, ok := strings.Cut(raw, ":")
	name = strings.TrimPrefix(strings.TrimSpace(name), "@")
	if !ok || name == "" || strings.ContainsAny(name, " \t") {
		c.logger.Warn("console line ignored", "line", raw)
		c.write(`expected "name: command"`)
		return models.Message{}, false
	}

	sender, err := c.directory.ResolveMention(context.Background(), name)
	if err != nil {
		sender = models.User{ID: strings.ToLower(name), Mention: "@" + name}
		c.directory.Remember(sender)
	}

	c.mu.Lock()
	c.seq++
	id := fmt.Sprintf("%s:%d", Channel, c.seq)
	c.mu.Unlock()

	return models.Message{
		ID:      id,
		Sender:  sender,
		Text:    strings.TrimSpace(text),
		Channel: Channel,
	}, true
}

// Post prints channel messages as "[channel] text" and direct replies as
// "[to @user] text".
func (c *Console) Post(ctx context.Context, to models.Destination, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	label := to.ID
	if to.Kind == models.ToSender {
		label = "to " + to.ID
		if u, ok := c.directory.Lookup(to.ID); ok && u.Mention != "" {
			label = "to " + u.Mention
		}
	}
	return c.write(fmt.Sprintf("[%s] %s", label, text))
}

func (c *Console) write(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintln(c.out, s); err != nil {
		return fmt.Errorf("console: write: %w", err)
	}
	return nil
}

var _ interfaces.Transport = (*Console)(nil)
