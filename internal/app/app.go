// Package app wires configuration, storage, the ledger, the dispatcher and
// a chat transport into a running bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/sheikh-saqib/dubloons/internal/config"
	"github.com/sheikh-saqib/dubloons/internal/console"
	"github.com/sheikh-saqib/dubloons/internal/directory"
	"github.com/sheikh-saqib/dubloons/internal/dispatcher"
	"github.com/sheikh-saqib/dubloons/internal/events/kafka"
	interfaces "github.com/sheikh-saqib/dubloons/internal/interfaces"
	"github.com/sheikh-saqib/dubloons/internal/ledger"
	"github.com/sheikh-saqib/dubloons/internal/models"
	"github.com/sheikh-saqib/dubloons/internal/storage/bolt"
	"github.com/sheikh-saqib/dubloons/internal/storage/memory"
	"github.com/sheikh-saqib/dubloons/internal/storage/postgres"
	"github.com/sheikh-saqib/dubloons/internal/storage/redis"
	"github.com/sheikh-saqib/dubloons/internal/storage/sqlite"
	"github.com/sheikh-saqib/dubloons/internal/telegram"
)

// App owns every long-lived component of a running bot.
type App struct {
	cfg        config.Config
	logger     *slog.Logger
	store      interfaces.LedgerStore
	ownsStore  bool // false when the store came from WithStore
	publisher  *kafka.Publisher
	directory  *directory.Directory
	dispatcher *dispatcher.Dispatcher
	transport  interfaces.Transport
}

// Option overrides a component New would otherwise build from config.
type Option func(*options)

type options struct {
	in        io.Reader
	out       io.Writer
	store     interfaces.LedgerStore
	transport interfaces.Transport
}

// WithConsoleIO replaces stdin and stdout for the console transport.
func WithConsoleIO(in io.Reader, out io.Writer) Option {
	return func(o *options) { o.in, o.out = in, out }
}

// WithStore bypasses the configured storage driver. The caller keeps
// ownership: Close, and a failing New, leave the store open.
func WithStore(s interfaces.LedgerStore) Option {
	return func(o *options) { o.store = s }
}

// WithTransport bypasses the configured transport.
func WithTransport(t interfaces.Transport) Option {
	return func(o *options) { o.transport = t }
}

// New builds every component. On error anything already opened is closed.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	o := options{in: os.Stdin, out: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.store = o.store
	if a.store == nil {
		if a.store, err = openStore(ctx, cfg.Storage, logger); err != nil {
			return nil, err
		}
		a.ownsStore = true
	}

	ledgerOpts := []ledger.Option{ledger.WithLogger(logger.With("component", "ledger"))}
	if len(cfg.Kafka.Brokers) > 0 {
		a.publisher = kafka.NewPublisher(cfg.Kafka.Brokers)
		ledgerOpts = append(ledgerOpts, ledger.WithPublisher(a.publisher, cfg.Kafka.Topic))
		logger.Info("publishing transactions", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}
	l := ledger.NewLedger(a.store, ledgerOpts...)

	seed, err := cfg.Bot.SeedUsers()
	if err != nil {
		return nil, err
	}
	a.directory = directory.New(seed...)

	announcements := cfg.Bot.Announcements
	if announcements == "" && cfg.Transport == "console" {
		announcements = console.Channel
	}
	a.dispatcher = dispatcher.New(l, a.directory, dispatcher.Config{
		Announcements:  announcements,
		Messages:       messages(cfg.Bot),
		Bankers:        cfg.Bot.Bankers,
		EnforceBankers: cfg.Bot.EnforceBankers,
		Groups:         cfg.Bot.Groups,
	}, logger.With("component", "dispatcher"))

	a.transport = o.transport
	if a.transport == nil {
		if a.transport, err = a.openTransport(o); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (interfaces.LedgerStore, error) {
	logger.Info("opening ledger store", "driver", cfg.Driver)

	var (
		store interfaces.LedgerStore
		err   error
	)
	// Assign only on success: a nil *Store inside the interface is not nil.
	switch cfg.Driver {
	case "memory":
		store = memory.NewMemoryLedgerStore()
	case "sqlite":
		var s *sqlite.Store
		if s, err = sqlite.Open(sqlite.Config{Path: cfg.Path, Logger: logger.With("component", "sqlite")}); err == nil {
			store = s
		}
	case "bolt":
		var s *bolt.Store
		if s, err = bolt.Open(cfg.Path); err == nil {
			store = s
		}
	case "postgres":
		var s *postgres.PostgresLedgerStore
		if s, err = postgres.Open(ctx, cfg.PostgresDSN); err == nil {
			store = s
		}
	case "redis":
		var s *redis.Store
		s, err = redis.Open(ctx, redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			URL:      cfg.RedisURL,
			EventTTL: cfg.EventTTL,
		})
		if err == nil {
			store = s
		}
	default:
		err = fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	return store, nil
}

func (a *App) openTransport(o options) (interfaces.Transport, error) {
	switch a.cfg.Transport {
	case "console":
		return console.New(o.in, o.out, a.directory, a.logger.With("component", "console")), nil
	case "telegram":
		tg := a.cfg.Telegram
		bot, err := telegram.New(tg.Token, tg.PollTimeout, tg.Debug, a.directory, a.logger.With("component", "telegram"))
		if err != nil {
			return nil, err
		}
		return bot, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", a.cfg.Transport)
	}
}

func messages(cfg config.BotConfig) dispatcher.Messages {
	m := dispatcher.DefaultMessages()
	if cfg.Welcome != "" {
		m.Welcome = cfg.Welcome
	}
	if cfg.Usage != "" {
		m.Usage = cfg.Usage
	}
	if cfg.ErrorMessage != "" {
		m.Error = cfg.ErrorMessage
	}
	if cfg.UnknownMessage != "" {
		m.Unknown = cfg.UnknownMessage
	}
	return m
}

// Run announces the welcome message, then serves messages until ctx is
// cancelled or the transport stops. At most MaxInFlight commands run at
// once; each gets CommandTimeout to finish. In-flight commands are allowed
// to complete before Run returns.
func (a *App) Run(ctx context.Context) error {
	a.post(ctx, a.dispatcher.Welcome())

	g := new(errgroup.Group)
	g.SetLimit(a.cfg.Bot.MaxInFlight)

	// Replies are posted even while shutting down.
	workCtx := context.WithoutCancel(ctx)

	err := a.transport.Run(ctx, func(_ context.Context, msg models.Message) {
		g.Go(func() error {
			cmdCtx, cancel := a.commandContext(workCtx)
			defer cancel()
			a.post(cmdCtx, a.dispatcher.Handle(cmdCtx, msg))
			return nil
		})
	})
	_ = g.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("transport: %w", err)
	}
	return nil
}

func (a *App) commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.Bot.CommandTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.cfg.Bot.CommandTimeout)
}

func (a *App) post(ctx context.Context, r dispatcher.Reply) {
	if r.Empty() {
		return
	}
	if err := a.transport.Post(ctx, r.To, r.Text); err != nil {
		a.logger.Error("post failed", "to", r.To.ID, "error", err)
	}
}

// Close releases the publisher and any store New opened itself.
func (a *App) Close() error {
	var errs []error
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if a.store != nil && a.ownsStore {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
