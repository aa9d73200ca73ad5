// dubloons is a chat bot that keeps a ledger of play money. It serves
// Telegram by default; --transport=console reads "name: command" lines
// from stdin for local play.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/sheikh-saqib/dubloons/internal/app"
	"github.com/sheikh-saqib/dubloons/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, transport, storage, logFormat string
	var debug bool

	flagSet := pflag.NewFlagSet("dubloons", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "YAML config file (environment variables override it)")
	flagSet.StringVar(&transport, "transport", "", "telegram or console (overrides DUBLOONS_TRANSPORT)")
	flagSet.StringVar(&storage, "storage", "", "memory, sqlite, bolt, postgres or redis (overrides DUBLOONS_STORAGE)")
	flagSet.StringVar(&logFormat, "log-format", "text", "text or json")
	flagSet.BoolVar(&debug, "debug", false, "verbose logging")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	// Flags win over the environment, which wins over the file.
	if transport != "" {
		os.Setenv("DUBLOONS_TRANSPORT", transport)
	}
	if storage != "" {
		os.Setenv("DUBLOONS_STORAGE", storage)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Logs go to stderr; the console transport owns stdout.
	logger := newLogger(os.Stderr, logFormat, debug)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	logger.Info("dubloons starting", "transport", cfg.Transport, "storage", cfg.Storage.Driver)
	if err := a.Run(ctx); err != nil {
		return err
	}
	logger.Info("dubloons stopped")
	return nil
}
