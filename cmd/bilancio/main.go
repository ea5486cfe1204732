package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bilancio/internal/app"
	"bilancio/internal/cli"
	"bilancio/internal/console"
	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/store"
	"bilancio/internal/validation"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig(nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return console.ExitError
	}
	// Logs go to stderr; stdout carries command output and exports.
	logger := cli.SetupLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.WithContext(ctx, logger)

	backend, err := cli.OpenBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open backend",
			log.FieldBackend, cfg.DataBackend,
			log.FieldErrorType, log.ErrorTypeConfiguration,
			log.FieldError, err)
		return console.ExitError
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Warn("Failed to close backend", log.FieldError, err)
		}
	}()

	st := store.New(backend.Backend, store.Config{Logger: logger})
	if err := st.Initialize(ctx); err != nil {
		logger.Error("Failed to load data",
			log.FieldOperation, log.OpStartup,
			log.FieldBackend, cfg.DataBackend,
			log.FieldError, err)
		return console.ExitError
	}

	validator := validation.New(core.ParseCategories(cfg.Categories), nil)
	ctrl := app.New(st, validator, nil)
	return console.New(ctrl, os.Stdin, os.Stdout, os.Stderr, logger).Run(ctx, os.Args[1:])
}
