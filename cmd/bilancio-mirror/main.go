package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/cache"
	"bilancio/internal/cli"
	"bilancio/internal/config"
	"bilancio/internal/log"
	gsheet "bilancio/internal/sheets/google"
	"bilancio/internal/storage"
	"bilancio/internal/worker"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig((*config.Config).ValidateMirror)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger := cli.SetupLogger(cfg, os.Stdout).WithComponent(log.ComponentWorker)
	logger.Info("Starting bilancio-mirror", "interval", cfg.MirrorInterval)

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", cfg.SQLiteDBPath)
		return 1
	}
	defer repo.Close()

	manager := cache.NewManager()
	defer manager.Stop()
	sheets, err := gsheet.New(context.Background(), gsheet.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		TransactionsSheet:  cfg.GoogleTransactionsSheet,
		SettingsSheet:      cfg.GoogleSettingsSheet,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
		CacheTTL:           cfg.CacheTTL,
		Manager:            manager,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		return 1
	}
	if cfg.CacheTTL > 0 {
		manager.StartCleanup(cfg.CacheTTL)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	// Without a broker the worker still reconciles on every tick.
	var consumer *amqp.Client
	if cfg.AMQPURL != "" {
		consumer, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, polling only",
				log.FieldErrorType, log.ErrorTypeNetwork,
				log.FieldError, err)
			consumer = nil
		}
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided, polling only")
	}

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func() {
		if consumer != nil {
			if err := consumer.Close(); err != nil {
				logger.Warn("Failed to close AMQP client", log.FieldError, err)
			}
		}
	})

	mirror := worker.NewMirrorWorker(repo, sheets, logger)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// The sheet may have been edited or wiped while we were down.
		if err := mirror.StartupMirror(gctx); err != nil {
			logger.Error("Startup mirror failed", log.FieldOperation, log.OpStartup, log.FieldError, err)
		}
		return mirror.Run(gctx, cfg.MirrorInterval)
	})
	if consumer != nil {
		g.Go(func() error {
			return consumer.ConsumeSnapshots(gctx, mirror.HandleSnapshotMessage)
		})
	}

	err = g.Wait()
	if ctx.Err() != nil {
		<-done
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Mirror worker stopped", log.FieldError, err)
		return 1
	}
	logger.Info("bilancio-mirror stopped")
	return 0
}
