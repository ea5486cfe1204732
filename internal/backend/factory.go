package backend

import (
	"context"
	"errors"
	"fmt"

	"bilancio/internal/amqp"
	"bilancio/internal/cache"
	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/persistence/jsonfile"
	"bilancio/internal/persistence/memory"
	"bilancio/internal/services"
	gsheet "bilancio/internal/sheets/google"
	"bilancio/internal/storage"
)

// Dialer opens the snapshot publisher. The default dials RabbitMQ.
type Dialer func(url, exchange, queue string) (services.Publisher, error)

func dialAMQP(url, exchange, queue string) (services.Publisher, error) {
	return amqp.NewClient(url, exchange, queue)
}

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
	dial   Dialer
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) *DefaultFactory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
		dial:   dialAMQP,
	}
}

// WithDialer replaces the AMQP dialer.
func (f *DefaultFactory) WithDialer(d Dialer) *DefaultFactory {
	f.dial = d
	return f
}

var _ Factory = (*DefaultFactory)(nil)

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		result *BackendResult
		err    error
	)
	switch config.Type {
	case MemoryBackend:
		result = f.createMemoryBackend(config)
	case FileBackend:
		result, err = f.createFileBackend(config)
	case SQLiteBackend:
		result, err = f.createSQLiteBackend(config)
	case SheetsBackend:
		result, err = f.createSheetsBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	return f.withPublisher(result, config), nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) *BackendResult {
	store := memory.New(nil, core.DefaultSettings())
	if config.DataDirectory != "" {
		store = memory.NewFromFiles(config.DataDirectory, f.logger)
	}

	f.logger.Info("Initialized memory backend", "data_directory", config.DataDirectory)
	return &BackendResult{Backend: store}
}

func (f *DefaultFactory) createFileBackend(config Config) (*BackendResult, error) {
	store, err := jsonfile.New(config.DataDirectory, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file backend: %w", err)
	}

	f.logger.Info("Initialized file backend", "data_directory", store.Dir())
	return &BackendResult{Backend: store}, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return &BackendResult{Backend: repo, Cleanup: repo.Close}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	manager := cache.NewManager()
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:      config.GoogleSpreadsheetID,
		TransactionsSheet:  config.GoogleTransactionsSheet,
		SettingsSheet:      config.GoogleSettingsSheet,
		ServiceAccountJSON: config.GoogleServiceAccountJSON,
		ServiceAccountFile: config.GoogleServiceAccountFile,
		CacheTTL:           config.CacheTTL,
		Manager:            manager,
		Options:            config.SheetsOptions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	interval := config.CacheTTL
	if interval <= 0 {
		interval = gsheet.DefaultCacheTTL
	}
	manager.StartCleanup(interval)

	f.logger.Info("Initialized Google Sheets backend",
		"spreadsheet_id", config.GoogleSpreadsheetID,
		"cache_ttl", interval)

	return &BackendResult{
		Backend: client,
		Cleanup: func() error {
			manager.Stop()
			return nil
		},
	}, nil
}

// withPublisher wraps the backend so every save announces a snapshot. The
// backend still works when the broker cannot be reached.
func (f *DefaultFactory) withPublisher(result *BackendResult, config Config) *BackendResult {
	if config.AMQPURL == "" {
		return result
	}

	publisher, err := f.dial(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without snapshot notifications",
			log.FieldErrorType, log.ErrorTypeNetwork,
			log.FieldError, err)
		return result
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)

	wrapped := services.NewPublishingPersistence(result.Backend, publisher, f.logger)
	inner := result.Cleanup
	return &BackendResult{
		Backend: wrapped,
		Cleanup: func() error {
			// PublishingPersistence closes io.Closer backends itself.
			var errs []error
			if err := wrapped.Close(); err != nil {
				errs = append(errs, err)
			}
			if _, closes := result.Backend.(interface{ Close() error }); !closes && inner != nil {
				if err := inner(); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}
}
