package backend

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"bilancio/internal/amqp"
	"bilancio/internal/config"
	"bilancio/internal/core"
	"bilancio/internal/persistence/jsonfile"
	"bilancio/internal/persistence/memory"
	"bilancio/internal/services"
	gsheet "bilancio/internal/sheets/google"
	"bilancio/internal/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"
)

type recordingPublisher struct {
	msgs   []*amqp.SnapshotMessage
	closed bool
}

func (p *recordingPublisher) PublishSnapshot(_ context.Context, msg *amqp.SnapshotMessage) error {
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

func sampleTxn() core.Transaction {
	return core.Transaction{
		ID:          "txn_1",
		Description: "Coffee",
		Amount:      decimal.RequireFromString("2.50"),
		Category:    core.Food,
		Date:        core.NewDate(2025, 6, 1),
	}
}

func TestCreateBackendTypes(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name   string
		config Config
		check  func(t *testing.T, r *BackendResult)
	}{
		{
			name:   "memory",
			config: Config{Type: MemoryBackend},
			check: func(t *testing.T, r *BackendResult) {
				assert.IsType(t, &memory.Store{}, r.Backend)
				assert.Nil(t, r.Cleanup)
			},
		},
		{
			name:   "file",
			config: Config{Type: FileBackend, DataDirectory: filepath.Join(dir, "json")},
			check: func(t *testing.T, r *BackendResult) {
				assert.IsType(t, &jsonfile.Store{}, r.Backend)
			},
		},
		{
			name:   "sqlite",
			config: Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(dir, "bilancio.db")},
			check: func(t *testing.T, r *BackendResult) {
				assert.IsType(t, &storage.SQLiteRepository{}, r.Backend)
				assert.NotNil(t, r.Cleanup)
			},
		},
		{
			name: "sheets",
			config: Config{
				Type:                SheetsBackend,
				GoogleSpreadsheetID: "sheet-id",
				SheetsOptions: []goption.ClientOption{
					goption.WithEndpoint("http://127.0.0.1:1/"),
					goption.WithoutAuthentication(),
				},
			},
			check: func(t *testing.T, r *BackendResult) {
				assert.IsType(t, &gsheet.Client{}, r.Backend)
				assert.NotNil(t, r.Cleanup)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewFactory(nil).CreateBackend(ctx, tt.config)
			require.NoError(t, err)
			t.Cleanup(func() { _ = r.Close() })
			tt.check(t, r)
		})
	}
}

func TestCreateBackendFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Type: FileBackend, DataDirectory: t.TempDir()}

	r, err := NewFactory(nil).CreateBackend(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, r.Backend.SaveTransactions(ctx, []core.Transaction{sampleTxn()}))

	again, err := NewFactory(nil).CreateBackend(ctx, cfg)
	require.NoError(t, err)
	got, err := again.Backend.LoadTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, core.TransactionID("txn_1"), got[0].ID)
}

func TestCreateBackendInvalid(t *testing.T) {
	_, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: "tape"})
	assert.Error(t, err)

	_, err = NewFactory(nil).CreateBackend(context.Background(), Config{Type: SQLiteBackend})
	assert.ErrorContains(t, err, "SQLite database path is required")

	_, err = NewFactory(nil).CreateBackend(context.Background(), Config{Type: MemoryBackend, AMQPURL: "amqp://localhost/"})
	assert.ErrorContains(t, err, "exchange and queue")
}

func TestCreateBackendWrapsPublisher(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	var dialed string

	f := NewFactory(nil).WithDialer(func(url, exchange, queue string) (services.Publisher, error) {
		dialed = url + " " + exchange + " " + queue
		return pub, nil
	})
	r, err := f.CreateBackend(ctx, Config{
		Type:         SQLiteBackend,
		SQLiteDBPath: filepath.Join(t.TempDir(), "bilancio.db"),
		AMQPURL:      "amqp://localhost/",
		AMQPExchange: "bilancio",
		AMQPQueue:    "mirror_snapshots",
	})
	require.NoError(t, err)

	assert.Equal(t, "amqp://localhost/ bilancio mirror_snapshots", dialed)
	require.IsType(t, &services.PublishingPersistence{}, r.Backend)

	require.NoError(t, r.Backend.SaveTransactions(ctx, []core.Transaction{sampleTxn()}))
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, amqp.KindTransactions, pub.msgs[0].Kind)
	assert.Equal(t, 1, pub.msgs[0].Count)

	require.NoError(t, r.Close())
	assert.True(t, pub.closed)
}

func TestCreateBackendDialFailureKeepsBackend(t *testing.T) {
	f := NewFactory(nil).WithDialer(func(string, string, string) (services.Publisher, error) {
		return nil, errors.New("connection refused")
	})
	r, err := f.CreateBackend(context.Background(), Config{
		Type:         MemoryBackend,
		AMQPURL:      "amqp://localhost/",
		AMQPExchange: "bilancio",
		AMQPQueue:    "mirror_snapshots",
	})
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, r.Backend)
}

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	assert.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "tape"})
	assert.Error(t, err)

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:         "sheets",
		DataDir:             "./data",
		GoogleSpreadsheetID: "abc",
		GoogleSettingsSheet: "Prefs",
	})
	require.NoError(t, err)
	assert.Equal(t, SheetsBackend, cfg.Type)
	assert.Equal(t, "abc", cfg.GoogleSpreadsheetID)
	assert.Equal(t, "Prefs", cfg.GoogleSettingsSheet)
	assert.Equal(t, "./data", cfg.DataDirectory)
}

func TestBackendTypes(t *testing.T) {
	assert.Equal(t, []string{"memory", "file", "sqlite", "sheets"}, GetBackendTypeStrings())
	for _, bt := range GetBackendTypes() {
		assert.True(t, bt.IsValid())
	}
	assert.False(t, BackendType("").IsValid())
}
