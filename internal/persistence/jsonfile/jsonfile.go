// Package jsonfile persists transactions and settings as two JSON documents
// in a data directory. Writes go through a temp file and a rename so a crash
// never leaves a half-written document behind.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/persistence"
)

const (
	TransactionsFile = "transactions.json"
	SettingsFile     = "settings.json"

	// CorruptSuffix precedes the timestamp on documents moved aside.
	CorruptSuffix = ".corrupt-"
)

type Store struct {
	mu     sync.Mutex
	dir    string
	logger *log.Logger
	now    func() time.Time
}

var _ persistence.Persistence = (*Store)(nil)

// New creates the data directory if needed.
func New(dir string, logger *log.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Store{
		dir:    dir,
		logger: logger.WithComponent(log.ComponentPersistence),
		now:    time.Now,
	}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// LoadTransactions decodes the document one record at a time. Records that
// fail to decode are skipped; the original document is then copied aside so
// the next save cannot lose them for good. A document that is not a JSON
// array at all is moved aside and the list starts empty.
func (s *Store) LoadTransactions(ctx context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok, err := s.read(TransactionsFile)
	if err != nil || !ok {
		return []core.Transaction{}, err
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		s.quarantine(ctx, TransactionsFile, b, err, true)
		return []core.Transaction{}, nil
	}

	txns := make([]core.Transaction, 0, len(raw))
	skipped := 0
	for i, r := range raw {
		var t core.Transaction
		if err := json.Unmarshal(r, &t); err != nil {
			s.logger.WarnContext(ctx, "Skipping undecodable transaction record",
				"index", i,
				log.FieldErrorType, log.ErrorTypeCorruptData,
				log.FieldError, err)
			skipped++
			continue
		}
		txns = append(txns, t)
	}
	if skipped > 0 {
		s.quarantine(ctx, TransactionsFile, b, fmt.Errorf("%d undecodable record(s)", skipped), false)
	}
	return txns, nil
}

func (s *Store) SaveTransactions(_ context.Context, txns []core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(TransactionsFile, persistence.CloneTransactions(txns))
}

func (s *Store) LoadSettings(ctx context.Context) (core.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := core.DefaultSettings()
	b, ok, err := s.read(SettingsFile)
	if err != nil {
		return core.Settings{}, err
	}
	if !ok {
		return settings, nil
	}
	var stored core.Settings
	if err := json.Unmarshal(b, &stored); err != nil {
		s.quarantine(ctx, SettingsFile, b, err, true)
		return settings, nil
	}
	// Keys missing from an older document keep their defaults.
	settings.BudgetCap = stored.BudgetCap
	if stored.CurrencyRates != nil {
		settings.CurrencyRates = stored.CurrencyRates
	}
	return settings, nil
}

func (s *Store) SaveSettings(_ context.Context, settings core.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(SettingsFile, settings)
}

// read returns the document's bytes. It reports false without error when
// the file is absent; only I/O failures are returned.
func (s *Store) read(name string) ([]byte, bool, error) {
	path := filepath.Join(s.dir, name)
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}
	return b, true, nil
}

// quarantine keeps the bytes of a damaged document next to it as
// name.corrupt-<timestamp>. With move set the original is renamed away;
// otherwise a copy is written and the original stays until the next save.
// Failing to keep the copy is logged, never returned.
func (s *Store) quarantine(ctx context.Context, name string, b []byte, cause error, move bool) {
	src := filepath.Join(s.dir, name)
	dst := src + CorruptSuffix + s.now().UTC().Format("20060102T150405.000000000Z")

	var err error
	if move {
		err = os.Rename(src, dst)
	} else {
		err = os.WriteFile(dst, b, 0o644)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to keep a copy of a corrupt document",
			"path", src,
			log.FieldErrorType, log.ErrorTypePersistence,
			log.FieldError, err)
		return
	}
	s.logger.WarnContext(ctx, "Stored document is corrupt, copy kept",
		"path", src,
		"copy", dst,
		log.FieldErrorType, log.ErrorTypeCorruptData,
		log.FieldError, cause)
}

func (s *Store) write(name string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
