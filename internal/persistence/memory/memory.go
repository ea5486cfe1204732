// Package memory is an in-process persistence backend. Nothing survives a
// restart; it backs tests and the "memory" data backend.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/persistence"
)

// SeedFile is the optional snapshot NewFromFiles reads from the data directory.
const SeedFile = "seed_transactions.json"

type Store struct {
	mu       sync.Mutex
	items    []core.Transaction
	settings core.Settings
	saves    int
}

var _ persistence.Persistence = (*Store)(nil)

func New(seed []core.Transaction, settings core.Settings) *Store {
	return &Store{items: persistence.CloneTransactions(seed), settings: settings.Clone()}
}

// NewFromFiles seeds the store from base/seed_transactions.json when present.
// A missing or unreadable seed yields an empty store with default settings.
func NewFromFiles(base string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Discard()
	}
	path := filepath.Join(base, SeedFile)
	items, err := readSeed(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WithComponent(log.ComponentPersistence).Warn("Ignoring unreadable seed file",
			"path", path,
			log.FieldErrorType, log.ErrorTypeCorruptData,
			log.FieldError, err)
	}
	return New(items, core.DefaultSettings())
}

func (s *Store) LoadTransactions(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return persistence.CloneTransactions(s.items), nil
}

func (s *Store) SaveTransactions(_ context.Context, txns []core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = persistence.CloneTransactions(txns)
	s.saves++
	return nil
}

func (s *Store) LoadSettings(_ context.Context) (core.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.Clone(), nil
}

func (s *Store) SaveSettings(_ context.Context, settings core.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings.Clone()
	s.saves++
	return nil
}

// Saves counts successful save calls of either kind.
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func readSeed(path string) ([]core.Transaction, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []core.Transaction
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return out, nil
}
