// Package store holds the authoritative in-memory transaction list and
// settings, and writes the whole set back through a persistence backend after
// every change.
package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/persistence"

	"github.com/oklog/ulid/v2"
)

// IDPrefix is prepended to every generated transaction id.
const IDPrefix = "txn_"

var (
	ErrNotInitialized = errors.New("store not initialized")
	// ErrNotPersisted marks a change that was applied in memory but could not
	// be written. The store stays dirty until Flush succeeds.
	ErrNotPersisted = errors.New("change not persisted")
	ErrDuplicateID  = errors.New("duplicate transaction id")
	ErrMissingID    = errors.New("transaction without id")
)

// Config carries the store's injectable collaborators.
type Config struct {
	Now     func() time.Time
	Entropy io.Reader
	Logger  *log.Logger
}

func DefaultConfig() Config {
	return Config{
		Now:     time.Now,
		Entropy: ulid.Monotonic(rand.Reader, 0),
		Logger:  log.Discard(),
	}
}

type Store struct {
	mu sync.Mutex

	backend persistence.Persistence
	now     func() time.Time
	entropy io.Reader
	logger  *log.Logger
	events  *log.StructuredLogger

	initialized bool
	txns        []core.Transaction
	settings    core.Settings
	editing     core.TransactionID
	lastStamp   time.Time

	txnsDirty     bool
	settingsDirty bool
}

// New returns an uninitialized store; call Initialize before anything else.
func New(p persistence.Persistence, cfg Config) *Store {
	def := DefaultConfig()
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	if cfg.Entropy == nil {
		cfg.Entropy = def.Entropy
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	logger := cfg.Logger.WithComponent(log.ComponentStore)
	return &Store{
		backend:  p,
		now:      cfg.Now,
		entropy:  cfg.Entropy,
		logger:   logger,
		events:   log.NewStructuredLogger(logger),
		settings: core.DefaultSettings(),
	}
}

// Initialize loads transactions and settings from the backend, replacing any
// in-memory state. On error the previous state is kept.
func (s *Store) Initialize(ctx context.Context) error {
	txns, err := s.backend.LoadTransactions(ctx)
	if err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}
	settings, err := s.backend.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.txns = s.dedupe(ctx, txns)
	s.settings = settings.Clone()
	s.editing = ""
	s.txnsDirty = false
	s.settingsDirty = false
	s.initialized = true
	for _, t := range s.txns {
		if t.UpdatedAt.After(s.lastStamp) {
			s.lastStamp = t.UpdatedAt
		}
	}

	s.logger.InfoContext(ctx, "Store initialized",
		log.FieldOperation, log.OpLoad,
		log.FieldCount, len(s.txns))
	return nil
}

// dedupe drops records a backend should never have produced: blank or
// repeated ids. The first occurrence wins.
func (s *Store) dedupe(ctx context.Context, txns []core.Transaction) []core.Transaction {
	out := make([]core.Transaction, 0, len(txns))
	seen := make(map[core.TransactionID]struct{}, len(txns))
	for _, t := range txns {
		if t.ID == "" {
			s.logger.WarnContext(ctx, "Skipping stored transaction without id",
				log.FieldErrorType, log.ErrorTypeCorruptData)
			continue
		}
		if _, dup := seen[t.ID]; dup {
			s.logger.WarnContext(ctx, "Skipping duplicate stored transaction",
				log.FieldTransactionID, t.ID.String(),
				log.FieldErrorType, log.ErrorTypeCorruptData)
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Add stores a new transaction built from in. Field semantics are the
// validator's job; Add only fails when the amount or date cannot be parsed.
func (s *Store) Add(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return core.Transaction{}, ErrNotInitialized
	}
	t, err := fromInput(in)
	if err != nil {
		return core.Transaction{}, err
	}

	stamp := s.stamp()
	id, err := s.newID(stamp)
	if err != nil {
		return core.Transaction{}, err
	}
	t.ID = id
	t.CreatedAt = stamp
	t.UpdatedAt = stamp
	s.txns = append(s.txns, t)

	s.events.LogTransactionSaved(ctx, log.OpCreate, t.ID.String(), t.Description,
		core.FormatAmount(t.Amount), t.Category.String(), t.Date.String())
	return t, s.persistTransactions(ctx)
}

// Update replaces every user field of the transaction with the given id.
// ID and CreatedAt are kept; UpdatedAt never moves backwards.
func (s *Store) Update(ctx context.Context, id core.TransactionID, in core.TransactionInput) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return core.Transaction{}, ErrNotInitialized
	}
	i := s.indexOf(id)
	if i < 0 {
		return core.Transaction{}, fmt.Errorf("update %s: %w", id, core.ErrNotFound)
	}
	t, err := fromInput(in)
	if err != nil {
		return core.Transaction{}, err
	}

	prev := s.txns[i]
	t.ID = prev.ID
	t.CreatedAt = prev.CreatedAt
	t.UpdatedAt = s.stamp()
	if t.UpdatedAt.Before(prev.UpdatedAt) {
		t.UpdatedAt = prev.UpdatedAt
	}
	s.txns[i] = t
	if s.editing == id {
		s.editing = ""
	}

	s.events.LogTransactionSaved(ctx, log.OpUpdate, t.ID.String(), t.Description,
		core.FormatAmount(t.Amount), t.Category.String(), t.Date.String())
	return t, s.persistTransactions(ctx)
}

func (s *Store) Delete(ctx context.Context, id core.TransactionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("delete %s: %w", id, core.ErrNotFound)
	}
	s.txns = slices.Delete(s.txns, i, i+1)
	if s.editing == id {
		s.editing = ""
	}

	s.events.LogTransactionDeleted(ctx, id.String())
	return s.persistTransactions(ctx)
}

func (s *Store) Get(id core.TransactionID) (core.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return core.Transaction{}, false
	}
	return s.txns[i], true
}

// All returns a copy of every transaction in insertion order.
func (s *Store) All() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return persistence.CloneTransactions(s.txns)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.txns)
}

// SetTransactions replaces the whole set, e.g. on import. Records keep their
// ids and timestamps. A blank or repeated id rejects the list and leaves the
// store untouched.
func (s *Store) SetTransactions(ctx context.Context, txns []core.Transaction) error {
	seen := make(map[core.TransactionID]struct{}, len(txns))
	for i, t := range txns {
		if t.ID == "" {
			return fmt.Errorf("record %d: %w", i, ErrMissingID)
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("record %d (%s): %w", i, t.ID, ErrDuplicateID)
		}
		seen[t.ID] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	s.txns = persistence.CloneTransactions(txns)
	for _, t := range s.txns {
		if t.UpdatedAt.After(s.lastStamp) {
			s.lastStamp = t.UpdatedAt
		}
	}

	s.logger.InfoContext(ctx, "Transactions replaced",
		log.FieldOperation, log.OpImport,
		log.FieldCount, len(s.txns))
	return s.persistTransactions(ctx)
}

// SetEditingID marks id as the transaction being edited. The id is not
// checked against the current set.
func (s *Store) SetEditingID(id core.TransactionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editing = id
}

func (s *Store) EditingID() (core.TransactionID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editing, s.editing != ""
}

func (s *Store) ClearEditingID() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editing = ""
}

func (s *Store) Settings() core.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.Clone()
}

// UpdateSettings shallow-merges the patch over the current settings.
func (s *Store) UpdateSettings(ctx context.Context, p core.SettingsPatch) (core.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return core.Settings{}, ErrNotInitialized
	}
	s.settings = s.settings.Merge(p)
	return s.settings.Clone(), s.persistSettings(ctx)
}

// Dirty reports whether some in-memory state has not reached the backend.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txnsDirty || s.settingsDirty
}

// Flush retries every write that previously failed.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	var errs []error
	if s.txnsDirty {
		errs = append(errs, s.persistTransactions(ctx))
	}
	if s.settingsDirty {
		errs = append(errs, s.persistSettings(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "Store flushed", log.FieldOperation, log.OpFlush)
	return nil
}

func (s *Store) persistTransactions(ctx context.Context) error {
	if err := s.backend.SaveTransactions(ctx, persistence.CloneTransactions(s.txns)); err != nil {
		s.txnsDirty = true
		s.logger.WarnContext(ctx, "Failed to persist transactions",
			log.FieldOperation, log.OpSave,
			log.FieldErrorType, log.ErrorTypePersistence,
			log.FieldError, err,
			log.FieldDirty, true)
		return fmt.Errorf("%w: %w", ErrNotPersisted, err)
	}
	s.txnsDirty = false
	return nil
}

func (s *Store) persistSettings(ctx context.Context) error {
	if err := s.backend.SaveSettings(ctx, s.settings.Clone()); err != nil {
		s.settingsDirty = true
		s.logger.WarnContext(ctx, "Failed to persist settings",
			log.FieldOperation, log.OpSave,
			log.FieldErrorType, log.ErrorTypePersistence,
			log.FieldError, err,
			log.FieldDirty, true)
		return fmt.Errorf("%w: %w", ErrNotPersisted, err)
	}
	s.settingsDirty = false
	return nil
}

func (s *Store) indexOf(id core.TransactionID) int {
	return slices.IndexFunc(s.txns, func(t core.Transaction) bool { return t.ID == id })
}

// stamp returns the current time, clamped so it never precedes an earlier stamp.
func (s *Store) stamp() time.Time {
	now := s.now().UTC()
	if now.Before(s.lastStamp) {
		now = s.lastStamp
	}
	s.lastStamp = now
	return now
}

func (s *Store) newID(at time.Time) (core.TransactionID, error) {
	for {
		u, err := ulid.New(ulid.Timestamp(at), s.entropy)
		if err != nil {
			return "", fmt.Errorf("generate id: %w", err)
		}
		id := core.TransactionID(IDPrefix + u.String())
		if s.indexOf(id) < 0 {
			return id, nil
		}
	}
}

func fromInput(in core.TransactionInput) (core.Transaction, error) {
	in = in.Trimmed()
	amount, err := core.ParseAmount(in.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	date, err := core.ParseDate(in.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		Description: in.Description,
		Amount:      amount,
		Category:    core.Category(in.Category),
		Date:        date,
	}, nil
}
