package store

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/persistence/memory"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("disk full")

// flaky wraps the in-memory backend and fails on demand.
type flaky struct {
	*memory.Store
	failLoad bool
	failSave bool
}

func (f *flaky) LoadTransactions(ctx context.Context) ([]core.Transaction, error) {
	if f.failLoad {
		return nil, errBackend
	}
	return f.Store.LoadTransactions(ctx)
}

func (f *flaky) SaveTransactions(ctx context.Context, txns []core.Transaction) error {
	if f.failSave {
		return errBackend
	}
	return f.Store.SaveTransactions(ctx, txns)
}

func (f *flaky) SaveSettings(ctx context.Context, s core.Settings) error {
	if f.failSave {
		return errBackend
	}
	return f.Store.SaveSettings(ctx, s)
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(t *testing.T, seed ...core.Transaction) (*Store, *flaky, *clock) {
	t.Helper()
	backend := &flaky{Store: memory.New(seed, core.DefaultSettings())}
	clk := &clock{t: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	s := New(backend, Config{
		Now:     clk.Now,
		Entropy: ulid.Monotonic(rand.New(rand.NewSource(1)), 0),
		Logger:  log.Discard(),
	})
	require.NoError(t, s.Initialize(context.Background()))
	return s, backend, clk
}

func input(desc, amount, cat, date string) core.TransactionInput {
	return core.TransactionInput{Description: desc, Amount: amount, Category: cat, Date: date}
}

func TestOperationsBeforeInitialize(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New(nil, core.DefaultSettings()), DefaultConfig())

	_, err := s.Add(ctx, input("Coffee", "-3", "Food", "2025-06-01"))
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = s.Update(ctx, "txn_x", input("Coffee", "-3", "Food", "2025-06-01"))
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, s.Delete(ctx, "txn_x"), ErrNotInitialized)
	assert.ErrorIs(t, s.SetTransactions(ctx, nil), ErrNotInitialized)
	_, err = s.UpdateSettings(ctx, core.ClearBudgetCap())
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, s.Flush(ctx), ErrNotInitialized)
	assert.Empty(t, s.All())
}

func TestAdd(t *testing.T) {
	ctx := context.Background()
	s, backend, _ := newTestStore(t)

	got, err := s.Add(ctx, input("  Groceries  ", "-42,50", " Food ", "2025-06-14"))
	require.NoError(t, err)

	assert.Regexp(t, `^txn_[0-9A-Z]{26}$`, got.ID.String())
	assert.Equal(t, "Groceries", got.Description)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("-42.5")))
	assert.Equal(t, core.Food, got.Category)
	assert.Equal(t, "2025-06-14", got.Date.String())
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)

	stored, err := backend.LoadTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, got.ID, stored[0].ID)
}

func TestAddRejectsUnparseableInput(t *testing.T) {
	ctx := context.Background()
	s, backend, _ := newTestStore(t)

	_, err := s.Add(ctx, input("Bad", "abc", "Food", "2025-06-14"))
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	_, err = s.Add(ctx, input("Bad", "1", "Food", "14/06/2025"))
	assert.ErrorIs(t, err, core.ErrInvalidDate)

	assert.Empty(t, s.All())
	assert.Zero(t, backend.Saves())
}

func TestIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	seen := map[core.TransactionID]bool{}
	for range 200 {
		tx, err := s.Add(ctx, input("x", "1", "Other", "2025-06-01"))
		require.NoError(t, err)
		require.False(t, seen[tx.ID], "duplicate id %s", tx.ID)
		seen[tx.ID] = true
	}
	assert.Equal(t, 200, s.Len())
}

func TestUpdatePreservesIdentity(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	orig, err := s.Add(ctx, input("Rent", "-900", "Housing", "2025-06-01"))
	require.NoError(t, err)

	got, err := s.Update(ctx, orig.ID, input("Rent June", "-950", "Housing", "2025-06-02"))
	require.NoError(t, err)

	assert.Equal(t, orig.ID, got.ID)
	assert.Equal(t, orig.CreatedAt, got.CreatedAt)
	assert.False(t, got.UpdatedAt.Before(orig.UpdatedAt))
	assert.Equal(t, "Rent June", got.Description)
	assert.Equal(t, "2025-06-02", got.Date.String())

	fetched, ok := s.Get(orig.ID)
	require.True(t, ok)
	assert.Equal(t, got, fetched)
}

func TestUpdatedAtNeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	s, _, clk := newTestStore(t)

	orig, err := s.Add(ctx, input("Rent", "-900", "Housing", "2025-06-01"))
	require.NoError(t, err)

	clk.t = clk.t.Add(-time.Hour)
	got, err := s.Update(ctx, orig.ID, input("Rent", "-901", "Housing", "2025-06-01"))
	require.NoError(t, err)
	assert.False(t, got.UpdatedAt.Before(orig.UpdatedAt))
}

func TestUpdateAndDeleteMissing(t *testing.T) {
	ctx := context.Background()
	s, backend, _ := newTestStore(t)
	_, err := s.Add(ctx, input("Bus", "-2", "Transport", "2025-06-01"))
	require.NoError(t, err)
	before := s.All()
	saves := backend.Saves()

	_, err = s.Update(ctx, "txn_missing", input("x", "1", "Other", "2025-06-01"))
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, "txn_missing"), core.ErrNotFound)
	assert.Equal(t, before, s.All())
	assert.Equal(t, saves, backend.Saves())
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	a, _ := s.Add(ctx, input("a", "1", "Other", "2025-06-01"))
	b, _ := s.Add(ctx, input("b", "2", "Other", "2025-06-01"))

	require.NoError(t, s.Delete(ctx, a.ID))

	_, ok := s.Get(a.ID)
	assert.False(t, ok)
	all := s.All()
	require.Len(t, all, 1)
	assert.Equal(t, b.ID, all[0].ID)
}

func TestAllReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	_, err := s.Add(ctx, input("a", "1", "Other", "2025-06-01"))
	require.NoError(t, err)

	all := s.All()
	all[0].Description = "mutated"
	assert.Equal(t, "a", s.All()[0].Description)
}

func TestSetTransactionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, backend, _ := newTestStore(t)
	for _, d := range []string{"one", "two", "three"} {
		_, err := s.Add(ctx, input(d, "1", "Other", "2025-06-01"))
		require.NoError(t, err)
	}
	before := s.All()

	require.NoError(t, s.SetTransactions(ctx, s.All()))
	assert.Equal(t, before, s.All())

	stored, err := backend.LoadTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, stored)
}

func TestSetTransactionsRejectsBadIDs(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	a := core.Transaction{ID: "txn_a", Description: "a", Amount: decimal.NewFromInt(1), Category: core.Other, Date: core.NewDate(2025, 6, 1)}

	err := s.SetTransactions(ctx, []core.Transaction{a, a})
	assert.ErrorIs(t, err, ErrDuplicateID)

	blank := a
	blank.ID = ""
	err = s.SetTransactions(ctx, []core.Transaction{blank})
	assert.ErrorIs(t, err, ErrMissingID)

	assert.Empty(t, s.All())
}

func TestInitializeDropsBadStoredRecords(t *testing.T) {
	a := core.Transaction{ID: "txn_a", Description: "a", Amount: decimal.NewFromInt(1), Category: core.Other, Date: core.NewDate(2025, 6, 1)}
	b := a
	b.Description = "dup"
	blank := a
	blank.ID = ""

	s, _, _ := newTestStore(t, a, b, blank)

	all := s.All()
	require.Len(t, all, 1)
	assert.Equal(t, "a", all[0].Description)
}

func TestReinitializeReloads(t *testing.T) {
	ctx := context.Background()
	s, backend, _ := newTestStore(t)
	_, err := s.Add(ctx, input("a", "1", "Other", "2025-06-01"))
	require.NoError(t, err)
	s.SetEditingID("txn_whatever")

	require.NoError(t, backend.Store.SaveTransactions(ctx, nil))
	require.NoError(t, s.Initialize(ctx))

	assert.Empty(t, s.All())
	_, editing := s.EditingID()
	assert.False(t, editing)
}

func TestInitializeFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	s, backend, _ := newTestStore(t)
	_, err := s.Add(ctx, input("a", "1", "Other", "2025-06-01"))
	require.NoError(t, err)

	backend.failLoad = true
	assert.ErrorIs(t, s.Initialize(ctx), errBackend)
	assert.Equal(t, 1, s.Len())
}

func TestPersistenceFailureKeepsChangeAndMarksDirty(t *testing.T) {
	ctx := context.Background()
	s, backend, _ := newTestStore(t)
	backend.failSave = true

	tx, err := s.Add(ctx, input("Lunch", "-12", "Food", "2025-06-10"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotPersisted)
	assert.ErrorIs(t, err, errBackend)
	assert.NotEmpty(t, tx.ID)

	_, ok := s.Get(tx.ID)
	assert.True(t, ok, "change stays applied in memory")
	assert.True(t, s.Dirty())

	_, err = s.UpdateSettings(ctx, core.SetBudgetCap(decimal.NewFromInt(100)))
	assert.ErrorIs(t, err, ErrNotPersisted)

	assert.Error(t, s.Flush(ctx))
	assert.True(t, s.Dirty())

	backend.failSave = false
	require.NoError(t, s.Flush(ctx))
	assert.False(t, s.Dirty())

	stored, err := backend.LoadTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	settings, err := backend.LoadSettings(ctx)
	require.NoError(t, err)
	assert.True(t, settings.BudgetCap.Valid)
}

func TestEditingCursor(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	_, ok := s.EditingID()
	assert.False(t, ok)

	// stale ids are accepted
	s.SetEditingID("txn_stale")
	id, ok := s.EditingID()
	assert.True(t, ok)
	assert.Equal(t, core.TransactionID("txn_stale"), id)
	s.ClearEditingID()
	_, ok = s.EditingID()
	assert.False(t, ok)

	a, _ := s.Add(ctx, input("a", "1", "Other", "2025-06-01"))
	b, _ := s.Add(ctx, input("b", "1", "Other", "2025-06-01"))

	s.SetEditingID(a.ID)
	_, err := s.Update(ctx, a.ID, input("a2", "1", "Other", "2025-06-01"))
	require.NoError(t, err)
	_, ok = s.EditingID()
	assert.False(t, ok, "saving the edited transaction clears the cursor")

	s.SetEditingID(b.ID)
	require.NoError(t, s.Delete(ctx, a.ID))
	id, ok = s.EditingID()
	assert.True(t, ok, "deleting another transaction keeps the cursor")
	assert.Equal(t, b.ID, id)

	require.NoError(t, s.Delete(ctx, b.ID))
	_, ok = s.EditingID()
	assert.False(t, ok)
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	got := s.Settings()
	got.CurrencyRates["EUR"] = decimal.NewFromInt(99)
	assert.True(t, s.Settings().CurrencyRates["EUR"].Equal(decimal.RequireFromString("0.85")))

	updated, err := s.UpdateSettings(ctx, core.SetBudgetCap(decimal.NewFromInt(500)))
	require.NoError(t, err)
	assert.True(t, updated.BudgetCap.Decimal.Equal(decimal.NewFromInt(500)))
	assert.Len(t, updated.CurrencyRates, 2, "keys absent from the patch are kept")

	updated, err = s.UpdateSettings(ctx, core.SettingsPatch{
		CurrencyRates: map[string]decimal.Decimal{"CHF": decimal.RequireFromString("0.9")},
	})
	require.NoError(t, err)
	assert.True(t, updated.BudgetCap.Valid)
	assert.Len(t, updated.CurrencyRates, 1, "a present key is replaced wholesale")

	updated, err = s.UpdateSettings(ctx, core.ClearBudgetCap())
	require.NoError(t, err)
	assert.False(t, updated.BudgetCap.Valid)
}
