package memory

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"bilancio/internal/core"
	"bilancio/internal/log"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	s := New(nil, core.DefaultSettings())

	got, err := s.LoadTransactions(ctx)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	txns := []core.Transaction{{ID: "a", Description: "x", Amount: decimal.NewFromInt(1), Category: core.Food, Date: core.NewDate(2025, 1, 1)}}
	require.NoError(t, s.SaveTransactions(ctx, txns))

	// mutating the caller's slice must not leak into the store
	txns[0].Description = "changed"
	got, err = s.LoadTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "x", got[0].Description)

	settings, err := s.LoadSettings(ctx)
	require.NoError(t, err)
	settings.CurrencyRates["EUR"] = decimal.Zero
	reloaded, _ := s.LoadSettings(ctx)
	assert.False(t, reloaded.CurrencyRates["EUR"].IsZero())

	require.NoError(t, s.SaveSettings(ctx, core.DefaultSettings().Merge(core.SetBudgetCap(decimal.NewFromInt(5)))))
	reloaded, _ = s.LoadSettings(ctx)
	assert.True(t, reloaded.BudgetCap.Valid)
	assert.Equal(t, 2, s.Saves())
}

func TestNewFromFilesSeeds(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	// No files -> empty store
	s := NewFromFiles(dir, log.Discard())
	got, _ := s.LoadTransactions(ctx)
	assert.Empty(t, got)

	mustWrite := func(content string) {
		t.Helper()
		require.NoError(t, os.WriteFile(filepath.Join(dir, SeedFile), []byte(content), 0o644))
	}

	mustWrite(`[{"id":"txn_1","description":"Rent","amount":"-900","category":"Housing","date":"2025-05-01"}]`)
	s = NewFromFiles(dir, log.Discard())
	got, _ = s.LoadTransactions(ctx)
	require.Len(t, got, 1)
	assert.Equal(t, core.Housing, got[0].Category)
	assert.True(t, got[0].Amount.Equal(decimal.NewFromInt(-900)))

	mustWrite(`not json`)
	var buf bytes.Buffer
	s = NewFromFiles(dir, log.New(log.Config{Output: &buf}))
	got, _ = s.LoadTransactions(ctx)
	assert.Empty(t, got)
	assert.Contains(t, buf.String(), "Ignoring unreadable seed file")
	assert.Contains(t, buf.String(), "component=persistence")
}
