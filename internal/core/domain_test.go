package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"2025-01-01", true},
		{"2025-12-31", true},
		{"2024-02-29", true},
		{" 2025-03-04 ", true},
		{"2025-02-30", false},
		{"2025-13-01", false},
		{"2025-1-1", false},
		{"01/02/2025", false},
		{"2025-01-01T10:00:00Z", false},
		{"", false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			d, err := ParseDate(tc.in)
			if !tc.ok {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidDate))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, d.String(), d.Format(DateLayout))
		})
	}
}

func TestDateArithmetic(t *testing.T) {
	d := NewDate(2025, 3, 1)
	assert.Equal(t, "2025-02-22", d.AddDays(-7).String())
	assert.True(t, d.AddDays(-1).Before(d))
	assert.True(t, d.AddDays(1).After(d))
	assert.True(t, d.Equal(MustParseDate("2025-03-01")))

	now := time.Date(2025, 3, 1, 23, 59, 0, 0, time.FixedZone("X", 3600))
	assert.Equal(t, "2025-03-01", Today(now).String())
}

func TestDateJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		D Date `json:"d"`
	}{D: NewDate(2025, 7, 4)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"2025-07-04"}`, string(b))

	var out struct {
		D Date `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"d":"2025-07-04"}`), &out))
	assert.True(t, out.D.Equal(NewDate(2025, 7, 4)))

	err = json.Unmarshal([]byte(`{"d":"July 4th"}`), &out)
	require.Error(t, err)
}

func TestTransactionInputRoundTrip(t *testing.T) {
	tx := Transaction{
		ID:          "txn_1",
		Description: "Coffee",
		Amount:      decimal.RequireFromString("-3.5"),
		Category:    Food,
		Date:        NewDate(2025, 1, 2),
	}
	in := tx.Input()
	assert.Equal(t, TransactionInput{Description: "Coffee", Amount: "-3.5", Category: "Food", Date: "2025-01-02"}, in)

	padded := TransactionInput{Description: "  a ", Amount: " 1 ", Category: " Food", Date: "2025-01-02 "}
	assert.Equal(t, TransactionInput{Description: "a", Amount: "1", Category: "Food", Date: "2025-01-02"}, padded.Trimmed())
}

func TestCategorySet(t *testing.T) {
	s := ParseCategories([]string{"Food", " Rent ", "", "Food"})
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []Category{"Food", "Rent"}, s.List())
	assert.True(t, s.Contains("Rent"))
	assert.False(t, s.Contains("food"))

	assert.True(t, DefaultCategories().Contains(Entertainment))
}

func TestSettingsMerge(t *testing.T) {
	base := DefaultSettings()
	assert.False(t, base.BudgetCap.Valid)

	capped := base.Merge(SetBudgetCap(decimal.NewFromInt(100)))
	require.True(t, capped.BudgetCap.Valid)
	assert.True(t, capped.BudgetCap.Decimal.Equal(decimal.NewFromInt(100)))
	// rates untouched by a cap-only patch
	assert.Len(t, capped.CurrencyRates, 2)

	rates := capped.Merge(SettingsPatch{CurrencyRates: map[string]decimal.Decimal{"USD": decimal.NewFromInt(1)}})
	assert.True(t, rates.BudgetCap.Valid)
	assert.Equal(t, []string{"USD"}, keys(rates.CurrencyRates))

	cleared := rates.Merge(ClearBudgetCap())
	assert.False(t, cleared.BudgetCap.Valid)

	// the merge never aliases the receiver's map
	clone := base.Clone()
	clone.CurrencyRates["EUR"] = decimal.Zero
	assert.False(t, base.CurrencyRates["EUR"].IsZero())

	assert.True(t, SettingsPatch{}.IsEmpty())
}

func keys(m map[string]decimal.Decimal) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
