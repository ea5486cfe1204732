package core

import (
	"maps"

	"github.com/shopspring/decimal"
)

// Settings are the process-wide user preferences.
type Settings struct {
	// BudgetCap is the ceiling on the net total; Valid=false means no budget.
	BudgetCap decimal.NullDecimal `json:"budgetCap"`
	// CurrencyRates maps a currency code to its exchange rate. Stored only.
	CurrencyRates map[string]decimal.Decimal `json:"currencyRates"`
}

// SettingsPatch is a partial update. A nil field is absent from the patch and
// leaves the current value alone; a non-nil field replaces it wholesale.
type SettingsPatch struct {
	BudgetCap     *decimal.NullDecimal
	CurrencyRates map[string]decimal.Decimal
}

func DefaultSettings() Settings {
	return Settings{
		CurrencyRates: map[string]decimal.Decimal{
			"EUR": decimal.RequireFromString("0.85"),
			"GBP": decimal.RequireFromString("0.73"),
		},
	}
}

// Clone returns a deep copy so callers cannot reach the owner's map.
func (s Settings) Clone() Settings {
	out := Settings{BudgetCap: s.BudgetCap}
	if s.CurrencyRates != nil {
		out.CurrencyRates = maps.Clone(s.CurrencyRates)
	}
	return out
}

// Merge applies the patch as a shallow merge over s and returns the result.
func (s Settings) Merge(p SettingsPatch) Settings {
	out := s.Clone()
	if p.BudgetCap != nil {
		out.BudgetCap = *p.BudgetCap
	}
	if p.CurrencyRates != nil {
		out.CurrencyRates = maps.Clone(p.CurrencyRates)
	}
	return out
}

// IsEmpty reports whether the patch carries no keys.
func (p SettingsPatch) IsEmpty() bool {
	return p.BudgetCap == nil && p.CurrencyRates == nil
}

// SetBudgetCap returns a patch setting the cap to v.
func SetBudgetCap(v decimal.Decimal) SettingsPatch {
	return SettingsPatch{BudgetCap: &decimal.NullDecimal{Decimal: v, Valid: true}}
}

// ClearBudgetCap returns a patch removing the cap.
func ClearBudgetCap() SettingsPatch {
	return SettingsPatch{BudgetCap: &decimal.NullDecimal{}}
}
