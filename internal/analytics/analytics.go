// Package analytics folds a transaction list into the dashboard statistics.
package analytics

import (
	"cmp"
	"fmt"
	"slices"

	"bilancio/internal/core"

	"github.com/shopspring/decimal"
)

// NoCategory is reported as the top category of an empty list.
const NoCategory = "None"

// TrailingWindowDays is the look-back used for Stats.Last7Days.
const TrailingWindowDays = 7

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Category core.Category
	Count    int
	Amount   decimal.Decimal
}

// Stats is a compact summary of a transaction list.
type Stats struct {
	TotalCount        int
	TotalAmount       decimal.Decimal
	TopCategory       string
	TopCategoryAmount decimal.Decimal
	Last7Days         decimal.Decimal
	Budget            BudgetStatus
	ByCategory        []CategoryAmount
}

// Compute derives every dashboard figure from txns. today anchors the
// trailing window; settings only contribute the budget cap.
func Compute(txns []core.Transaction, settings core.Settings, today core.Date) Stats {
	total := TotalAmount(txns)
	return Stats{
		TotalCount:        len(txns),
		TotalAmount:       total,
		TopCategory:       TopCategory(txns),
		TopCategoryAmount: TopCategoryAmount(txns),
		Last7Days:         TrailingTotal(txns, today, TrailingWindowDays),
		Budget:            Budget(settings, total),
		ByCategory:        ByCategory(txns),
	}
}

// TotalAmount is the signed (net) sum of every amount.
func TotalAmount(txns []core.Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range txns {
		sum = sum.Add(t.Amount)
	}
	return sum
}

// TopCategory returns the most frequent category. Ties go to the category
// encountered first; an empty list yields NoCategory.
func TopCategory(txns []core.Transaction) string {
	if len(txns) == 0 {
		return NoCategory
	}
	var (
		top    core.Category
		best   int
		counts = map[core.Category]int{}
		order  []core.Category
	)
	for _, t := range txns {
		if _, seen := counts[t.Category]; !seen {
			order = append(order, t.Category)
		}
		counts[t.Category]++
	}
	for _, c := range order {
		if counts[c] > best {
			best = counts[c]
			top = c
		}
	}
	return string(top)
}

// TopCategoryAmount sums the amounts of the current top category.
func TopCategoryAmount(txns []core.Transaction) decimal.Decimal {
	if len(txns) == 0 {
		return decimal.Zero
	}
	top := core.Category(TopCategory(txns))
	sum := decimal.Zero
	for _, t := range txns {
		if t.Category == top {
			sum = sum.Add(t.Amount)
		}
	}
	return sum
}

// TrailingTotal sums transactions dated on or after today minus days.
func TrailingTotal(txns []core.Transaction, today core.Date, days int) decimal.Decimal {
	cutoff := today.AddDays(-days)
	sum := decimal.Zero
	for _, t := range txns {
		if !t.Date.Before(cutoff) {
			sum = sum.Add(t.Amount)
		}
	}
	return sum
}

// ByCategory returns count and sum per category in first-seen order.
func ByCategory(txns []core.Transaction) []CategoryAmount {
	idx := map[core.Category]int{}
	var out []CategoryAmount
	for _, t := range txns {
		i, ok := idx[t.Category]
		if !ok {
			i = len(out)
			idx[t.Category] = i
			out = append(out, CategoryAmount{Category: t.Category, Amount: decimal.Zero})
		}
		out[i].Count++
		out[i].Amount = out[i].Amount.Add(t.Amount)
	}
	return out
}

// SortByDate returns a copy ordered newest first. Transactions sharing a date
// keep their relative order.
func SortByDate(txns []core.Transaction) []core.Transaction {
	out := slices.Clone(txns)
	slices.SortStableFunc(out, func(a, b core.Transaction) int {
		return cmp.Compare(b.Date.Unix(), a.Date.Unix())
	})
	return out
}

// BudgetState classifies the relation between the net total and the cap.
type BudgetState int

const (
	BudgetNotSet BudgetState = iota
	BudgetRemaining
	BudgetOver
)

func (s BudgetState) String() string {
	switch s {
	case BudgetRemaining:
		return "remaining"
	case BudgetOver:
		return "over"
	default:
		return "not set"
	}
}

// BudgetStatus carries the state and the non-negative amount left or overspent.
type BudgetStatus struct {
	State  BudgetState
	Amount decimal.Decimal
}

// Budget compares cap − total: non-negative is remaining, negative is over.
// A cap that is zero or negative counts as not set.
func Budget(settings core.Settings, total decimal.Decimal) BudgetStatus {
	if !settings.BudgetCap.Valid || !settings.BudgetCap.Decimal.IsPositive() {
		return BudgetStatus{State: BudgetNotSet, Amount: decimal.Zero}
	}
	left := settings.BudgetCap.Decimal.Sub(total)
	if left.IsNegative() {
		return BudgetStatus{State: BudgetOver, Amount: left.Abs()}
	}
	return BudgetStatus{State: BudgetRemaining, Amount: left}
}

func (b BudgetStatus) String() string {
	if b.State == BudgetNotSet {
		return b.State.String()
	}
	return fmt.Sprintf("%s %s", b.Amount.String(), b.State)
}
