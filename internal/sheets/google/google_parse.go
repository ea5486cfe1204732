package google

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"bilancio/internal/core"

	"github.com/shopspring/decimal"
)

const timestampLayout = time.RFC3339Nano

var transactionHeader = []string{"ID", "Date", "Description", "Category", "Amount", "Created At", "Updated At"}

const (
	settingBudgetCap  = "budget_cap"
	settingRatePrefix = "rate:"
)

// parseTransactions converts a values matrix (as returned by the Sheets API)
// into transactions. Columns are located by header name so they may be
// reordered in the sheet. Rows that do not decode are skipped and counted.
func parseTransactions(values [][]interface{}) ([]core.Transaction, int, error) {
	out := []core.Transaction{}
	if len(values) == 0 {
		return out, 0, nil
	}
	headers := toStrings(values[0])
	cols := make([]int, len(transactionHeader))
	var missing []string
	for i, h := range transactionHeader {
		cols[i] = indexOf(headers, h)
		if cols[i] == -1 {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		return out, len(values) - 1, fmt.Errorf("unexpected transactions header: missing %s; got headers=%v", strings.Join(missing, ","), headers)
	}

	skipped := 0
	for _, raw := range values[1:] {
		row := toStrings(raw)
		if isBlank(row) {
			continue
		}
		t, err := decodeTransaction(
			safeGet(row, cols[0]), safeGet(row, cols[1]), safeGet(row, cols[2]), safeGet(row, cols[3]),
			safeGet(row, cols[4]), safeGet(row, cols[5]), safeGet(row, cols[6]),
		)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, t)
	}
	return out, skipped, nil
}

func decodeTransaction(id, date, desc, category, amount, created, updated string) (core.Transaction, error) {
	if id == "" {
		return core.Transaction{}, fmt.Errorf("empty id")
	}
	amt, err := core.ParseAmount(amount)
	if err != nil {
		return core.Transaction{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, err
	}
	createdAt, err := time.Parse(timestampLayout, created)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("created at: %w", err)
	}
	updatedAt, err := time.Parse(timestampLayout, updated)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("updated at: %w", err)
	}
	return core.Transaction{
		ID:          core.TransactionID(id),
		Description: desc,
		Amount:      amt,
		Category:    core.Category(category),
		Date:        d,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

// formatTransactions is the inverse of parseTransactions: a header row plus
// one row per transaction, every cell a string so RAW input keeps it intact.
func formatTransactions(txns []core.Transaction) [][]interface{} {
	rows := make([][]interface{}, 0, len(txns)+1)
	header := make([]interface{}, len(transactionHeader))
	for i, h := range transactionHeader {
		header[i] = h
	}
	rows = append(rows, header)
	for _, t := range txns {
		rows = append(rows, []interface{}{
			t.ID.String(),
			t.Date.String(),
			t.Description,
			t.Category.String(),
			t.Amount.String(),
			t.CreatedAt.UTC().Format(timestampLayout),
			t.UpdatedAt.UTC().Format(timestampLayout),
		})
	}
	return rows
}

// parseSettings reads key/value rows. Unknown keys and bad values are
// ignored; a tab without any rate rows keeps the default rates.
func parseSettings(values [][]interface{}) core.Settings {
	settings := core.DefaultSettings()
	rates := map[string]decimal.Decimal{}
	for _, raw := range values {
		row := toStrings(raw)
		key, value := safeGet(row, 0), safeGet(row, 1)
		switch {
		case strings.EqualFold(key, settingBudgetCap):
			if value == "" {
				continue
			}
			if limit, err := core.ParseAmount(value); err == nil {
				settings.BudgetCap = decimal.NullDecimal{Decimal: limit, Valid: true}
			}
		case strings.HasPrefix(strings.ToLower(key), settingRatePrefix):
			code := strings.ToUpper(strings.TrimSpace(key[len(settingRatePrefix):]))
			if rate, err := core.ParseAmount(value); err == nil && code != "" {
				rates[code] = rate
			}
		}
	}
	if len(rates) > 0 {
		settings.CurrencyRates = rates
	}
	return settings
}

func formatSettings(s core.Settings) [][]interface{} {
	capValue := ""
	if s.BudgetCap.Valid {
		capValue = s.BudgetCap.Decimal.String()
	}
	rows := [][]interface{}{
		{"Key", "Value"},
		{settingBudgetCap, capValue},
	}
	codes := make([]string, 0, len(s.CurrencyRates))
	for code := range s.CurrencyRates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		rows = append(rows, []interface{}{settingRatePrefix + code, s.CurrencyRates[code].String()})
	}
	return rows
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

func isBlank(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}
