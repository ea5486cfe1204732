// Package core provides the transaction model shared by the store, the
// validator and the analytics.
//
// This file contains the single definition of "a valid number" used by both
// the validator and the store when turning user input into amounts.
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user-typed amount into a signed decimal.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional leading sign. It never coerces: empty or non-numeric input returns
// ErrInvalidAmount instead of zero.
//
// Examples:
//   ParseAmount("12.34")  -> 12.34, nil
//   ParseAmount("-12,34") -> -12.34, nil
//   ParseAmount("abc")    -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	raw := s
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	// Normalize decimal comma to dot
	if strings.Contains(s, ",") {
		if strings.Contains(s, ".") {
			return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
		}
		s = strings.ReplaceAll(s, ",", ".")
	}
	// Reject forms decimal accepts but a user never means, e.g. "1e3".
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.':
		case (r == '-' || r == '+') && i == 0:
		default:
			return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return d, nil
}

// FormatAmount renders an amount with two decimal places for display.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
