package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{" 2.50 ", "2.5", true},
		{"-5", "-5", true},
		{"+7.5", "7.5", true},
		{"0", "0", true},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"1,000.50", "", false},
		{"1e3", "", false},
		{"NaN", "", false},
		{"Infinity", "", false},
		{"--1", "", false},
		{"", "", false},
		{"   ", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseAmount(tc.in)
			if !tc.ok {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidAmount))
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tc.out)), "got %s want %s", got, tc.out)
		})
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "12.30", FormatAmount(decimal.RequireFromString("12.3")))
	assert.Equal(t, "-5.00", FormatAmount(decimal.NewFromInt(-5)))
}
