package canonical_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steppingstone/commission-engine/canonical"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestParseMoney_Formats(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1234.50", "1234.50"},
		{"$1,234.50", "1234.50"},
		{" $ 99 ", "99"},
		{"(500.00)", "-500.00"},
		{"-42", "-42"},
		{"0", "0"},
		{"1,000,000.01", "1000000.01"},
	}

	for _, tc := range cases {
		got, err := canonical.ParseMoney(tc.in)
		require.NoError(t, err, "input %q", tc.in)
		assert.True(t, got.Equal(dec(tc.want)), "input %q: got %s want %s", tc.in, got, tc.want)
	}
}

func TestParseMoney_Empty(t *testing.T) {
	_, err := canonical.ParseMoney("   ")
	require.ErrorIs(t, err, canonical.ErrEmptyNumeric)
}

func TestParseMoney_Garbage(t *testing.T) {
	_, err := canonical.ParseMoney("N/A")
	require.Error(t, err)
}

func TestParsePercent(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"7.0%", "0.07"},
		{"7,0%", "0.07"},
		{"5%", "0.05"},
		{"0.05", "0.05"}, // already a factor
	}

	for _, tc := range cases {
		got, err := canonical.ParsePercent(tc.in)
		require.NoError(t, err, "input %q", tc.in)
		assert.True(t, got.Equal(dec(tc.want)), "input %q: got %s want %s", tc.in, got, tc.want)
	}
}
