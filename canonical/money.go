/*
money.go - Fixed-point parsing of source currency and percentage strings

PURPOSE:
  Source exports format numbers every way imaginable: "$1,234.50",
  "1,234.50", "(250.00)" for negatives, "7.0%" and the European "7,0%"
  for rates. All of them must land in decimal.Decimal with no float in
  between, and anything that is NOT a number must be a parse failure,
  never a silent zero.

SEE ALSO:
  - normalize: maps parse failures here to NormalizeError(BadNumeric)
*/
package canonical

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrEmptyNumeric distinguishes a blank cell from a malformed one.
// Callers decide whether blank means "missing field" or "bad numeric".
var ErrEmptyNumeric = errors.New("empty numeric value")

// ParseMoney converts a source currency string into a fixed-point decimal.
// Handles currency symbols, thousand separators, surrounding whitespace,
// and accounting-style parentheses for negative amounts.
func ParseMoney(s string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" {
		return decimal.Zero, ErrEmptyNumeric
	}

	negative := false
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		negative = true
		cleaned = cleaned[1 : len(cleaned)-1]
	}

	cleaned = strings.ReplaceAll(cleaned, "$", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return decimal.Zero, ErrEmptyNumeric
	}
	if strings.HasPrefix(cleaned, "-") {
		negative = !negative
		cleaned = cleaned[1:]
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, err
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// ParsePercent converts a rate string into a decimal factor:
// "7.0%" -> 0.07. The comma-decimal form "7,0%" that one source
// produces is accepted as well. Values without a trailing '%' are
// treated as already being factors ("0.07" -> 0.07).
func ParsePercent(s string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" {
		return decimal.Zero, ErrEmptyNumeric
	}

	isPercent := strings.HasSuffix(cleaned, "%")
	cleaned = strings.TrimSuffix(cleaned, "%")
	// Comma-decimal only appears in percent notation ("7,0%"); a comma
	// in a plain number is a thousand separator handled by ParseMoney.
	if isPercent {
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}
	cleaned = strings.TrimSpace(cleaned)

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, err
	}
	if isPercent {
		d = d.Div(decimal.NewFromInt(100))
	}
	return d, nil
}
