// Package amount converts between raw fixed-point on-chain integers and
// display decimal strings. Conversions are exact: formatting a raw value and
// parsing the result back always yields the original integer.
package amount

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"liquidityHub/internal/model"
)

// amountTextPattern is the grammar accepted by amount input fields: optional
// integer digits, optionally followed by a dot and up to three fraction
// digits. The empty string is valid (cleared input).
var amountTextPattern = regexp.MustCompile(`^((\d+)?(\.\d{0,3})?)$`)

// ValidAmountText reports whether text matches the amount input grammar.
func ValidAmountText(text string) bool {
	return amountTextPattern.MatchString(text)
}

// Format renders a raw integer with the given number of decimals as a decimal
// string, trimming trailing fraction zeros.
func Format(raw *big.Int, decimals uint8) string {
	if raw == nil {
		return "0"
	}
	if decimals == 0 {
		return raw.String()
	}

	sign := ""
	abs := new(big.Int).Abs(raw)
	if raw.Sign() < 0 {
		sign = "-"
	}

	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	text := new(big.Rat).SetFrac(abs, denom).FloatString(int(decimals))
	text = strings.TrimRight(text, "0")
	text = strings.TrimRight(text, ".")
	if text == "" {
		text = "0"
	}
	return sign + text
}

// Parse converts a decimal string back to the raw integer representation.
// The fraction may not exceed the token's decimals.
func Parse(text string, decimals uint8) (*big.Int, error) {
	text = strings.TrimSpace(text)
	if text == "" || text == "." {
		return nil, fmt.Errorf("parse amount %q: %w", text, model.InvalidInput)
	}

	intPart := text
	fracPart := ""
	if idx := strings.IndexByte(text, '.'); idx >= 0 {
		intPart = text[:idx]
		fracPart = text[idx+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	if !isDigits(intPart) || (fracPart != "" && !isDigits(fracPart)) {
		return nil, fmt.Errorf("parse amount %q: %w", text, model.InvalidInput)
	}
	if len(fracPart) > int(decimals) {
		return nil, fmt.Errorf("parse amount %q: fraction exceeds %d decimals: %w", text, decimals, model.InvalidInput)
	}

	fracPart += strings.Repeat("0", int(decimals)-len(fracPart))
	raw, ok := new(big.Int).SetString(intPart+fracPart, 10)
	if !ok {
		return nil, fmt.Errorf("parse amount %q: %w", text, model.InvalidInput)
	}
	return raw, nil
}

// ToDecimal converts a raw integer to an exact decimal value.
func ToDecimal(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// TruncateText truncates a decimal value toward zero to three fraction digits
// and renders it, mirroring how slider-derived amounts are displayed.
func TruncateText(value decimal.Decimal) string {
	return value.Truncate(3).String()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
