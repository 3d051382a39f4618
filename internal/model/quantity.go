package model

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// DefaultDecimals is the fixed-point precision of most on-chain amounts.
const DefaultDecimals int32 = 18

// Quantity is an on-chain integer amount together with its fixed-point precision.
type Quantity struct {
	Raw      *big.Int
	Decimals int32
}

// NewQuantity copies raw so the caller may keep mutating its own value.
func NewQuantity(raw *big.Int, decimals int32) Quantity {
	if raw == nil {
		raw = new(big.Int)
	}
	return Quantity{Raw: new(big.Int).Set(raw), Decimals: decimals}
}

// Decimal returns the exact scaled value raw / 10^decimals.
func (q Quantity) Decimal() decimal.Decimal {
	if q.Raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(q.Raw, -q.Decimals)
}

// Scaled is the floating view used for arithmetic and comparisons.
func (q Quantity) Scaled() float64 {
	return q.Decimal().InexactFloat64()
}

// Format renders the scaled value with a fixed number of fractional digits.
func (q Quantity) Format(places int32) string {
	return q.Decimal().StringFixed(places)
}

// IsPositive reports whether the raw amount is strictly greater than zero.
func (q Quantity) IsPositive() bool {
	return q.Raw != nil && q.Raw.Sign() > 0
}

func (q Quantity) String() string {
	if q.Raw == nil {
		return "0"
	}
	return q.Raw.String()
}

type quantityJSON struct {
	Raw      string `json:"raw"`
	Value    string `json:"value"`
	Decimals int32  `json:"decimals"`
}

// MarshalJSON keeps the exact integer next to its scaled rendering.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(quantityJSON{Raw: q.String(), Value: q.Decimal().String(), Decimals: q.Decimals})
}

// Grouped renders the value with fixed places and comma thousands separators.
func (q Quantity) Grouped(places int32) string {
	return GroupThousands(q.Format(places))
}

// GroupThousands inserts comma separators into the integer part of a decimal string.
func GroupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		sign, s = s[:1], s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}
	n, ok := new(big.Int).SetString(intPart, 10)
	if !ok {
		return sign + s
	}
	return sign + humanize.BigComma(n) + frac
}
