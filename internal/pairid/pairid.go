// Package pairid implements the canonical pair-identifier representation,
// per-currency decimal lookup, and fixed-point price formatting shared by
// every pricing and routing component.
package pairid

import (
	"fmt"
	"math/big"
	"strings"
)

const defaultDecimals = 8

// DecimalTable maps a currency ticker to its number of decimals.
type DecimalTable struct {
	decimals map[string]int
}

// NewDecimalTable builds a lookup table from a currency -> decimals map.
func NewDecimalTable(m map[string]int) *DecimalTable {
	t := &DecimalTable{decimals: make(map[string]int, len(m))}
	for k, v := range m {
		t.decimals[strings.ToUpper(k)] = v
	}
	return t
}

// CurrencyDecimals returns the decimals configured for a single currency,
// defaulting to 8 when the currency is unknown.
func (t *DecimalTable) CurrencyDecimals(currency string) int {
	if d, ok := t.decimals[strings.ToUpper(currency)]; ok {
		return d
	}
	return defaultDecimals
}

// PairDecimals returns min(base.decimals, quote.decimals) for a pair id.
func (t *DecimalTable) PairDecimals(pairID string) int {
	base, quote, ok := Split(pairID)
	if !ok {
		return defaultDecimals
	}
	b := t.CurrencyDecimals(base)
	q := t.CurrencyDecimals(quote)
	if b < q {
		return b
	}
	return q
}

// PairID canonicalizes a base/quote currency pair into "BASE/QUOTE".
func PairID(base, quote string) string {
	return strings.ToUpper(base) + "/" + strings.ToUpper(quote)
}

// Split reverses PairID, returning the base and quote tickers.
func Split(pairID string) (base, quote string, ok bool) {
	parts := strings.SplitN(pairID, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// Valid reports whether base and quote are each non-empty, uppercase,
// alphanumeric, and distinct, per the data-model invariant.
func Valid(base, quote string) bool {
	if base == "" || quote == "" || strings.EqualFold(base, quote) {
		return false
	}
	return isUpperAlnum(base) && isUpperAlnum(quote)
}

func isUpperAlnum(s string) bool {
	for _, r := range s {
		isUpper := r >= 'A' && r <= 'Z'
		isDigit := r >= '0' && r <= '9'
		if !isUpper && !isDigit {
			return false
		}
	}
	return true
}

// FormatHex renders an exact decimal price scaled by 10^decimals as a
// "0x"-prefixed big-endian hex string of round(price*10^d). The hex is not
// padded to a fixed width: it has no leading zeros.
func FormatHex(price *big.Rat, decimals int) string {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	scaled := new(big.Rat).Mul(price, new(big.Rat).SetInt(scale))
	rounded := roundRat(scaled)
	return "0x" + rounded.Text(16)
}

// roundRat rounds a rational number to the nearest integer, half away from zero.
func roundRat(r *big.Rat) *big.Int {
	num := new(big.Int).Set(r.Num())
	den := r.Denom()
	if den.Cmp(big.NewInt(1)) == 0 {
		return num
	}
	half := new(big.Int).Mul(den, big.NewInt(2))
	doubled := new(big.Int).Mul(num, big.NewInt(2))
	quo, rem := new(big.Int).QuoRem(doubled, half, new(big.Int))
	if rem.Sign() != 0 {
		// round half away from zero
		absRem := new(big.Int).Abs(rem)
		absHalf := new(big.Int).Abs(half)
		if new(big.Int).Mul(absRem, big.NewInt(2)).Cmp(absHalf) >= 0 {
			if num.Sign() < 0 {
				quo.Sub(quo, big.NewInt(1))
			} else {
				quo.Add(quo, big.NewInt(1))
			}
		}
	}
	return quo
}

// FormatDecimalString renders an exact decimal price at a fixed number of
// digits after the point.
func FormatDecimalString(price *big.Rat, decimals int) string {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	scaled := new(big.Rat).Mul(price, new(big.Rat).SetInt(scale))
	n := roundRat(scaled)
	s := n.String()
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	for len(s) <= decimals {
		s = "0" + s
	}
	if decimals == 0 {
		if neg {
			return "-" + s
		}
		return s
	}
	intPart := s[:len(s)-decimals]
	fracPart := s[len(s)-decimals:]
	out := fmt.Sprintf("%s.%s", intPart, fracPart)
	if neg {
		return "-" + out
	}
	return out
}
