// ABOUTME: Conversions between display amounts and 18-decimal fixed point integers
// ABOUTME: Amounts are floored from their shortest decimal form; the round trip is not exact for all inputs

package units

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Decimals is the number of fractional digits in the fixed point representation.
const Decimals = 18

var (
	// ErrNegative is returned for amounts below zero.
	ErrNegative = errors.New("amount must not be negative")
	// ErrNotFinite is returned for NaN and infinities.
	ErrNotFinite = errors.New("amount must be finite")
)

var scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// Scale returns a copy of 10^18.
func Scale() *big.Int {
	return new(big.Int).Set(scale)
}

// ToFixed18 returns floor(display * 10^18). display is read as its shortest
// decimal form, so 0.3 yields exactly 3 * 10^17.
func ToFixed18(display float64) (*big.Int, error) {
	if math.IsNaN(display) || math.IsInf(display, 0) {
		return nil, ErrNotFinite
	}
	if display < 0 {
		return nil, ErrNegative
	}

	r, ok := new(big.Rat).SetString(strconv.FormatFloat(display, 'f', -1, 64))
	if !ok {
		return nil, fmt.Errorf("converting %v to a decimal", display)
	}
	r.Mul(r, new(big.Rat).SetInt(scale))

	// Quo truncates toward zero, which is floor for non-negative values.
	return new(big.Int).Quo(r.Num(), r.Denom()), nil
}

// FromFixed18 returns fixed / 10^18 as the nearest float64.
func FromFixed18(fixed *big.Int) float64 {
	if fixed == nil {
		return 0
	}
	f, _ := new(big.Rat).SetFrac(fixed, scale).Float64()
	return f
}

// FormatFixed renders fixed / 10^18 as an exact decimal string with
// trailing zeros removed, e.g. 1500000000000000000 -> "1.5".
func FormatFixed(fixed *big.Int) string {
	if fixed == nil {
		return "0"
	}
	neg := fixed.Sign() < 0
	abs := new(big.Int).Abs(fixed)

	whole, frac := new(big.Int).QuoRem(abs, scale, new(big.Int))
	out := whole.String()
	if frac.Sign() != 0 {
		digits := frac.String()
		digits = strings.Repeat("0", Decimals-len(digits)) + digits
		out += "." + strings.TrimRight(digits, "0")
	}
	if neg {
		out = "-" + out
	}
	return out
}

// ParseDisplay parses a display amount such as "1.25".
func ParseDisplay(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing display amount %q: %w", s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrNotFinite
	}
	if v < 0 {
		return 0, ErrNegative
	}
	return v, nil
}

// ParseFixed parses a base-10 fixed point integer such as "1500000000000000000".
func ParseFixed(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("parsing fixed amount %q: not a base-10 integer", s)
	}
	if v.Sign() < 0 {
		return nil, ErrNegative
	}
	return v, nil
}
