// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package burn

import (
	"strings"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// Decimal places of the fixed-point quantities.
const (
	ShareDecimals    uint8 = 12 // shares, pool weights
	RewardDecimals   uint8 = 8  // rewards, prizes, exchange rates
	FractionDecimals uint8 = 18 // random thresholds in [0, 1]
)

// FractionOne is 1.0 expressed with FractionDecimals.
var FractionOne = Pow10(FractionDecimals)

// Pow10 returns 10^n.
func Pow10(n uint8) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(n)))
}

// Units returns whole * 10^decimals.
func Units(whole uint64, decimals uint8) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(whole), Pow10(decimals))
}

// Zero returns a new zero value. Records never hold nil amounts.
func Zero() *uint256.Int {
	return new(uint256.Int)
}

// OrZero returns v, or a new zero when v is nil.
func OrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return Zero()
	}
	return v
}

// Rescale converts v between decimal precisions, rounding down.
func Rescale(v *uint256.Int, from, to uint8) *uint256.Int {
	switch {
	case from == to:
		return new(uint256.Int).Set(v)
	case to > from:
		return new(uint256.Int).Mul(v, Pow10(to-from))
	default:
		return new(uint256.Int).Div(v, Pow10(from-to))
	}
}

// MulDiv returns floor(x * y / d) computed with a 512-bit intermediate.
// A zero divisor or an overflowing result yields zero and false.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, bool) {
	if d.IsZero() {
		return Zero(), false
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return Zero(), false
	}
	return z, true
}

// Min returns a copy of the smaller value.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}

// FormatUnits renders v with the given number of decimals, e.g. 102.40000000.
func FormatUnits(v *uint256.Int, decimals uint8) string {
	s := OrZero(v).Dec()
	if decimals == 0 {
		return s
	}
	if pad := int(decimals) + 1 - len(s); pad > 0 {
		s = strings.Repeat("0", pad) + s
	}
	i := len(s) - int(decimals)
	return s[:i] + "." + s[i:]
}

// ParseUnits parses a decimal string such as "102.4" into a fixed-point value.
// Digits beyond the precision are rejected rather than rounded.
func ParseUnits(s string, decimals uint8) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty amount")
	}
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > int(decimals) {
		return nil, errors.Errorf("too many decimals in %q, max %d", s, decimals)
	}
	if whole == "" {
		whole = "0"
	}
	digits := whole + frac + strings.Repeat("0", int(decimals)-len(frac))
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return Zero(), nil
	}
	v, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, errors.Wrapf(err, "parse amount %q", s)
	}
	return v, nil
}
