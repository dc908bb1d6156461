package lobby

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// OddsScale is the fixed-point denominator of Odds.
const OddsScale = 1_000_000

// Odds is a gross payout multiplier in fixed point, scaled by OddsScale.
// 2.5 is stored as 2_500_000.
type Odds int64

var oddsScale = decimal.NewFromInt(OddsScale)

// ParseOdds parses a decimal multiplier such as "2.5".
// Digits beyond the sixth decimal place are truncated.
func ParseOdds(s string) (Odds, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse odds %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("parse odds %q: negative multiplier", s)
	}
	return Odds(d.Mul(oddsScale).Truncate(0).IntPart()), nil
}

// MustParseOdds is like ParseOdds but panics on error.
func MustParseOdds(s string) Odds {
	o, err := ParseOdds(s)
	if err != nil {
		panic(err)
	}
	return o
}

// WholeOdds returns the multiplier n exactly.
func WholeOdds(n int64) Odds {
	return Odds(n * OddsScale)
}

// Apply returns stake multiplied by the odds, truncated toward zero.
// The product is computed exactly, so large stakes do not overflow.
func (o Odds) Apply(stake int64) int64 {
	if o <= 0 || stake <= 0 {
		return 0
	}
	return decimal.NewFromInt(stake).
		Mul(decimal.New(int64(o), -6)).
		Truncate(0).
		IntPart()
}

// Decimal returns the multiplier as a decimal.
func (o Odds) Decimal() decimal.Decimal {
	return decimal.New(int64(o), -6)
}

func (o Odds) String() string {
	return o.Decimal().String()
}
