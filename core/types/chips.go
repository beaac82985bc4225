package types

import (
	"fmt"
	"strconv"
)

// Chips is the integral chip amount used across all economy accounting.
// Fractional chips do not exist; every balance, escrow, pot and ledger
// amount is a whole number of chips.
type Chips = int64

// MaxChips is the largest representable chip amount.
const MaxChips Chips = 1<<63 - 1

// AddChips returns a+b, failing when the sum overflows int64. Economy
// state must never silently wrap, so every mutation path goes through
// the checked helpers.
func AddChips(a, b Chips) (Chips, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, fmt.Errorf("chips: add overflow: %d + %d", a, b)
	}
	return sum, nil
}

// SubChips returns a-b with the same overflow discipline as AddChips.
func SubChips(a, b Chips) (Chips, error) {
	diff := a - b
	if (b > 0 && diff > a) || (b < 0 && diff < a) {
		return 0, fmt.Errorf("chips: sub overflow: %d - %d", a, b)
	}
	return diff, nil
}

// MulChips returns a*b, failing on overflow.
func MulChips(a, b Chips) (Chips, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	prod := a * b
	if prod/b != a {
		return 0, fmt.Errorf("chips: mul overflow: %d * %d", a, b)
	}
	return prod, nil
}

// MulDivChips computes floor(a*num/den) without intermediate overflow
// for the magnitudes settlement uses (payout scaling, rake percentages).
// den must be positive.
func MulDivChips(a, num, den Chips) (Chips, error) {
	if den <= 0 {
		return 0, fmt.Errorf("chips: muldiv by non-positive denominator %d", den)
	}
	prod, err := MulChips(a, num)
	if err != nil {
		return 0, err
	}
	q := prod / den
	// Go truncates toward zero; chip arithmetic floors.
	if (prod%den != 0) && ((prod < 0) != (den < 0)) {
		q--
	}
	return q, nil
}

// FormatChips renders a chip amount for error details and event
// attributes.
func FormatChips(v Chips) string {
	return strconv.FormatInt(v, 10)
}

// MinChips returns the smaller of a and b.
func MinChips(a, b Chips) Chips {
	if a < b {
		return a
	}
	return b
}
