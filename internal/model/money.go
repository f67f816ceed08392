package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// All core arithmetic happens in integer minor currency units (centavos) so
// that folding over thousands of movements never accumulates rounding error.
// decimal.Decimal appears only at the edges: parsing request bodies and
// formatting reports.

// Amount is a money value in minor currency units. Always non-negative in
// stored records; sign is implied by the record kind.
type Amount = int64

// ToMinorUnits converts a decimal amount (major units, e.g. "1234.50") into
// minor units. Values with sub-cent precision are rejected rather than
// rounded — a tender of $10.005 is an input error, not a rounding decision.
func ToMinorUnits(d decimal.Decimal) (Amount, error) {
	shifted := d.Shift(2)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("%w: %s has sub-cent precision", ErrInvalidAmount, d.String())
	}
	return shifted.IntPart(), nil
}

// FromMinorUnits converts minor units back to a decimal in major units.
func FromMinorUnits(a Amount) decimal.Decimal {
	return decimal.New(a, -2)
}
