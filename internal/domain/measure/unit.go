// Package measure defines how catalog quantities are measured and validated.
package measure

import (
	"fmt"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Unit is either Weight or Count. The zero value is invalid.
type Unit struct {
	kind kind
}

type kind uint8

const (
	kindInvalid kind = iota
	kindWeight
	kindCount
)

var (
	// Weight measures in kilograms, in steps of WeightStep.
	Weight = Unit{kind: kindWeight}
	// Count measures whole pieces.
	Count = Unit{kind: kindCount}
)

// WeightStep is the smallest weight increment a line can carry.
var WeightStep = decimal.RequireFromString("0.25")

// ErrUnknownUnit is returned when parsing an unrecognised unit code.
var ErrUnknownUnit = errors.New("unknown measurement unit")

// QuantityError describes a quantity that violates its unit's rule.
type QuantityError struct {
	Unit     Unit
	Quantity decimal.Decimal
}

func (e *QuantityError) Error() string {
	switch e.Unit {
	case Weight:
		return fmt.Sprintf("weight quantity %s must be a positive multiple of %s", e.Quantity, WeightStep)
	case Count:
		return fmt.Sprintf("count quantity %s must be a positive integer", e.Quantity)
	default:
		return fmt.Sprintf("quantity %s has no valid unit", e.Quantity)
	}
}

// Parse accepts the storage codes "kg" and "piece" as well as the numeric
// codes 1 (weight) and 2 (count) still sent by older clients.
func Parse(code string) (Unit, error) {
	switch code {
	case "kg", "1":
		return Weight, nil
	case "piece", "2":
		return Count, nil
	}
	if n, err := strconv.Atoi(code); err == nil {
		return Unit{}, errors.Wrapf(ErrUnknownUnit, "code %d", n)
	}
	return Unit{}, errors.Wrapf(ErrUnknownUnit, "code %q", code)
}

// MustParse is Parse for trusted constants.
func MustParse(code string) Unit {
	u, err := Parse(code)
	if err != nil {
		panic(err)
	}
	return u
}

// String returns the storage code of the unit.
func (u Unit) String() string {
	switch u.kind {
	case kindWeight:
		return "kg"
	case kindCount:
		return "piece"
	default:
		return "invalid"
	}
}

// IsValid reports whether u is Weight or Count.
func (u Unit) IsValid() bool {
	return u.kind == kindWeight || u.kind == kindCount
}

// Validate checks a quantity being ordered: it must be strictly positive and
// respect the unit's granularity.
func (u Unit) Validate(q decimal.Decimal) error {
	if !q.IsPositive() || !u.granular(q) {
		return &QuantityError{Unit: u, Quantity: q}
	}
	return nil
}

// ValidateCollected checks a quantity reported by a courier at pickup. Zero is
// allowed since nothing may have been handed over for a line.
func (u Unit) ValidateCollected(q decimal.Decimal) error {
	if q.IsNegative() || !u.granular(q) {
		return &QuantityError{Unit: u, Quantity: q}
	}
	return nil
}

func (u Unit) granular(q decimal.Decimal) bool {
	switch u.kind {
	case kindWeight:
		return q.Mod(WeightStep).IsZero()
	case kindCount:
		return q.Equal(q.Truncate(0))
	default:
		return false
	}
}
