// Package stock defines the Stock Ledger: per-item quantity counters mutated
// only through atomic signed deltas.
package stock

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrItemNotFound is returned for an item without a stock counter.
	ErrItemNotFound = errors.New("stock item not found")
	// ErrInsufficientStock is matched by *InsufficientStockError.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrUnknownPolicy is returned by ParsePolicy.
	ErrUnknownPolicy = errors.New("unknown reservation policy")
)

// InsufficientStockError reports a decrement the counter cannot cover.
type InsufficientStockError struct {
	ItemID    string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s: requested %s, available %s",
		e.ItemID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// Ledger is the only way stock counters change. Implementations apply each
// call atomically per item so concurrent orders touching the same item never
// lose updates.
type Ledger interface {
	// Adjust applies a signed delta and returns the new quantity. A delta
	// that would make the counter negative fails with *InsufficientStockError
	// and changes nothing.
	Adjust(ctx context.Context, itemID string, delta decimal.Decimal) (decimal.Decimal, error)
	// Reserve decrements up to requested, never below zero, and returns the
	// amount actually reserved.
	Reserve(ctx context.Context, itemID string, requested decimal.Decimal) (decimal.Decimal, error)
	Available(ctx context.Context, itemID string) (decimal.Decimal, error)
}

// ReservationPolicy decides what order creation does when stock runs short.
type ReservationPolicy string

const (
	// PolicyPartial reserves what is available and leaves the shortfall to
	// the courier adjustment at collection.
	PolicyPartial ReservationPolicy = "partial"
	// PolicyStrict rejects the order with ErrInsufficientStock.
	PolicyStrict ReservationPolicy = "strict"
)

// ParsePolicy converts a config value. Empty means PolicyPartial.
func ParsePolicy(s string) (ReservationPolicy, error) {
	switch p := ReservationPolicy(s); p {
	case "":
		return PolicyPartial, nil
	case PolicyPartial, PolicyStrict:
		return p, nil
	}
	return "", errors.Wrapf(ErrUnknownPolicy, "%q", s)
}

// Reserve reserves qty of itemID under the policy. Under PolicyStrict a
// shortfall returns *InsufficientStockError; the caller's transaction must
// roll back whatever was reserved.
func (p ReservationPolicy) Reserve(ctx context.Context, l Ledger, itemID string, qty decimal.Decimal) (decimal.Decimal, error) {
	reserved, err := l.Reserve(ctx, itemID, qty)
	if err != nil {
		return decimal.Zero, err
	}
	if p == PolicyStrict && reserved.LessThan(qty) {
		return reserved, &InsufficientStockError{ItemID: itemID, Requested: qty, Available: reserved}
	}
	return reserved, nil
}
