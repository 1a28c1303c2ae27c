package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/recycle-market/internal/domain/i18n"
	"github.com/xenking/recycle-market/internal/domain/measure"
)

// Line is a selected item with the catalog data captured when it was added.
type Line struct {
	ItemID   string
	Name     i18n.Text
	Category i18n.Text
	// Price is the unit price at the time of adding. Buyer carts carry the
	// marked-up price.
	Price    decimal.Decimal
	Points   decimal.Decimal
	Unit     measure.Unit
	Quantity decimal.Decimal
	Image    string
	AddedAt  time.Time
}

// Cart is the mutable pre-order container of one user or anonymous session.
type Cart struct {
	Owner string
	Lines []Line
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Lines) == 0
}

// Line returns the line for itemID.
func (c *Cart) Line(itemID string) (Line, bool) {
	for _, l := range c.Lines {
		if l.ItemID == itemID {
			return l, true
		}
	}
	return Line{}, false
}

// Subtotal is the sum of price × quantity over all lines.
func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range c.Lines {
		sum = sum.Add(l.Price.Mul(l.Quantity))
	}
	return sum
}

// LineError reports an invalid line.
type LineError struct {
	ItemID string
	Err    error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("cart line %s: %v", e.ItemID, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Store persists carts. An empty cart is returned for unknown owners.
type Store interface {
	Get(ctx context.Context, owner string) (*Cart, error)
	Put(ctx context.Context, owner string, line Line) error
	Remove(ctx context.Context, owner, itemID string) error
	Clear(ctx context.Context, owner string) error
}
