package memory

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/recycle-market/internal/domain/stock"
)

var _ stock.Ledger = stockLedger{}

type stockLedger struct {
	b binding
}

func (l stockLedger) Adjust(_ context.Context, itemID string, delta decimal.Decimal) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := l.b.do(func(st *state) error {
		it, ok := st.items[itemID]
		if !ok {
			return stock.ErrItemNotFound
		}
		next := it.Stock.Add(delta)
		if next.IsNegative() {
			return &stock.InsufficientStockError{ItemID: itemID, Requested: delta.Neg(), Available: it.Stock}
		}
		it.Stock = next
		st.items[itemID] = it
		out = next
		return nil
	})
	return out, err
}

func (l stockLedger) Reserve(_ context.Context, itemID string, requested decimal.Decimal) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := l.b.do(func(st *state) error {
		it, ok := st.items[itemID]
		if !ok {
			return stock.ErrItemNotFound
		}
		if !requested.IsPositive() {
			return nil
		}
		out = decimal.Min(requested, decimal.Max(it.Stock, decimal.Zero))
		it.Stock = it.Stock.Sub(out)
		st.items[itemID] = it
		return nil
	})
	return out, err
}

func (l stockLedger) Available(_ context.Context, itemID string) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := l.b.do(func(st *state) error {
		it, ok := st.items[itemID]
		if !ok {
			return stock.ErrItemNotFound
		}
		out = it.Stock
		return nil
	})
	return out, err
}
