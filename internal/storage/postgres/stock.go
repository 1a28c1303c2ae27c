package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/recycle-market/internal/domain/stock"
)

const (
	adjustStockSQL = `UPDATE items SET quantity = quantity + $2, updated_at = now()
		WHERE id = $1 AND quantity + $2 >= 0
		RETURNING quantity`

	// The CTE locks the row so the reserved amount is computed from the same
	// value the update subtracts from.
	reserveStockSQL = `WITH cur AS (
			SELECT id, LEAST($2::numeric, GREATEST(quantity, 0)) AS take
			FROM items WHERE id = $1 FOR UPDATE
		)
		UPDATE items i SET quantity = i.quantity - cur.take, updated_at = now()
		FROM cur WHERE i.id = cur.id
		RETURNING cur.take`

	getStockSQL = `SELECT quantity FROM items WHERE id = $1`
)

var _ stock.Ledger = stockLedger{}

type stockLedger struct {
	q querier
}

func (l stockLedger) Adjust(ctx context.Context, itemID string, delta decimal.Decimal) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := l.q.QueryRow(ctx, adjustStockSQL, itemID, delta).Scan(&qty)
	if err == nil {
		return qty, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("adjusting stock for %q: %w", itemID, err)
	}
	available, err := l.Available(ctx, itemID)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.Zero, &stock.InsufficientStockError{ItemID: itemID, Requested: delta.Neg(), Available: available}
}

func (l stockLedger) Reserve(ctx context.Context, itemID string, requested decimal.Decimal) (decimal.Decimal, error) {
	if !requested.IsPositive() {
		if _, err := l.Available(ctx, itemID); err != nil {
			return decimal.Zero, err
		}
		return decimal.Zero, nil
	}
	var took decimal.Decimal
	if err := l.q.QueryRow(ctx, reserveStockSQL, itemID, requested).Scan(&took); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, errors.Wrapf(stock.ErrItemNotFound, "item %s", itemID)
		}
		return decimal.Zero, fmt.Errorf("reserving stock for %q: %w", itemID, err)
	}
	return took, nil
}

func (l stockLedger) Available(ctx context.Context, itemID string) (decimal.Decimal, error) {
	var qty decimal.Decimal
	if err := l.q.QueryRow(ctx, getStockSQL, itemID).Scan(&qty); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, errors.Wrapf(stock.ErrItemNotFound, "item %s", itemID)
		}
		return decimal.Zero, fmt.Errorf("reading stock for %q: %w", itemID, err)
	}
	return qty, nil
}
