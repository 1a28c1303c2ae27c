package memory

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/recycle-market/internal/domain/catalog"
	"github.com/xenking/recycle-market/internal/domain/i18n"
	"github.com/xenking/recycle-market/internal/domain/ledger"
	"github.com/xenking/recycle-market/internal/domain/notification"
	"github.com/xenking/recycle-market/internal/domain/stock"
	"github.com/xenking/recycle-market/internal/storage"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.PutItem(catalog.Item{ID: "bottle", Stock: dec("10")})

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := tx.Stock().Adjust(ctx, "bottle", dec("-4")); err != nil {
			return err
		}
		e, err := ledger.NewEntry(ledger.Draft{UserID: "u1", Type: ledger.TypeEarned, Amount: dec("3")}, time.Now())
		if err != nil {
			return err
		}
		if err := tx.Ledger().Append(ctx, e); err != nil {
			return err
		}
		n := notification.New("u1", notification.TypeOrderCreated, i18n.New("Created", "تم"), i18n.Text{}, "", nil, time.Now())
		if err := tx.Outbox().Enqueue(ctx, n); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	qty, err := s.Stock().Available(ctx, "bottle")
	require.NoError(t, err)
	assert.True(t, qty.Equal(dec("10")))

	bal, err := s.Ledger().Balance(ctx, ledger.BookPoints, "u1")
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	pending, err := s.Notifications().Pending(ctx, time.Now().Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStockLedger(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.PutItem(catalog.Item{ID: "can", Stock: dec("1.5")})
	l := s.Stock()

	got, err := l.Reserve(ctx, "can", dec("2"))
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("1.5")))

	got, err = l.Reserve(ctx, "can", dec("1"))
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = l.Adjust(ctx, "can", dec("-0.25"))
	var ise *stock.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.True(t, ise.Available.IsZero())

	qty, err := l.Adjust(ctx, "can", dec("0.5"))
	require.NoError(t, err)
	assert.True(t, qty.Equal(dec("0.5")))

	_, err = l.Adjust(ctx, "missing", dec("1"))
	assert.ErrorIs(t, err, stock.ErrItemNotFound)
}

func TestLedgerDeduct(t *testing.T) {
	ctx := context.Background()
	s := New()
	l := s.Ledger()
	now := time.Now()

	earn, err := ledger.NewEntry(ledger.Draft{UserID: "u1", Type: ledger.TypeEarned, Amount: dec("5")}, now)
	require.NoError(t, err)
	require.NoError(t, l.Append(ctx, earn))

	spend, err := ledger.NewEntry(ledger.Draft{UserID: "u1", Type: ledger.TypeDeducted, Amount: dec("6")}, now)
	require.NoError(t, err)
	err = l.Deduct(ctx, spend)
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	entries, err := l.Entries(ctx, ledger.BookPoints, "u1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	spend, err = ledger.NewEntry(ledger.Draft{UserID: "u1", Type: ledger.TypeDeducted, Amount: dec("5")}, now)
	require.NoError(t, err)
	require.NoError(t, l.Deduct(ctx, spend))

	bal, err := l.Balance(ctx, ledger.BookPoints, "u1")
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}
