package stock

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type fakeLedger struct {
	qty map[string]decimal.Decimal
}

func (f *fakeLedger) Adjust(_ context.Context, itemID string, delta decimal.Decimal) (decimal.Decimal, error) {
	q, ok := f.qty[itemID]
	if !ok {
		return decimal.Zero, ErrItemNotFound
	}
	f.qty[itemID] = q.Add(delta)
	return f.qty[itemID], nil
}

func (f *fakeLedger) Reserve(_ context.Context, itemID string, requested decimal.Decimal) (decimal.Decimal, error) {
	q, ok := f.qty[itemID]
	if !ok {
		return decimal.Zero, ErrItemNotFound
	}
	got := decimal.Min(q, requested)
	f.qty[itemID] = q.Sub(got)
	return got, nil
}

func (f *fakeLedger) Available(_ context.Context, itemID string) (decimal.Decimal, error) {
	return f.qty[itemID], nil
}

// --- Tests ---

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]ReservationPolicy{
		"":        PolicyPartial,
		"partial": PolicyPartial,
		"strict":  PolicyStrict,
	} {
		got, err := ParsePolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParsePolicy("greedy")
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}

func TestPolicyReserve(t *testing.T) {
	ctx := context.Background()
	two := decimal.NewFromInt(2)
	three := decimal.NewFromInt(3)

	t.Run("partial takes what is available", func(t *testing.T) {
		l := &fakeLedger{qty: map[string]decimal.Decimal{"a": two}}
		got, err := PolicyPartial.Reserve(ctx, l, "a", three)
		require.NoError(t, err)
		assert.True(t, got.Equal(two))
		assert.True(t, l.qty["a"].IsZero())
	})

	t.Run("strict rejects a shortfall", func(t *testing.T) {
		l := &fakeLedger{qty: map[string]decimal.Decimal{"a": two}}
		_, err := PolicyStrict.Reserve(ctx, l, "a", three)
		var ise *InsufficientStockError
		require.ErrorAs(t, err, &ise)
		assert.Equal(t, "a", ise.ItemID)
		assert.True(t, ise.Requested.Equal(three))
		assert.True(t, ise.Available.Equal(two))
		assert.ErrorIs(t, err, ErrInsufficientStock)
	})

	t.Run("strict passes when covered", func(t *testing.T) {
		l := &fakeLedger{qty: map[string]decimal.Decimal{"a": three}}
		got, err := PolicyStrict.Reserve(ctx, l, "a", two)
		require.NoError(t, err)
		assert.True(t, got.Equal(two))
	})

	t.Run("unknown item", func(t *testing.T) {
		l := &fakeLedger{qty: map[string]decimal.Decimal{}}
		_, err := PolicyPartial.Reserve(ctx, l, "x", two)
		assert.ErrorIs(t, err, ErrItemNotFound)
	})
}
