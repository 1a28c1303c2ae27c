package rewards

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/recycle-market/internal/domain/auth"
	"github.com/xenking/recycle-market/internal/domain/ledger"
	"github.com/xenking/recycle-market/internal/storage"
	"github.com/xenking/recycle-market/internal/storage/memory"
)

// --- Helpers ---

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func credit(t *testing.T, store *memory.Store, userID string, typ ledger.EntryType, amount string) {
	t.Helper()
	e, err := ledger.NewEntry(ledger.Draft{UserID: userID, Type: typ, Amount: dec(amount), Reason: "seed"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.WithTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return tx.Ledger().Append(ctx, e)
	}))
}

func newService(store *memory.Store) *Service {
	return NewService(store, store.Ledger(), dec("0.1"), storage.RetryPolicy{Initial: time.Millisecond})
}

var customer = auth.Actor{ID: "u1", Role: auth.RoleCustomer}

// --- Tests ---

func TestRedeemPoints(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	credit(t, store, customer.ID, ledger.TypeEarned, "15")
	svc := newService(store)

	r, err := svc.RedeemPoints(ctx, customer, dec("10"))
	require.NoError(t, err)
	assert.True(t, r.Points.Amount.Equal(dec("-10")))
	assert.True(t, r.Cashback.Amount.Equal(dec("1")))
	assert.Equal(t, ledger.BookWallet, r.Cashback.Book)

	b, err := svc.Balances(ctx, customer.ID)
	require.NoError(t, err)
	assert.True(t, b.Points.Equal(dec("5")), "points %s", b.Points)
	assert.True(t, b.Wallet.Equal(dec("1")), "wallet %s", b.Wallet)

	history, err := svc.History(ctx, customer.ID, ledger.BookPoints)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ledger.TypeDeducted, history[1].Type)
}

func TestRedeemPointsRejections(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	credit(t, store, customer.ID, ledger.TypeEarned, "5")
	svc := newService(store)

	_, err := svc.RedeemPoints(ctx, customer, dec("6"))
	var ib *ledger.InsufficientBalanceError
	require.ErrorAs(t, err, &ib)
	assert.True(t, ib.Balance.Equal(dec("5")))
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	_, err = svc.RedeemPoints(ctx, customer, dec("1.5"))
	assert.ErrorIs(t, err, ErrWholePoints)

	_, err = svc.RedeemPoints(ctx, customer, dec("0"))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	// Nothing was written by the failed attempts.
	b, err := svc.Balances(ctx, customer.ID)
	require.NoError(t, err)
	assert.True(t, b.Points.Equal(dec("5")))
	assert.True(t, b.Wallet.IsZero())
	wallet, err := svc.History(ctx, customer.ID, ledger.BookWallet)
	require.NoError(t, err)
	assert.Empty(t, wallet)
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	credit(t, store, customer.ID, ledger.TypeCashback, "20")
	svc := newService(store)

	_, err := svc.Withdraw(ctx, customer, dec("5"), "")
	assert.ErrorIs(t, err, ErrGatewayRequired)

	_, err = svc.Withdraw(ctx, customer, dec("-5"), "paymob")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	e, err := svc.Withdraw(ctx, customer, dec("12.5"), "paymob")
	require.NoError(t, err)
	assert.Equal(t, "paymob", e.Gateway)
	assert.True(t, e.Amount.Equal(dec("-12.5")))

	_, err = svc.Withdraw(ctx, customer, dec("8"), "paymob")
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	b, err := svc.Balances(ctx, customer.ID)
	require.NoError(t, err)
	assert.True(t, b.Wallet.Equal(dec("7.5")), "wallet %s", b.Wallet)
}

func TestReconcilerRepairsDrift(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	credit(t, store, "u1", ledger.TypeEarned, "15")
	credit(t, store, "u2", ledger.TypeEarned, "3")
	credit(t, store, "u2", ledger.TypeCashback, "4.5")

	drifted := ledger.Account{Book: ledger.BookPoints, UserID: "u2"}
	require.NoError(t, store.Ledger().SetBalance(ctx, drifted, dec("99")))

	r := NewReconciler(store, store.Ledger(), zaptest.NewLogger(t), 2)
	rep, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Checked: 3, Repaired: 1}, rep)

	bal, err := store.Ledger().Balance(ctx, ledger.BookPoints, "u2")
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("3")), "balance %s", bal)

	rep, err = r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Repaired)
}

func TestReconcilerLoopStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := memory.New()
	r := NewReconciler(store, store.Ledger(), zaptest.NewLogger(t), 0)

	done := make(chan error, 1)
	go func() { done <- r.Loop(ctx, time.Millisecond) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}
