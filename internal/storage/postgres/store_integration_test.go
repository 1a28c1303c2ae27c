//go:build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/recycle-market/internal/domain/auth"
	"github.com/xenking/recycle-market/internal/domain/cart"
	"github.com/xenking/recycle-market/internal/domain/catalog"
	"github.com/xenking/recycle-market/internal/domain/i18n"
	"github.com/xenking/recycle-market/internal/domain/ledger"
	"github.com/xenking/recycle-market/internal/domain/measure"
	"github.com/xenking/recycle-market/internal/domain/notification"
	"github.com/xenking/recycle-market/internal/domain/order"
	"github.com/xenking/recycle-market/internal/domain/stock"
	"github.com/xenking/recycle-market/internal/storage"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "recycle",
				"POSTGRES_PASSWORD": "recycle",
				"POSTGRES_DB":       "recycle",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres: %v\n", err)
		return 1
	}
	defer func() { _ = pg.Terminate(context.Background()) }()

	host, err := pg.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "host: %v\n", err)
		return 1
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "port: %v\n", err)
		return 1
	}

	url := fmt.Sprintf("postgres://recycle:recycle@%s:%s/recycle?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pool: %v\n", err)
		return 1
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		return 1
	}
	return m.Run()
}

// --- Helpers ---

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedItem(t *testing.T, s *Store, id string, unit measure.Unit, qty string) {
	t.Helper()
	_, err := testPool.Exec(context.Background(), `DELETE FROM items WHERE id = $1`, id)
	require.NoError(t, err)
	require.NoError(t, s.UpsertItem(context.Background(), catalog.Item{
		ID:       id,
		Name:     i18n.New(id, ""),
		Category: i18n.New("Test", "اختبار"),
		Price:    dec("10"),
		Points:   dec("5"),
		Unit:     unit,
		Stock:    dec(qty),
	}))
}

func newOrder(t *testing.T, userID, key, itemID string) *order.Order {
	t.Helper()
	o, err := order.New(order.Params{
		Actor:          auth.Actor{ID: userID, Role: auth.RoleCustomer},
		AddressID:      "addr-1",
		PaymentMethod:  order.PaymentCash,
		IdempotencyKey: key,
		Lines: []cart.Line{{
			ItemID:   itemID,
			Name:     i18n.New("Bottles", "زجاجات"),
			Category: i18n.New("Plastic", "بلاستيك"),
			Price:    dec("10"),
			Points:   dec("5"),
			Unit:     measure.Weight,
			Quantity: dec("2"),
		}},
		DeliveryFee: dec("5"),
		Now:         time.Now(),
	})
	require.NoError(t, err)
	return o
}

// --- Tests ---

func TestOrderRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStore(testPool)
	user := "user-roundtrip"

	o := newOrder(t, user, "key-roundtrip", "bottles")
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Orders().Create(ctx, o)
	}))

	got, err := s.Orders().Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.UserID, got.UserID)
	assert.Equal(t, order.StatusPending, got.Status)
	require.Len(t, got.Items, 1)
	assert.True(t, got.Items[0].Quantity.Equal(dec("2")))
	assert.Equal(t, measure.Weight, got.Items[0].Unit)
	assert.Equal(t, "زجاجات", got.Items[0].Name.Ar)
	require.Len(t, got.History, 1)
	assert.True(t, got.TotalAmount.Equal(dec("25")))

	dup := newOrder(t, user, "key-roundtrip", "bottles")
	err = s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Orders().Create(ctx, dup)
	})
	require.ErrorIs(t, err, order.ErrConflict)

	byKey, err := s.Orders().FindByIdempotencyKey(ctx, user, "key-roundtrip")
	require.NoError(t, err)
	assert.Equal(t, o.ID, byKey.ID)

	admin := auth.Actor{ID: "admin", Role: auth.RoleAdmin}
	require.NoError(t, got.Assign(admin, "courier-1", "", time.Now()))
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Orders().Update(ctx, got, got.Version)
	}))
	assert.Equal(t, int64(2), got.Version)

	err = s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Orders().Update(ctx, got, 1)
	})
	require.ErrorIs(t, err, order.ErrConflict)

	assigned, err := s.Orders().ListByCourier(ctx, "courier-1")
	require.NoError(t, err)
	require.NotEmpty(t, assigned)
	assert.Len(t, assigned[0].History, 2)

	pending, err := s.Orders().ListByUser(ctx, user, order.ListFilter{Status: order.StatusPending})
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, s.Orders().Delete(ctx, o.ID))
	_, err = s.Orders().Get(ctx, o.ID)
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestStockReserveConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewStore(testPool)
	seedItem(t, s, "cans-concurrent", measure.Count, "10")

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total = decimal.Zero
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var got decimal.Decimal
			err := s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
				var err error
				got, err = tx.Stock().Reserve(ctx, "cans-concurrent", dec("3"))
				return err
			})
			assert.NoError(t, err)
			mu.Lock()
			total = total.Add(got)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.True(t, total.Equal(dec("10")), "reserved %s", total)
	left, err := s.Stock().Available(ctx, "cans-concurrent")
	require.NoError(t, err)
	assert.True(t, left.IsZero())

	_, err = s.Stock().Adjust(ctx, "cans-concurrent", dec("-1"))
	var ise *stock.InsufficientStockError
	require.ErrorAs(t, err, &ise)

	_, err = s.Stock().Reserve(ctx, "missing-item", dec("1"))
	require.ErrorIs(t, err, stock.ErrItemNotFound)
}

func TestStockLocksArePerItem(t *testing.T) {
	ctx := context.Background()
	s := NewStore(testPool)
	seedItem(t, s, "paper-held", measure.Weight, "10")
	seedItem(t, s, "cans-free", measure.Count, "10")

	locked := make(chan struct{})
	release := make(chan struct{})
	held := make(chan error, 1)
	go func() {
		held <- s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			if _, err := tx.Stock().Reserve(ctx, "paper-held", dec("1")); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	tctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := s.WithTx(tctx, func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.Stock().Reserve(ctx, "cans-free", dec("2"))
		return err
	})
	require.NoError(t, err, "a different item must not wait for the held row")

	close(release)
	require.NoError(t, <-held)

	left, err := s.Stock().Available(ctx, "paper-held")
	require.NoError(t, err)
	assert.True(t, left.Equal(dec("9")))
}

func TestLedgerDeductAndReconcile(t *testing.T) {
	ctx := context.Background()
	s := NewStore(testPool)
	user := "user-ledger"
	now := time.Now()

	earn, err := ledger.NewEntry(ledger.Draft{UserID: user, Type: ledger.TypeEarned, Amount: dec("15"), OrderID: "o1", Reason: "order completed"}, now)
	require.NoError(t, err)
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Ledger().Append(ctx, earn)
	}))

	found, err := s.Ledger().HasOrderEntry(ctx, ledger.BookPoints, user, "o1", "order completed")
	require.NoError(t, err)
	assert.True(t, found)

	spend, err := ledger.NewEntry(ledger.Draft{UserID: user, Type: ledger.TypeDeducted, Amount: dec("20")}, now)
	require.NoError(t, err)
	err = s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Ledger().Deduct(ctx, spend)
	})
	var ib *ledger.InsufficientBalanceError
	require.ErrorAs(t, err, &ib)
	assert.True(t, ib.Balance.Equal(dec("15")))

	acct := ledger.Account{Book: ledger.BookPoints, UserID: user}
	require.NoError(t, s.Ledger().SetBalance(ctx, acct, dec("1")))
	entries, err := s.Ledger().Entries(ctx, ledger.BookPoints, user)
	require.NoError(t, err)
	assert.True(t, ledger.Fold(entries).Equal(dec("15")))

	accounts, err := s.Ledger().Accounts(ctx)
	require.NoError(t, err)
	assert.Contains(t, accounts, acct)
}

func TestNotificationsOutbox(t *testing.T) {
	ctx := context.Background()
	s := NewStore(testPool)
	user := "user-notify"
	now := time.Now()

	n := notification.New(user, notification.TypeOrderCreated, i18n.New("Created", ""), i18n.New("Body", ""), "", map[string]string{"k": "v"}, now)
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Outbox().Enqueue(ctx, n)
	}))

	repo := s.Notifications()
	pending, err := repo.Pending(ctx, now.Add(time.Second), 0)
	require.NoError(t, err)
	var ids []string
	for _, p := range pending {
		ids = append(ids, p.ID)
	}
	assert.Contains(t, ids, n.ID)

	require.NoError(t, repo.MarkFailed(ctx, n.ID, "broker down", now.Add(time.Hour)))
	require.NoError(t, repo.SetRead(ctx, user, n.ID, true))
	require.ErrorIs(t, repo.SetRead(ctx, "someone-else", n.ID, true), notification.ErrNotFound)

	list, err := repo.ListForUser(ctx, user, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Created", list[0].Title.Ar)
	assert.Equal(t, "v", list[0].Payload["k"])
	assert.Equal(t, 1, list[0].Attempts)

	unread, err := repo.ListForUser(ctx, user, true)
	require.NoError(t, err)
	assert.Empty(t, unread)

	removed, err := repo.Delete(ctx, user, []string{n.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestClassify(t *testing.T) {
	s := NewStore(testPool)
	ctx := context.Background()

	err := s.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return errors.New("business failure")
	})
	assert.False(t, storage.IsTransient(err))
}
