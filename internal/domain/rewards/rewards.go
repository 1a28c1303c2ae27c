// Package rewards implements the points and wallet operations on top of the
// append-only ledgers.
package rewards

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/recycle-market/internal/domain/auth"
	"github.com/xenking/recycle-market/internal/domain/ledger"
	"github.com/xenking/recycle-market/internal/storage"
)

// Ledger reasons recorded by this package.
const (
	ReasonRedeemed   = "points redeemed"
	ReasonRedemption = "points redemption"
	ReasonWithdrawal = "wallet withdrawal"
)

// DefaultRedeemRate is the wallet amount credited per redeemed point.
var DefaultRedeemRate = decimal.RequireFromString("0.1")

var (
	// ErrWholePoints is returned when redeeming a fractional number of points.
	ErrWholePoints = errors.New("points must be redeemed in whole units")
	// ErrGatewayRequired is returned for a withdrawal without a payout gateway.
	ErrGatewayRequired = errors.New("withdrawal gateway required")
)

// Balances is a user's derived balances.
type Balances struct {
	Points decimal.Decimal
	Wallet decimal.Decimal
}

// Redemption is the pair of entries written by RedeemPoints.
type Redemption struct {
	Points   ledger.Entry
	Cashback ledger.Entry
}

// Service exposes balances and the redemption and withdrawal flows.
type Service struct {
	tx     storage.Transactor
	ledger ledger.Store
	rate   decimal.Decimal
	retry  storage.RetryPolicy
	now    func() time.Time
}

// NewService creates a rewards Service. store is used for reads outside
// transactions. A non-positive rate falls back to DefaultRedeemRate.
func NewService(tx storage.Transactor, store ledger.Store, rate decimal.Decimal, retry storage.RetryPolicy) *Service {
	if !rate.IsPositive() {
		rate = DefaultRedeemRate
	}
	return &Service{
		tx:     tx,
		ledger: store,
		rate:   rate,
		retry:  retry,
		now:    time.Now,
	}
}

// Balances returns the user's points and wallet balances.
func (s *Service) Balances(ctx context.Context, userID string) (Balances, error) {
	points, err := s.ledger.Balance(ctx, ledger.BookPoints, userID)
	if err != nil {
		return Balances{}, errors.Wrap(err, "points balance")
	}
	wallet, err := s.ledger.Balance(ctx, ledger.BookWallet, userID)
	if err != nil {
		return Balances{}, errors.Wrap(err, "wallet balance")
	}
	return Balances{Points: points, Wallet: wallet}, nil
}

// History returns the user's entries in one book, oldest first.
func (s *Service) History(ctx context.Context, userID string, book ledger.Book) ([]ledger.Entry, error) {
	entries, err := s.ledger.Entries(ctx, book, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "%s entries", book)
	}
	return entries, nil
}

// RedeemPoints converts points into wallet cashback at the configured rate.
// Both entries are written in one transaction; a shortfall leaves both
// ledgers untouched.
func (s *Service) RedeemPoints(ctx context.Context, actor auth.Actor, points decimal.Decimal) (*Redemption, error) {
	if !points.Equal(points.Truncate(0)) {
		return nil, ErrWholePoints
	}
	debit, err := ledger.NewEntry(ledger.Draft{
		UserID: actor.ID,
		Type:   ledger.TypeDeducted,
		Amount: points,
		Reason: ReasonRedeemed,
	}, s.now())
	if err != nil {
		return nil, err
	}
	credit, err := ledger.NewEntry(ledger.Draft{
		UserID: actor.ID,
		Type:   ledger.TypeCashback,
		Amount: points.Mul(s.rate).Round(2),
		Reason: ReasonRedemption,
	}, s.now())
	if err != nil {
		return nil, errors.Wrap(err, "cashback amount")
	}

	err = storage.WithRetry(ctx, s.tx, s.retry, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.Ledger().Deduct(ctx, debit); err != nil {
			return err
		}
		return tx.Ledger().Append(ctx, credit)
	})
	if err != nil {
		return nil, err
	}
	return &Redemption{Points: *debit, Cashback: *credit}, nil
}

// Withdraw debits the wallet for a payout through gateway.
func (s *Service) Withdraw(ctx context.Context, actor auth.Actor, amount decimal.Decimal, gateway string) (*ledger.Entry, error) {
	if gateway == "" {
		return nil, ErrGatewayRequired
	}
	e, err := ledger.NewEntry(ledger.Draft{
		UserID:  actor.ID,
		Type:    ledger.TypeWithdrawal,
		Amount:  amount.Round(2),
		Reason:  ReasonWithdrawal,
		Gateway: gateway,
	}, s.now())
	if err != nil {
		return nil, err
	}
	err = storage.WithRetry(ctx, s.tx, s.retry, func(ctx context.Context, tx storage.Tx) error {
		return tx.Ledger().Deduct(ctx, e)
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}
