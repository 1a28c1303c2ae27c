// Package storage defines the transactional boundary shared by the order
// fulfillment workflow and its ledgers.
package storage

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"

	"github.com/xenking/recycle-market/internal/domain/ledger"
	"github.com/xenking/recycle-market/internal/domain/notification"
	"github.com/xenking/recycle-market/internal/domain/order"
	"github.com/xenking/recycle-market/internal/domain/stock"
)

// ErrTransient marks infrastructure failures that are safe to retry, such as
// serialization failures, deadlocks and dropped connections.
var ErrTransient = errors.New("transient storage failure")

// IsTransient reports whether err is worth retrying at the transaction boundary.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Tx exposes the repositories bound to one transaction.
type Tx interface {
	Orders() order.Repository
	Stock() stock.Ledger
	Ledger() ledger.Store
	Outbox() notification.Outbox
}

// Transactor runs fn in a transaction. It commits when fn returns nil and
// rolls back otherwise; no write made through tx is visible after a rollback.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// ErrUnavailable is returned by WithRetry when transient failures persist
// after every attempt.
var ErrUnavailable = errors.New("service temporarily unavailable")

// RetryPolicy bounds how a transaction hitting transient failures is retried.
type RetryPolicy struct {
	Attempts int
	Initial  time.Duration
	// OnRetry is called before each retry.
	OnRetry func(attempt int, err error)
}

// WithRetry runs fn through t.WithTx, retrying transient failures with
// exponential backoff. Other errors are returned as is.
func WithRetry(ctx context.Context, t Transactor, p RetryPolicy, fn func(ctx context.Context, tx Tx) error) error {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.Initial <= 0 {
		p.Initial = 50 * time.Millisecond
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Initial
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.Attempts-1)), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := t.WithTx(ctx, fn)
		if err == nil || !IsTransient(err) {
			return backoff.Permanent(err)
		}
		if attempt < p.Attempts && p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		return err
	}, b)
	if err != nil && IsTransient(err) {
		return errors.Wrapf(ErrUnavailable, "%d attempts: %v", attempt, err)
	}
	return err
}
