// Package postgres implements the storage contracts on PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/recycle-market/db"
	"github.com/xenking/recycle-market/internal/domain/address"
	"github.com/xenking/recycle-market/internal/domain/catalog"
	"github.com/xenking/recycle-market/internal/domain/courier"
	"github.com/xenking/recycle-market/internal/domain/ledger"
	"github.com/xenking/recycle-market/internal/domain/notification"
	"github.com/xenking/recycle-market/internal/domain/order"
	"github.com/xenking/recycle-market/internal/domain/stock"
	"github.com/xenking/recycle-market/internal/storage"
)

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

var _ storage.Transactor = (*Store)(nil)

// Store is the PostgreSQL storage.Transactor. Its accessor methods return
// repositories bound to the pool for reads outside transactions.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store that uses the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WithTx implements storage.Transactor. Serialization failures, deadlocks and
// connection losses are reported as storage.ErrTransient.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(errors.Wrap(err, "begin transaction"))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, txView{q: tx}); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(errors.Wrap(err, "commit transaction"))
	}
	return nil
}

type txView struct {
	q querier
}

func (t txView) Orders() order.Repository { return orderRepo{q: t.q} }
func (t txView) Stock() stock.Ledger { return stockLedger{q: t.q} }
func (t txView) Ledger() ledger.Store { return ledgerStore{q: t.q, lock: true} }
func (t txView) Outbox() notification.Outbox { return notificationRepo{q: t.q} }

// Orders returns the order repository outside any transaction.
func (s *Store) Orders() order.Repository { return orderRepo{q: s.pool} }

// Stock returns the stock ledger outside any transaction.
func (s *Store) Stock() stock.Ledger { return stockLedger{q: s.pool} }

// Ledger returns the points/wallet store outside any transaction.
func (s *Store) Ledger() ledger.Store { return ledgerStore{q: s.pool} }

// Notifications returns the notification repository.
func (s *Store) Notifications() notification.Repository { return notificationRepo{q: s.pool} }

// Catalog returns the catalog repository.
func (s *Store) Catalog() catalog.Repository { return catalogRepo{q: s.pool} }

// Addresses returns the address repository.
func (s *Store) Addresses() address.Repository { return addressRepo{q: s.pool} }

// Couriers returns the courier directory.
func (s *Store) Couriers() courier.Directory { return courierDirectory{q: s.pool} }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SQLSTATE codes the store reacts to.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// transientError marks err as storage.ErrTransient while keeping its chain.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() []error { return []error{e.err, storage.ErrTransient} }

func classify(err error) error {
	if err == nil || storage.IsTransient(err) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return &transientError{err: err}
		}
		return err
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return &transientError{err: err}
	}
	return err
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation && pgErr.ConstraintName == constraint
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
