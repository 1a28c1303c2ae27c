package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/recycle-market/internal/domain/ledger"
)

const (
	insertEntrySQL = `INSERT INTO ledger_entries (id, book, user_id, order_id, amount, type, reason, gateway, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	creditBalanceSQL = `INSERT INTO ledger_balances (book, user_id, balance, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (book, user_id) DO UPDATE
		SET balance = ledger_balances.balance + EXCLUDED.balance, updated_at = now()`

	// Conditional update: concurrent debits for the same account serialize on
	// the row and the loser sees the reduced balance.
	debitBalanceSQL = `UPDATE ledger_balances SET balance = balance + $3, updated_at = now()
		WHERE book = $1 AND user_id = $2 AND balance + $3 >= 0
		RETURNING balance`

	getBalanceSQL          = `SELECT balance FROM ledger_balances WHERE book = $1 AND user_id = $2`
	getBalanceForUpdateSQL = getBalanceSQL + ` FOR UPDATE`

	setBalanceSQL = `INSERT INTO ledger_balances (book, user_id, balance, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (book, user_id) DO UPDATE SET balance = EXCLUDED.balance, updated_at = now()`

	listEntriesSQL = `SELECT id, book, user_id, order_id, amount, type, reason, gateway, created_at
		FROM ledger_entries WHERE book = $1 AND user_id = $2
		ORDER BY created_at, id`

	hasOrderEntrySQL = `SELECT EXISTS (
		SELECT 1 FROM ledger_entries
		WHERE book = $1 AND user_id = $2 AND order_id = $3 AND reason = $4)`

	listAccountsSQL = `SELECT book, user_id FROM ledger_balances
		UNION
		SELECT DISTINCT book, user_id FROM ledger_entries
		ORDER BY user_id, book`
)

var _ ledger.Store = ledgerStore{}

type ledgerStore struct {
	q querier
	// lock makes Balance take a row lock; only meaningful inside a transaction.
	lock bool
}

func (l ledgerStore) Append(ctx context.Context, e *ledger.Entry) error {
	if _, err := l.q.Exec(ctx, creditBalanceSQL, string(e.Book), e.UserID, e.Amount); err != nil {
		return fmt.Errorf("crediting %s balance: %w", e.Book, err)
	}
	return l.insert(ctx, e)
}

func (l ledgerStore) Deduct(ctx context.Context, e *ledger.Entry) error {
	var balance decimal.Decimal
	err := l.q.QueryRow(ctx, debitBalanceSQL, string(e.Book), e.UserID, e.Amount).Scan(&balance)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("debiting %s balance: %w", e.Book, err)
		}
		have, err := l.Balance(ctx, e.Book, e.UserID)
		if err != nil {
			return err
		}
		return &ledger.InsufficientBalanceError{
			Book:      e.Book,
			UserID:    e.UserID,
			Balance:   have,
			Requested: e.Amount.Abs(),
		}
	}
	return l.insert(ctx, e)
}

func (l ledgerStore) insert(ctx context.Context, e *ledger.Entry) error {
	_, err := l.q.Exec(ctx, insertEntrySQL,
		e.ID, string(e.Book), e.UserID, nullable(e.OrderID), e.Amount, string(e.Type), e.Reason, e.Gateway, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting %s entry: %w", e.Book, err)
	}
	return nil
}

func (l ledgerStore) Balance(ctx context.Context, book ledger.Book, userID string) (decimal.Decimal, error) {
	sql := getBalanceSQL
	if l.lock {
		sql = getBalanceForUpdateSQL
	}
	var balance decimal.Decimal
	if err := l.q.QueryRow(ctx, sql, string(book), userID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("reading %s balance: %w", book, err)
	}
	return balance, nil
}

func (l ledgerStore) Entries(ctx context.Context, book ledger.Book, userID string) ([]ledger.Entry, error) {
	rows, err := l.q.Query(ctx, listEntriesSQL, string(book), userID)
	if err != nil {
		return nil, fmt.Errorf("listing %s entries: %w", book, err)
	}
	return pgx.CollectRows(rows, scanEntry)
}

func (l ledgerStore) HasOrderEntry(ctx context.Context, book ledger.Book, userID, orderID, reason string) (bool, error) {
	var found bool
	if err := l.q.QueryRow(ctx, hasOrderEntrySQL, string(book), userID, orderID, reason).Scan(&found); err != nil {
		return false, fmt.Errorf("checking %s entry for order %q: %w", book, orderID, err)
	}
	return found, nil
}

func (l ledgerStore) Accounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := l.q.Query(ctx, listAccountsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing ledger accounts: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.Account, error) {
		var (
			a    ledger.Account
			book string
		)
		err := row.Scan(&book, &a.UserID)
		a.Book = ledger.Book(book)
		return a, err
	})
}

func (l ledgerStore) SetBalance(ctx context.Context, a ledger.Account, balance decimal.Decimal) error {
	if _, err := l.q.Exec(ctx, setBalanceSQL, string(a.Book), a.UserID, balance); err != nil {
		return fmt.Errorf("setting %s balance for %q: %w", a.Book, a.UserID, err)
	}
	return nil
}

func scanEntry(row pgx.CollectableRow) (ledger.Entry, error) {
	var (
		e       ledger.Entry
		book    string
		typ     string
		orderID *string
	)
	err := row.Scan(&e.ID, &book, &e.UserID, &orderID, &e.Amount, &typ, &e.Reason, &e.Gateway, &e.CreatedAt)
	e.Book = ledger.Book(book)
	e.Type = ledger.EntryType(typ)
	e.OrderID = deref(orderID)
	e.CreatedAt = e.CreatedAt.UTC()
	return e, err
}
