// Package ledger defines the append-only Points and Wallet ledgers. A balance
// is always derivable by folding a user's entries; the materialized balance
// kept by stores is a cache of that fold.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Book selects one of the two ledgers.
type Book string

const (
	BookPoints Book = "points"
	BookWallet Book = "wallet"
)

// ParseBook converts a wire value.
func ParseBook(s string) (Book, error) {
	switch b := Book(s); b {
	case BookPoints, BookWallet:
		return b, nil
	}
	return "", errors.Wrapf(ErrUnknownBook, "%q", s)
}

// EntryType classifies an entry. Earned and cashback credit, deducted and
// withdrawal debit.
type EntryType string

const (
	TypeEarned     EntryType = "earned"
	TypeDeducted   EntryType = "deducted"
	TypeCashback   EntryType = "cashback"
	TypeWithdrawal EntryType = "withdrawal"
)

// Book returns the ledger the type belongs to.
func (t EntryType) Book() Book {
	if t == TypeCashback || t == TypeWithdrawal {
		return BookWallet
	}
	return BookPoints
}

// Debit reports whether the type reduces the balance.
func (t EntryType) Debit() bool {
	return t == TypeDeducted || t == TypeWithdrawal
}

var (
	ErrUnknownBook = errors.New("unknown ledger book")
	// ErrInsufficientBalance is matched by *InsufficientBalanceError.
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

// InsufficientBalanceError reports a deduction larger than the balance.
type InsufficientBalanceError struct {
	Book      Book
	UserID    string
	Balance   decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance for user %s: balance %s, requested %s",
		e.Book, e.UserID, e.Balance, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// Entry is an immutable ledger record. Amount is signed.
type Entry struct {
	ID        string
	Book      Book
	UserID    string
	OrderID   string
	Amount    decimal.Decimal
	Type      EntryType
	Reason    string
	Gateway   string
	CreatedAt time.Time
}

// Draft describes an entry before it is signed and stamped.
type Draft struct {
	UserID  string
	Type    EntryType
	Amount  decimal.Decimal
	Reason  string
	OrderID string
	Gateway string
}

// NewEntry builds an entry from a draft. The amount must be positive; its sign
// is derived from the type.
func NewEntry(d Draft, now time.Time) (*Entry, error) {
	if !d.Amount.IsPositive() {
		return nil, errors.Wrapf(ErrInvalidAmount, "got %s", d.Amount)
	}
	amount := d.Amount
	if d.Type.Debit() {
		amount = amount.Neg()
	}
	return &Entry{
		ID:        uuid.New().String(),
		Book:      d.Type.Book(),
		UserID:    d.UserID,
		OrderID:   d.OrderID,
		Amount:    amount,
		Type:      d.Type,
		Reason:    d.Reason,
		Gateway:   d.Gateway,
		CreatedAt: now.UTC(),
	}, nil
}

// Fold derives a balance by replaying entries.
func Fold(entries []Entry) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	return sum
}

// Account identifies one user's balance in one book.
type Account struct {
	Book   Book
	UserID string
}

// Store persists entries together with the materialized balance. Methods run
// inside the caller's transaction.
type Store interface {
	// Append records a credit and adds it to the materialized balance.
	Append(ctx context.Context, e *Entry) error
	// Deduct records a debit only if the materialized balance covers it,
	// using a conditional update so concurrent deductions for the same user
	// serialize. Otherwise it returns *InsufficientBalanceError.
	Deduct(ctx context.Context, e *Entry) error
	Balance(ctx context.Context, book Book, userID string) (decimal.Decimal, error)
	Entries(ctx context.Context, book Book, userID string) ([]Entry, error)
	HasOrderEntry(ctx context.Context, book Book, userID, orderID, reason string) (bool, error)
	Accounts(ctx context.Context) ([]Account, error)
	// SetBalance overwrites the materialized balance. Reconciliation only.
	SetBalance(ctx context.Context, a Account, balance decimal.Decimal) error
}
