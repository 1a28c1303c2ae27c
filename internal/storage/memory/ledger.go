package memory

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/xenking/recycle-market/internal/domain/ledger"
)

var _ ledger.Store = ledgerStore{}

type ledgerStore struct {
	b binding
}

func (l ledgerStore) Append(_ context.Context, e *ledger.Entry) error {
	return l.b.do(func(st *state) error {
		appendEntry(st, e)
		return nil
	})
}

func (l ledgerStore) Deduct(_ context.Context, e *ledger.Entry) error {
	return l.b.do(func(st *state) error {
		acct := ledger.Account{Book: e.Book, UserID: e.UserID}
		bal := st.balances[acct]
		if bal.Add(e.Amount).IsNegative() {
			return &ledger.InsufficientBalanceError{
				Book:      e.Book,
				UserID:    e.UserID,
				Balance:   bal,
				Requested: e.Amount.Abs(),
			}
		}
		appendEntry(st, e)
		return nil
	})
}

func appendEntry(st *state, e *ledger.Entry) {
	acct := ledger.Account{Book: e.Book, UserID: e.UserID}
	st.entries = append(st.entries, *e)
	st.balances[acct] = st.balances[acct].Add(e.Amount)
}

func (l ledgerStore) Balance(_ context.Context, book ledger.Book, userID string) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := l.b.do(func(st *state) error {
		out = st.balances[ledger.Account{Book: book, UserID: userID}]
		return nil
	})
	return out, err
}

func (l ledgerStore) Entries(_ context.Context, book ledger.Book, userID string) ([]ledger.Entry, error) {
	var out []ledger.Entry
	err := l.b.do(func(st *state) error {
		for _, e := range st.entries {
			if e.Book == book && e.UserID == userID {
				out = append(out, e)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, err
}

func (l ledgerStore) HasOrderEntry(_ context.Context, book ledger.Book, userID, orderID, reason string) (bool, error) {
	var found bool
	err := l.b.do(func(st *state) error {
		for _, e := range st.entries {
			if e.Book == book && e.UserID == userID && e.OrderID == orderID && e.Reason == reason {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (l ledgerStore) Accounts(_ context.Context) ([]ledger.Account, error) {
	var out []ledger.Account
	err := l.b.do(func(st *state) error {
		seen := make(map[ledger.Account]bool)
		for acct := range st.balances {
			seen[acct] = true
		}
		for _, e := range st.entries {
			seen[ledger.Account{Book: e.Book, UserID: e.UserID}] = true
		}
		for acct := range seen {
			out = append(out, acct)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Book < out[j].Book
	})
	return out, err
}

func (l ledgerStore) SetBalance(_ context.Context, a ledger.Account, balance decimal.Decimal) error {
	return l.b.do(func(st *state) error {
		st.balances[a] = balance
		return nil
	})
}
