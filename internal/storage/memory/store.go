// Package memory provides in-process implementations of the storage
// contracts for tests and local development. A transaction holds the store
// lock for its whole duration and works on a copy of the state that replaces
// the live state only on commit. The single lock serializes every
// transaction; per-order and per-item isolation, where unrelated orders and
// items proceed in parallel, comes from the postgres store.
package memory

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/xenking/recycle-market/internal/domain/address"
	"github.com/xenking/recycle-market/internal/domain/catalog"
	"github.com/xenking/recycle-market/internal/domain/courier"
	"github.com/xenking/recycle-market/internal/domain/ledger"
	"github.com/xenking/recycle-market/internal/domain/notification"
	"github.com/xenking/recycle-market/internal/domain/order"
	"github.com/xenking/recycle-market/internal/domain/stock"
	"github.com/xenking/recycle-market/internal/storage"
)

var _ storage.Transactor = (*Store)(nil)

type state struct {
	orders        map[string]*order.Order
	items         map[string]catalog.Item
	entries       []ledger.Entry
	balances      map[ledger.Account]decimal.Decimal
	notifications map[string]*notification.Notification
}

func newState() *state {
	return &state{
		orders:        make(map[string]*order.Order),
		items:         make(map[string]catalog.Item),
		balances:      make(map[ledger.Account]decimal.Decimal),
		notifications: make(map[string]*notification.Notification),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, o := range s.orders {
		c.orders[id] = o.Clone()
	}
	for id, it := range s.items {
		c.items[id] = it
	}
	c.entries = append([]ledger.Entry(nil), s.entries...)
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for id, n := range s.notifications {
		cp := *n
		c.notifications[id] = &cp
	}
	return c
}

// Store is an in-memory Transactor with non-transactional readers.
// Addresses and couriers are reference data outside transactions and have
// their own lock.
type Store struct {
	mu   sync.Mutex
	data *state

	refMu     sync.RWMutex
	addresses map[string]address.Address
	couriers  map[string]courier.Courier
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		data:      newState(),
		addresses: make(map[string]address.Address),
		couriers:  make(map[string]courier.Courier),
	}
}

// WithTx implements storage.Transactor.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(ctx, txView{b: binding{st: work}}); err != nil {
		return err
	}
	s.data = work
	return nil
}

// binding runs operations either against a transaction's working copy or,
// outside a transaction, against the live state under the store lock.
type binding struct {
	s  *Store
	st *state
}

func (b binding) do(fn func(st *state) error) error {
	if b.st != nil {
		return fn(b.st)
	}
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	return fn(b.s.data)
}

type txView struct {
	b binding
}

func (t txView) Orders() order.Repository { return orderRepo{t.b} }
func (t txView) Stock() stock.Ledger { return stockLedger{t.b} }
func (t txView) Ledger() ledger.Store { return ledgerStore{t.b} }
func (t txView) Outbox() notification.Outbox { return notificationRepo{t.b} }

func (s *Store) live() binding { return binding{s: s} }

// Orders returns the order repository outside any transaction.
func (s *Store) Orders() order.Repository { return orderRepo{s.live()} }

// Stock returns the stock ledger outside any transaction.
func (s *Store) Stock() stock.Ledger { return stockLedger{s.live()} }

// Ledger returns the points/wallet store outside any transaction.
func (s *Store) Ledger() ledger.Store { return ledgerStore{s.live()} }

// Notifications returns the notification repository.
func (s *Store) Notifications() notification.Repository { return notificationRepo{s.live()} }

// Catalog returns the catalog repository.
func (s *Store) Catalog() catalog.Repository { return catalogRepo{s.live()} }

// Addresses returns the address repository.
func (s *Store) Addresses() address.Repository { return addressRepo{s} }

// Couriers returns the courier directory.
func (s *Store) Couriers() courier.Directory { return courierDirectory{s} }

// PutItem adds or replaces a catalog item including its stock counter.
func (s *Store) PutItem(it catalog.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.items[it.ID] = it
}

// PutAddress adds or replaces an address.
func (s *Store) PutAddress(a address.Address) {
	s.refMu.Lock()
	defer s.refMu.Unlock()
	s.addresses[a.ID] = a
}

// PutCourier adds or replaces a courier.
func (s *Store) PutCourier(c courier.Courier) {
	s.refMu.Lock()
	defer s.refMu.Unlock()
	s.couriers[c.ID] = c
}
