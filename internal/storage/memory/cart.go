package memory

import (
	"context"
	"sync"

	"github.com/xenking/recycle-market/internal/domain/cart"
)

var _ cart.Store = (*CartStore)(nil)

// CartStore keeps carts in process memory. Carts are not part of order
// transactions.
type CartStore struct {
	mu    sync.Mutex
	carts map[string][]cart.Line
}

// NewCartStore creates an empty CartStore.
func NewCartStore() *CartStore {
	return &CartStore{carts: make(map[string][]cart.Line)}
}

func (s *CartStore) Get(_ context.Context, owner string) (*cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &cart.Cart{Owner: owner, Lines: append([]cart.Line(nil), s.carts[owner]...)}, nil
}

func (s *CartStore) Put(_ context.Context, owner string, line cart.Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := s.carts[owner]
	for i := range lines {
		if lines[i].ItemID == line.ItemID {
			lines[i] = line
			return nil
		}
	}
	s.carts[owner] = append(lines, line)
	return nil
}

func (s *CartStore) Remove(_ context.Context, owner, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []cart.Line
	for _, l := range s.carts[owner] {
		if l.ItemID != itemID {
			kept = append(kept, l)
		}
	}
	s.carts[owner] = kept
	return nil
}

func (s *CartStore) Clear(_ context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, owner)
	return nil
}
