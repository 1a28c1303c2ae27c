package memory

import (
	"context"
	"sort"

	"github.com/xenking/recycle-market/internal/domain/order"
)

var _ order.Repository = orderRepo{}

type orderRepo struct {
	b binding
}

func (r orderRepo) Create(_ context.Context, o *order.Order) error {
	return r.b.do(func(st *state) error {
		if _, ok := st.orders[o.ID]; ok {
			return order.ErrConflict
		}
		if o.IdempotencyKey != "" {
			if findByKey(st, o.UserID, o.IdempotencyKey) != nil {
				return order.ErrConflict
			}
		}
		st.orders[o.ID] = o.Clone()
		return nil
	})
}

func (r orderRepo) Get(_ context.Context, id string) (*order.Order, error) {
	var out *order.Order
	err := r.b.do(func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return order.ErrNotFound
		}
		out = o.Clone()
		return nil
	})
	return out, err
}

// GetForUpdate is Get: the transaction already holds the store lock.
func (r orderRepo) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.Get(ctx, id)
}

func (r orderRepo) Update(_ context.Context, o *order.Order, expectedVersion int64) error {
	return r.b.do(func(st *state) error {
		cur, ok := st.orders[o.ID]
		if !ok {
			return order.ErrNotFound
		}
		if cur.Version != expectedVersion {
			return order.ErrConflict
		}
		o.Version = expectedVersion + 1
		st.orders[o.ID] = o.Clone()
		return nil
	})
}

func (r orderRepo) ListByUser(_ context.Context, userID string, f order.ListFilter) ([]order.Order, error) {
	return r.list(func(o *order.Order) bool {
		return o.UserID == userID && (f.Status == "" || o.Status == f.Status)
	})
}

func (r orderRepo) ListByCourier(_ context.Context, courierID string) ([]order.Order, error) {
	return r.list(func(o *order.Order) bool {
		return o.CourierID == courierID
	})
}

func (r orderRepo) list(match func(o *order.Order) bool) ([]order.Order, error) {
	var out []order.Order
	err := r.b.do(func(st *state) error {
		for _, o := range st.orders {
			if match(o) {
				out = append(out, *o.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, err
}

func (r orderRepo) FindByIdempotencyKey(_ context.Context, userID, key string) (*order.Order, error) {
	var out *order.Order
	err := r.b.do(func(st *state) error {
		o := findByKey(st, userID, key)
		if o == nil {
			return order.ErrNotFound
		}
		out = o.Clone()
		return nil
	})
	return out, err
}

func (r orderRepo) Delete(_ context.Context, id string) error {
	return r.b.do(func(st *state) error {
		if _, ok := st.orders[id]; !ok {
			return order.ErrNotFound
		}
		delete(st.orders, id)
		return nil
	})
}

func findByKey(st *state, userID, key string) *order.Order {
	for _, o := range st.orders {
		if o.UserID == userID && o.IdempotencyKey == key {
			return o
		}
	}
	return nil
}
