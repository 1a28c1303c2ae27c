package memory

import (
	"context"
	"sort"

	"github.com/xenking/recycle-market/internal/domain/address"
	"github.com/xenking/recycle-market/internal/domain/catalog"
	"github.com/xenking/recycle-market/internal/domain/courier"
)

var (
	_ catalog.Repository = catalogRepo{}
	_ address.Repository = addressRepo{}
	_ courier.Directory  = courierDirectory{}
)

type catalogRepo struct {
	b binding
}

func (r catalogRepo) List(_ context.Context) ([]catalog.Item, error) {
	var out []catalog.Item
	err := r.b.do(func(st *state) error {
		for _, it := range st.items {
			out = append(out, it)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r catalogRepo) GetByID(_ context.Context, id string) (*catalog.Item, error) {
	var out *catalog.Item
	err := r.b.do(func(st *state) error {
		it, ok := st.items[id]
		if !ok {
			return catalog.ErrNotFound
		}
		out = &it
		return nil
	})
	return out, err
}

func (r catalogRepo) GetByIDs(_ context.Context, ids []string) ([]catalog.Item, error) {
	var out []catalog.Item
	err := r.b.do(func(st *state) error {
		for _, id := range ids {
			if it, ok := st.items[id]; ok {
				out = append(out, it)
			}
		}
		return nil
	})
	return out, err
}

type addressRepo struct {
	s *Store
}

func (r addressRepo) Get(_ context.Context, userID, addressID string) (*address.Address, error) {
	r.s.refMu.RLock()
	defer r.s.refMu.RUnlock()
	a, ok := r.s.addresses[addressID]
	if !ok || a.UserID != userID {
		return nil, address.ErrNotFound
	}
	return &a, nil
}

type courierDirectory struct {
	s *Store
}

func (d courierDirectory) IsApprovedAndAvailable(_ context.Context, courierID string) (bool, error) {
	d.s.refMu.RLock()
	defer d.s.refMu.RUnlock()
	c, ok := d.s.couriers[courierID]
	if !ok {
		return false, courier.ErrNotFound
	}
	return c.Approved && c.Available, nil
}
