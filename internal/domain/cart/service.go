package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/recycle-market/internal/domain/auth"
	"github.com/xenking/recycle-market/internal/domain/catalog"
)

// DefaultBuyerMarkup is applied to catalog prices for buyer carts.
var DefaultBuyerMarkup = decimal.RequireFromString("1.2")

// Service captures catalog data into carts.
type Service struct {
	store   Store
	catalog catalog.Repository
	markup  decimal.Decimal
	now     func() time.Time
}

// NewService creates a cart Service. A non-positive markup falls back to
// DefaultBuyerMarkup.
func NewService(store Store, items catalog.Repository, buyerMarkup decimal.Decimal) *Service {
	if !buyerMarkup.IsPositive() {
		buyerMarkup = DefaultBuyerMarkup
	}
	return &Service{
		store:   store,
		catalog: items,
		markup:  buyerMarkup,
		now:     time.Now,
	}
}

// Get returns the owner's cart.
func (s *Service) Get(ctx context.Context, owner string) (*Cart, error) {
	c, err := s.store.Get(ctx, owner)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	return c, nil
}

// Set puts itemID into the actor's cart with the given quantity, capturing
// name, category, price, points and unit from the catalog.
func (s *Service) Set(ctx context.Context, actor auth.Actor, itemID string, qty decimal.Decimal) (*Cart, error) {
	line, err := s.capture(ctx, actor, itemID, qty)
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, actor.ID, line); err != nil {
		return nil, errors.Wrap(err, "put cart line")
	}
	return s.Get(ctx, actor.ID)
}

// Remove drops itemID from the actor's cart.
func (s *Service) Remove(ctx context.Context, actor auth.Actor, itemID string) (*Cart, error) {
	if err := s.store.Remove(ctx, actor.ID, itemID); err != nil {
		return nil, errors.Wrap(err, "remove cart line")
	}
	return s.Get(ctx, actor.ID)
}

// Clear empties the actor's cart.
func (s *Service) Clear(ctx context.Context, actor auth.Actor) error {
	if err := s.store.Clear(ctx, actor.ID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

// Merge moves an anonymous session cart into the actor's cart after login.
// Quantities of items present in both are summed and prices re-captured for
// the actor's role.
func (s *Service) Merge(ctx context.Context, sessionID string, actor auth.Actor) (*Cart, error) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "get session cart")
	}
	if session.IsEmpty() {
		return s.Get(ctx, actor.ID)
	}
	current, err := s.store.Get(ctx, actor.ID)
	if err != nil {
		return nil, errors.Wrap(err, "get user cart")
	}

	for _, l := range session.Lines {
		qty := l.Quantity
		if existing, ok := current.Line(l.ItemID); ok {
			qty = qty.Add(existing.Quantity)
		}
		line, err := s.capture(ctx, actor, l.ItemID, qty)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if err := s.store.Put(ctx, actor.ID, line); err != nil {
			return nil, errors.Wrap(err, "put merged line")
		}
	}

	if err := s.store.Clear(ctx, sessionID); err != nil {
		return nil, errors.Wrap(err, "clear session cart")
	}
	return s.Get(ctx, actor.ID)
}

func (s *Service) capture(ctx context.Context, actor auth.Actor, itemID string, qty decimal.Decimal) (Line, error) {
	item, err := s.catalog.GetByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return Line{}, &LineError{ItemID: itemID, Err: err}
		}
		return Line{}, errors.Wrapf(err, "get item %s", itemID)
	}
	if err := item.Unit.Validate(qty); err != nil {
		return Line{}, &LineError{ItemID: itemID, Err: err}
	}

	price := item.Price
	if actor.Role == auth.RoleBuyer {
		price = price.Mul(s.markup).Round(2)
	}

	return Line{
		ItemID:   item.ID,
		Name:     item.Name,
		Category: item.Category,
		Price:    price,
		Points:   item.Points,
		Unit:     item.Unit,
		Quantity: qty,
		Image:    item.Image,
		AddedAt:  s.now().UTC(),
	}, nil
}
