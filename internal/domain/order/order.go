package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/recycle-market/internal/domain/auth"
	"github.com/xenking/recycle-market/internal/domain/cart"
	"github.com/xenking/recycle-market/internal/domain/i18n"
	"github.com/xenking/recycle-market/internal/domain/measure"
)

// Sentinel errors for order validation and access.
var (
	ErrNotFound          = errors.New("order not found")
	ErrForbidden         = errors.New("actor is not allowed to perform this action")
	ErrConflict          = errors.New("order was modified concurrently")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInvalidAddress    = errors.New("invalid delivery address")
	ErrInvalidPayment    = errors.New("card payment requires a confirmed payment intent")
	ErrReasonRequired    = errors.New("cancellation reason required")
	ErrCourierRequired   = errors.New("courier id required")
	ErrProofRequired     = errors.New("delivery proof photo required")
	ErrUnknownLine       = errors.New("manifest references an unknown line item")
	ErrActiveOrder       = errors.New("only completed or cancelled orders can be deleted")
)

// InvalidQuantityError indicates a line quantity that violates its unit.
type InvalidQuantityError struct {
	ItemID string
	Err    error
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid quantity for item %s: %v", e.ItemID, e.Err)
}

func (e *InvalidQuantityError) Unwrap() error {
	return e.Err
}

// PaymentMethod is how the order is settled.
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentCard
}

// LineItem is an order line with the catalog data captured at order time.
type LineItem struct {
	ID       string
	ItemID   string
	Name     i18n.Text
	Category i18n.Text
	Price    decimal.Decimal
	Points   decimal.Decimal
	Unit     measure.Unit
	Quantity decimal.Decimal
	// ReservedQuantity is what the Stock Ledger currently holds for the line.
	ReservedQuantity decimal.Decimal
	// OriginalQuantity is set once the courier reports a different quantity.
	OriginalQuantity decimal.NullDecimal
	QuantityAdjusted bool
}

// Shortfall is the part of the ordered quantity stock could not cover.
func (l LineItem) Shortfall() decimal.Decimal {
	d := l.Quantity.Sub(l.ReservedQuantity)
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// StatusEntry is one append-only status history record.
type StatusEntry struct {
	Seq       int
	Status    Status
	At        time.Time
	ActorID   string
	ActorRole auth.Role
	Notes     string
}

// DeliveryProof is the courier-submitted evidence of completion.
type DeliveryProof struct {
	PhotoURL    string
	Notes       string
	SubmittedBy string
	SubmittedAt time.Time
}

// Order is the durable record created from a cart snapshot.
type Order struct {
	ID              string
	UserID          string
	UserRole        auth.Role
	AddressID       string
	PaymentMethod   PaymentMethod
	PaymentIntentID string
	IdempotencyKey  string
	Items           []LineItem
	DeliveryFee     decimal.Decimal
	TotalAmount     decimal.Decimal
	Status          Status
	CourierID       string
	CollectedAt     *time.Time
	CompletedAt     *time.Time
	CancelReason    string

	HasQuantityAdjustments  bool
	QuantityAdjustmentNotes []string

	History       []StatusEntry
	DeliveryProof *DeliveryProof

	// Version is the optimistic concurrency token, bumped on every update.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Params holds the input for creating an order.
type Params struct {
	Actor           auth.Actor
	AddressID       string
	PaymentMethod   PaymentMethod
	PaymentIntentID string
	IdempotencyKey  string
	Lines           []cart.Line
	DeliveryFee     decimal.Decimal
	Now             time.Time
}

// New creates a pending order from a cart snapshot. The address must have been
// resolved by the caller; an empty AddressID is rejected.
func New(p Params) (*Order, error) {
	if len(p.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	if p.AddressID == "" {
		return nil, ErrInvalidAddress
	}
	if !p.PaymentMethod.Valid() {
		return nil, errors.Wrapf(ErrInvalidPayment, "method %q", p.PaymentMethod)
	}
	if p.PaymentMethod == PaymentCard && p.PaymentIntentID == "" {
		return nil, ErrInvalidPayment
	}
	if p.DeliveryFee.IsNegative() {
		return nil, errors.Errorf("negative delivery fee %s", p.DeliveryFee)
	}

	items := make([]LineItem, len(p.Lines))
	for i, l := range p.Lines {
		if err := l.Unit.Validate(l.Quantity); err != nil {
			return nil, &InvalidQuantityError{ItemID: l.ItemID, Err: err}
		}
		items[i] = LineItem{
			ID:               uuid.New().String(),
			ItemID:           l.ItemID,
			Name:             l.Name,
			Category:         l.Category,
			Price:            l.Price,
			Points:           l.Points,
			Unit:             l.Unit,
			Quantity:         l.Quantity,
			ReservedQuantity: l.Quantity,
		}
	}

	now := p.Now.UTC()
	o := &Order{
		ID:              uuid.New().String(),
		UserID:          p.Actor.ID,
		UserRole:        p.Actor.Role,
		AddressID:       p.AddressID,
		PaymentMethod:   p.PaymentMethod,
		PaymentIntentID: p.PaymentIntentID,
		IdempotencyKey:  p.IdempotencyKey,
		Items:           items,
		DeliveryFee:     p.DeliveryFee,
		Status:          StatusPending,
		History: []StatusEntry{{
			Seq:       1,
			Status:    StatusPending,
			At:        now,
			ActorID:   p.Actor.ID,
			ActorRole: p.Actor.Role,
		}},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.TotalAmount = o.RecomputeTotal()
	return o, nil
}

// RecomputeTotal returns Σ price × quantity + delivery fee, rounded to cents.
// Prices are the captured contractual prices and are never re-marked-up.
func (o *Order) RecomputeTotal() decimal.Decimal {
	sum := o.DeliveryFee
	for _, it := range o.Items {
		sum = sum.Add(it.Price.Mul(it.Quantity))
	}
	return sum.Round(2)
}

// Line returns a pointer to the line with the given id.
func (o *Order) Line(lineID string) (*LineItem, bool) {
	for i := range o.Items {
		if o.Items[i].ID == lineID {
			return &o.Items[i], true
		}
	}
	return nil, false
}

// RecordReservation stores how much stock was actually reserved for a line
// and notes any shortfall for the courier adjustment at collection.
func (o *Order) RecordReservation(lineID string, reserved decimal.Decimal) {
	l, ok := o.Line(lineID)
	if !ok {
		return
	}
	l.ReservedQuantity = reserved
	if l.Shortfall().IsPositive() {
		o.QuantityAdjustmentNotes = append(o.QuantityAdjustmentNotes,
			fmt.Sprintf("%s: only %s of %s %s in stock at order time", l.Name.En, reserved, l.Quantity, l.Unit))
	}
}

// HasShortfall reports whether any line was only partially reserved.
func (o *Order) HasShortfall() bool {
	for _, it := range o.Items {
		if it.Shortfall().IsPositive() {
			return true
		}
	}
	return false
}

// CanView reports whether the actor may read the order.
func (o *Order) CanView(a auth.Actor) bool {
	return a.IsAdmin() || a.Owns(o.UserID) || o.isAssignedCourier(a)
}

// Authorize checks role and ownership rules for moving the order to target.
func (o *Order) Authorize(a auth.Actor, target Status) error {
	var ok bool
	switch target {
	case StatusAssignToCourier:
		ok = a.IsAdmin()
	case StatusCancelled:
		ok = a.IsAdmin() || a.Owns(o.UserID)
	case StatusCollected, StatusCompleted:
		ok = a.IsAdmin() || o.isAssignedCourier(a)
	}
	if !ok {
		return errors.Wrapf(ErrForbidden, "%s cannot move order to %s", a.Role, target)
	}
	return nil
}

func (o *Order) isAssignedCourier(a auth.Actor) bool {
	return a.Role == auth.RoleDelivery && o.CourierID != "" && a.ID == o.CourierID
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]LineItem(nil), o.Items...)
	c.History = append([]StatusEntry(nil), o.History...)
	c.QuantityAdjustmentNotes = append([]string(nil), o.QuantityAdjustmentNotes...)
	if o.CollectedAt != nil {
		t := *o.CollectedAt
		c.CollectedAt = &t
	}
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		c.CompletedAt = &t
	}
	if o.DeliveryProof != nil {
		p := *o.DeliveryProof
		c.DeliveryProof = &p
	}
	return &c
}

// ListFilter narrows ListByUser. An empty Status matches every status.
type ListFilter struct {
	Status Status
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists a new order. A duplicate idempotency key for the same
	// user returns ErrConflict.
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// GetForUpdate loads the order and locks it until the transaction ends.
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	// Update writes mutable fields, appends new history entries and bumps
	// Version. It returns ErrConflict when the stored version differs from
	// expectedVersion.
	Update(ctx context.Context, o *Order, expectedVersion int64) error
	ListByUser(ctx context.Context, userID string, f ListFilter) ([]Order, error)
	ListByCourier(ctx context.Context, courierID string) ([]Order, error)
	FindByIdempotencyKey(ctx context.Context, userID, key string) (*Order, error)
	Delete(ctx context.Context, id string) error
}
