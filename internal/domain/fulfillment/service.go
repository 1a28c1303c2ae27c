// Package fulfillment orchestrates order creation and status transitions.
// Every operation runs in one storage transaction spanning the order write,
// the stock movements, the points grants and the notification outbox rows it
// triggers.
package fulfillment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/recycle-market/internal/domain/address"
	"github.com/xenking/recycle-market/internal/domain/auth"
	"github.com/xenking/recycle-market/internal/domain/cart"
	"github.com/xenking/recycle-market/internal/domain/courier"
	"github.com/xenking/recycle-market/internal/domain/order"
	"github.com/xenking/recycle-market/internal/domain/stock"
	"github.com/xenking/recycle-market/internal/storage"
)

// ErrServiceUnavailable is returned when transient infrastructure failures
// persist after all transaction attempts.
var ErrServiceUnavailable = storage.ErrUnavailable

// ErrCourierUnavailable is returned when assigning a courier that is not
// approved or not available.
var ErrCourierUnavailable = errors.New("courier is not approved or not available")

// Carts is the cart collaborator.
type Carts interface {
	Get(ctx context.Context, owner string) (*cart.Cart, error)
	Clear(ctx context.Context, owner string) error
}

// Config holds fulfillment policy.
type Config struct {
	DeliveryFee decimal.Decimal
	Policy      stock.ReservationPolicy
	// TxAttempts bounds how often a transaction hitting a transient failure
	// is tried.
	TxAttempts   int
	RetryInitial time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithTracerProvider sets the tracer provider. Defaults to noop.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		s.tracer = tp.Tracer("github.com/xenking/recycle-market/fulfillment")
	}
}

// WithMeterProvider sets the meter provider. Defaults to noop.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) {
		s.meter = mp.Meter("github.com/xenking/recycle-market/fulfillment")
	}
}

// WithLogger sets the service logger. Defaults to zap.NewNop.
func WithLogger(lg *zap.Logger) Option {
	return func(s *Service) {
		s.lg = lg
	}
}

// Service is the Fulfillment State Machine.
type Service struct {
	tx        storage.Transactor
	orders    order.Repository
	carts     Carts
	addresses address.Repository
	couriers  courier.Directory
	cfg       Config

	lg          *zap.Logger
	tracer      trace.Tracer
	meter       metric.Meter
	created     metric.Int64Counter
	transitions metric.Int64Counter
	retries     metric.Int64Counter

	now func() time.Time
}

// NewService creates the fulfillment Service. orders is used for reads
// outside transactions.
func NewService(
	tx storage.Transactor,
	orders order.Repository,
	carts Carts,
	addresses address.Repository,
	couriers courier.Directory,
	cfg Config,
	opts ...Option,
) (*Service, error) {
	if cfg.Policy == "" {
		cfg.Policy = stock.PolicyPartial
	}
	if cfg.TxAttempts <= 0 {
		cfg.TxAttempts = 3
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = 50 * time.Millisecond
	}
	s := &Service{
		tx:        tx,
		orders:    orders,
		carts:     carts,
		addresses: addresses,
		couriers:  couriers,
		cfg:       cfg,
		lg:        zap.NewNop(),
		tracer:    tracenoop.NewTracerProvider().Tracer(""),
		meter:     metricnoop.NewMeterProvider().Meter(""),
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}

	var err error
	if s.created, err = s.meter.Int64Counter("fulfillment.orders.created",
		metric.WithDescription("Orders created"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.created counter")
	}
	if s.transitions, err = s.meter.Int64Counter("fulfillment.transitions",
		metric.WithDescription("Order status transitions by target and outcome"),
	); err != nil {
		return nil, errors.Wrap(err, "transitions counter")
	}
	if s.retries, err = s.meter.Int64Counter("fulfillment.tx.retries",
		metric.WithDescription("Transactions retried after a transient failure"),
	); err != nil {
		return nil, errors.Wrap(err, "tx.retries counter")
	}
	return s, nil
}

// CreateRequest holds the input for creating an order from the actor's cart.
type CreateRequest struct {
	AddressID       string
	PaymentMethod   order.PaymentMethod
	PaymentIntentID string
	IdempotencyKey  string
}

// CreateOrder turns the actor's cart into a pending order, reserving stock for
// every line. The cart is cleared once the order is committed.
func (s *Service) CreateOrder(ctx context.Context, actor auth.Actor, req CreateRequest) (_ *order.Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "fulfillment.CreateOrder",
		trace.WithAttributes(attribute.String("actor.role", string(actor.Role))),
	)
	defer func() { endSpan(span, rerr) }()

	if actor.Role != auth.RoleCustomer && actor.Role != auth.RoleBuyer {
		return nil, errors.Wrapf(order.ErrForbidden, "%s cannot place orders", actor.Role)
	}

	if req.IdempotencyKey != "" {
		existing, err := s.orders.FindByIdempotencyKey(ctx, actor.ID, req.IdempotencyKey)
		switch {
		case err == nil:
			return existing, nil
		case !errors.Is(err, order.ErrNotFound):
			return nil, errors.Wrap(err, "find by idempotency key")
		}
	}

	if _, err := s.addresses.Get(ctx, actor.ID, req.AddressID); err != nil {
		if errors.Is(err, address.ErrNotFound) {
			return nil, errors.Wrapf(order.ErrInvalidAddress, "address %q", req.AddressID)
		}
		return nil, errors.Wrap(err, "get address")
	}

	c, err := s.carts.Get(ctx, actor.ID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if c.IsEmpty() {
		return nil, order.ErrEmptyCart
	}

	var created *order.Order
	err = s.inTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		o, err := order.New(order.Params{
			Actor:           actor,
			AddressID:       req.AddressID,
			PaymentMethod:   req.PaymentMethod,
			PaymentIntentID: req.PaymentIntentID,
			IdempotencyKey:  req.IdempotencyKey,
			Lines:           c.Lines,
			DeliveryFee:     s.cfg.DeliveryFee,
			Now:             s.now(),
		})
		if err != nil {
			return err
		}
		for _, it := range o.Items {
			reserved, err := s.cfg.Policy.Reserve(ctx, tx.Stock(), it.ItemID, it.Quantity)
			if err != nil {
				return errors.Wrapf(err, "reserve %s", it.ItemID)
			}
			o.RecordReservation(it.ID, reserved)
		}
		if err := tx.Orders().Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		if err := tx.Outbox().Enqueue(ctx, orderCreatedMessage(o, s.now())); err != nil {
			return errors.Wrap(err, "enqueue order_created")
		}
		created = o
		return nil
	})
	if err != nil {
		if req.IdempotencyKey != "" && errors.Is(err, order.ErrConflict) {
			// Lost a race against the same request.
			return s.orders.FindByIdempotencyKey(ctx, actor.ID, req.IdempotencyKey)
		}
		return nil, err
	}

	s.created.Add(ctx, 1, metric.WithAttributes(attribute.String("role", string(actor.Role))))
	lg := s.lg.With(zap.String("order_id", created.ID), zap.String("user_id", actor.ID))
	if created.HasShortfall() {
		lg.Info("Order created with partial stock reservation")
	}
	if err := s.carts.Clear(ctx, actor.ID); err != nil {
		lg.Warn("Failed to clear cart after order creation", zap.Error(err))
	}
	return created, nil
}

// GetOrder returns the order if the actor owns it, is its courier or is an
// admin.
func (s *Service) GetOrder(ctx context.Context, actor auth.Actor, orderID string) (*order.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.CanView(actor) {
		return nil, order.ErrForbidden
	}
	return o, nil
}

// ListOrdersForUser lists a user's orders, optionally by status.
func (s *Service) ListOrdersForUser(ctx context.Context, actor auth.Actor, userID string, f order.ListFilter) ([]order.Order, error) {
	if !actor.IsAdmin() && !actor.Owns(userID) {
		return nil, order.ErrForbidden
	}
	return s.orders.ListByUser(ctx, userID, f)
}

// ListOrdersForCourier lists orders assigned to a courier.
func (s *Service) ListOrdersForCourier(ctx context.Context, actor auth.Actor, courierID string) ([]order.Order, error) {
	if !actor.IsAdmin() && !(actor.Role == auth.RoleDelivery && actor.Owns(courierID)) {
		return nil, order.ErrForbidden
	}
	return s.orders.ListByCourier(ctx, courierID)
}

// DeleteOrder removes a terminal order with its lines, history and proof.
// Ledger and notification entries keep their order id as a weak reference.
func (s *Service) DeleteOrder(ctx context.Context, actor auth.Actor, orderID string) error {
	if !actor.IsAdmin() {
		return order.ErrForbidden
	}
	return s.inTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		o, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.Status.Terminal() {
			return errors.Wrapf(order.ErrActiveOrder, "order is %s", o.Status)
		}
		return tx.Orders().Delete(ctx, orderID)
	})
}

// inTx runs fn in a transaction, retrying transient failures.
func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return storage.WithRetry(ctx, s.tx, storage.RetryPolicy{
		Attempts: s.cfg.TxAttempts,
		Initial:  s.cfg.RetryInitial,
		OnRetry: func(attempt int, err error) {
			s.retries.Add(ctx, 1)
			s.lg.Debug("Retrying transaction", zap.Int("attempt", attempt), zap.Error(err))
		},
	}, fn)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
