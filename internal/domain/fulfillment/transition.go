package fulfillment

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/recycle-market/internal/domain/auth"
	"github.com/xenking/recycle-market/internal/domain/courier"
	"github.com/xenking/recycle-market/internal/domain/ledger"
	"github.com/xenking/recycle-market/internal/domain/order"
	"github.com/xenking/recycle-market/internal/storage"
)

// CollectedLine is one entry of the courier's pickup manifest.
type CollectedLine struct {
	LineID   string
	Quantity decimal.Decimal
}

// TransitionRequest carries the target status and its payload.
type TransitionRequest struct {
	Target order.Status
	// CourierID is required for assigntocourier.
	CourierID string
	// Reason is required for cancelled.
	Reason string
	// Collected is the pickup manifest for collected.
	Collected []CollectedLine
	// Proof is required for completed.
	Proof order.DeliveryProof
	Notes string
	// ExpectedVersion, when non-zero, must match the stored order version.
	// Zero skips the check: the change then applies to whatever state the
	// order is in once its row lock is held, so a cancel that arrives after
	// an assignment cancels the assigned order.
	ExpectedVersion int64
}

// Transition applies one status change with all its side effects, or none of
// them. Changes to the same order are serialized on the order row; callers
// that need two racing changes to be mutually exclusive pass the version
// they read as ExpectedVersion, and the loser gets order.ErrConflict.
func (s *Service) Transition(ctx context.Context, actor auth.Actor, orderID string, req TransitionRequest) (_ *order.Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "fulfillment.Transition",
		trace.WithAttributes(
			attribute.String("order.id", orderID),
			attribute.String("order.target", string(req.Target)),
			attribute.String("actor.role", string(actor.Role)),
		),
	)
	defer func() {
		outcome := "ok"
		if rerr != nil {
			outcome = "rejected"
		}
		s.transitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("target", string(req.Target)),
			attribute.String("outcome", outcome),
		))
		endSpan(span, rerr)
	}()

	var result *order.Order
	err := s.inTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		o, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if req.ExpectedVersion != 0 && req.ExpectedVersion != o.Version {
			return errors.Wrapf(order.ErrConflict, "expected version %d, have %d", req.ExpectedVersion, o.Version)
		}
		if !order.CanTransition(o.Status, req.Target) {
			return &order.TransitionError{From: o.Status, To: req.Target}
		}
		if err := o.Authorize(actor, req.Target); err != nil {
			return err
		}

		version := o.Version
		if err := s.apply(ctx, tx, actor, o, req); err != nil {
			return err
		}
		if err := tx.Orders().Update(ctx, o, version); err != nil {
			return errors.Wrap(err, "update order")
		}
		result = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.lg.Info("Order transitioned",
		zap.String("order_id", result.ID),
		zap.String("status", string(result.Status)),
		zap.String("actor_id", actor.ID),
	)
	return result, nil
}

func (s *Service) apply(ctx context.Context, tx storage.Tx, actor auth.Actor, o *order.Order, req TransitionRequest) error {
	switch req.Target {
	case order.StatusAssignToCourier:
		return s.assign(ctx, tx, actor, o, req)
	case order.StatusCancelled:
		return s.cancel(ctx, tx, actor, o, req)
	case order.StatusCollected:
		return s.collect(ctx, tx, actor, o, req)
	case order.StatusCompleted:
		return s.complete(ctx, tx, actor, o, req)
	default:
		return &order.TransitionError{From: o.Status, To: req.Target}
	}
}

func (s *Service) assign(ctx context.Context, tx storage.Tx, actor auth.Actor, o *order.Order, req TransitionRequest) error {
	if req.CourierID == "" {
		return order.ErrCourierRequired
	}
	ok, err := s.couriers.IsApprovedAndAvailable(ctx, req.CourierID)
	if err != nil && !errors.Is(err, courier.ErrNotFound) {
		return errors.Wrap(err, "check courier")
	}
	if !ok {
		return errors.Wrapf(ErrCourierUnavailable, "courier %s", req.CourierID)
	}
	if err := o.Assign(actor, req.CourierID, req.Notes, s.now()); err != nil {
		return err
	}
	return tx.Outbox().Enqueue(ctx, orderAssignedMessage(o, s.now()))
}

func (s *Service) cancel(ctx context.Context, tx storage.Tx, actor auth.Actor, o *order.Order, req TransitionRequest) error {
	releases, err := o.Cancel(actor, req.Reason, s.now())
	if err != nil {
		return err
	}
	for _, r := range releases {
		if _, err := tx.Stock().Adjust(ctx, r.ItemID, r.Quantity); err != nil {
			return errors.Wrapf(err, "release stock for %s", r.ItemID)
		}
	}
	return tx.Outbox().Enqueue(ctx, orderCancelledMessage(o, s.now()))
}

func (s *Service) collect(ctx context.Context, tx storage.Tx, actor auth.Actor, o *order.Order, req TransitionRequest) error {
	manifest := make(map[string]decimal.Decimal, len(req.Collected))
	for _, c := range req.Collected {
		manifest[c.LineID] = c.Quantity
	}
	recs, err := o.Collect(actor, manifest, req.Notes, s.now())
	if err != nil {
		return err
	}

	for _, r := range recs {
		if r.Delta.IsPositive() {
			if _, err := tx.Stock().Adjust(ctx, r.ItemID, r.Delta); err != nil {
				return errors.Wrapf(err, "return stock for %s", r.ItemID)
			}
			continue
		}
		extra := r.Delta.Neg()
		got, err := tx.Stock().Reserve(ctx, r.ItemID, extra)
		if err != nil {
			return errors.Wrapf(err, "reserve extra stock for %s", r.ItemID)
		}
		if got.LessThan(extra) {
			o.CapCollected(r.LineID, r.Reserved.Add(got))
		}
	}
	return tx.Outbox().Enqueue(ctx, orderCollectedMessage(o, s.now()))
}

func (s *Service) complete(ctx context.Context, tx storage.Tx, actor auth.Actor, o *order.Order, req TransitionRequest) error {
	if err := o.Complete(actor, req.Proof, s.now()); err != nil {
		return err
	}

	var granted int64
	if o.UserRole == auth.RoleCustomer {
		n, err := s.grantPoints(ctx, tx, o)
		if err != nil {
			return errors.Wrap(err, "grant points")
		}
		granted = n
	}
	return tx.Outbox().Enqueue(ctx, orderCompletedMessage(o, granted, s.now()))
}

// grantPoints appends one earned entry per line unless the order already has
// completion entries, so replays never double-grant.
func (s *Service) grantPoints(ctx context.Context, tx storage.Tx, o *order.Order) (int64, error) {
	exists, err := tx.Ledger().HasOrderEntry(ctx, ledger.BookPoints, o.UserID, o.ID, order.PointsReason)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, nil
	}

	var total int64
	for _, g := range o.EarnedPoints() {
		e, err := ledger.NewEntry(ledger.Draft{
			UserID:  o.UserID,
			Type:    ledger.TypeEarned,
			Amount:  g.Points,
			Reason:  order.PointsReason,
			OrderID: o.ID,
		}, s.now())
		if err != nil {
			return 0, err
		}
		if err := tx.Ledger().Append(ctx, e); err != nil {
			return 0, err
		}
		total += g.Points.IntPart()
	}
	return total, nil
}
