package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/recycle-market/internal/domain/auth"
)

// PointsReason is the ledger reason recorded for completion grants.
const PointsReason = "order completed"

// Release is stock handed back to the ledger for a line.
type Release struct {
	LineID   string
	ItemID   string
	Quantity decimal.Decimal
}

// Reconciliation describes the stock movement a collected line requires.
// A positive Delta returns stock; a negative Delta needs -Delta more stock.
type Reconciliation struct {
	LineID    string
	ItemID    string
	Reserved  decimal.Decimal
	Collected decimal.Decimal
	Delta     decimal.Decimal
}

// PointsGrant is the integer number of points a line earns on completion.
type PointsGrant struct {
	LineID string
	ItemID string
	Points decimal.Decimal
}

// Assign hands a pending order to a courier.
func (o *Order) Assign(a auth.Actor, courierID, notes string, now time.Time) error {
	if err := checkTransition(o.Status, StatusAssignToCourier); err != nil {
		return err
	}
	if courierID == "" {
		return ErrCourierRequired
	}
	o.CourierID = courierID
	o.advance(StatusAssignToCourier, a, notes, now)
	return nil
}

// Cancel cancels the order and returns the stock to release for every line.
func (o *Order) Cancel(a auth.Actor, reason string, now time.Time) ([]Release, error) {
	if err := checkTransition(o.Status, StatusCancelled); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}

	releases := make([]Release, 0, len(o.Items))
	for i := range o.Items {
		it := &o.Items[i]
		if it.ReservedQuantity.IsPositive() {
			releases = append(releases, Release{LineID: it.ID, ItemID: it.ItemID, Quantity: it.ReservedQuantity})
		}
		it.ReservedQuantity = decimal.Zero
	}
	o.CancelReason = reason
	o.advance(StatusCancelled, a, reason, now)
	return releases, nil
}

// Collect applies the courier manifest of collected quantities keyed by line
// id. Lines missing from the manifest are collected as ordered. Quantities
// that differ from the ordered ones are recorded as adjustments and the total
// is recomputed from the collected quantities.
func (o *Order) Collect(a auth.Actor, manifest map[string]decimal.Decimal, notes string, now time.Time) ([]Reconciliation, error) {
	if err := checkTransition(o.Status, StatusCollected); err != nil {
		return nil, err
	}
	for lineID, qty := range manifest {
		l, ok := o.Line(lineID)
		if !ok {
			return nil, errors.Wrapf(ErrUnknownLine, "line %s", lineID)
		}
		if err := l.Unit.ValidateCollected(qty); err != nil {
			return nil, &InvalidQuantityError{ItemID: l.ItemID, Err: err}
		}
	}

	var recs []Reconciliation
	for i := range o.Items {
		it := &o.Items[i]
		collected, ok := manifest[it.ID]
		if !ok {
			collected = it.Quantity
		}
		if !collected.Equal(it.Quantity) {
			if !it.OriginalQuantity.Valid {
				it.OriginalQuantity = decimal.NewNullDecimal(it.Quantity)
			}
			it.Quantity = collected
			it.QuantityAdjusted = true
			o.HasQuantityAdjustments = true
		}
		if delta := it.ReservedQuantity.Sub(collected); !delta.IsZero() {
			recs = append(recs, Reconciliation{
				LineID:    it.ID,
				ItemID:    it.ItemID,
				Reserved:  it.ReservedQuantity,
				Collected: collected,
				Delta:     delta,
			})
		}
		it.ReservedQuantity = collected
	}

	o.TotalAmount = o.RecomputeTotal()
	at := o.advance(StatusCollected, a, notes, now)
	o.CollectedAt = &at
	return recs, nil
}

// CapCollected lowers a collected line to the quantity stock could cover and
// records why.
func (o *Order) CapCollected(lineID string, qty decimal.Decimal) {
	it, ok := o.Line(lineID)
	if !ok || !qty.LessThan(it.Quantity) {
		return
	}
	note := fmt.Sprintf("%s: collected %s %s capped to available stock %s",
		it.Name.En, it.Quantity, it.Unit, qty)
	if !it.OriginalQuantity.Valid {
		it.OriginalQuantity = decimal.NewNullDecimal(it.Quantity)
	}
	it.Quantity = qty
	it.ReservedQuantity = qty
	it.QuantityAdjusted = !qty.Equal(it.OriginalQuantity.Decimal)
	o.HasQuantityAdjustments = true
	o.QuantityAdjustmentNotes = append(o.QuantityAdjustmentNotes, note)
	o.TotalAmount = o.RecomputeTotal()
}

// Complete attaches the delivery proof and closes the order.
func (o *Order) Complete(a auth.Actor, proof DeliveryProof, now time.Time) error {
	if err := checkTransition(o.Status, StatusCompleted); err != nil {
		return err
	}
	if strings.TrimSpace(proof.PhotoURL) == "" {
		return ErrProofRequired
	}
	at := o.advance(StatusCompleted, a, proof.Notes, now)
	proof.SubmittedBy = a.ID
	proof.SubmittedAt = at
	o.DeliveryProof = &proof
	o.CompletedAt = &at
	return nil
}

// EarnedPoints returns floor(points per unit × final quantity) per line,
// skipping lines that earn nothing.
func (o *Order) EarnedPoints() []PointsGrant {
	var grants []PointsGrant
	for _, it := range o.Items {
		pts := it.Points.Mul(it.Quantity).Floor()
		if !pts.IsPositive() {
			continue
		}
		grants = append(grants, PointsGrant{LineID: it.ID, ItemID: it.ItemID, Points: pts})
	}
	return grants
}

// advance appends one history entry. Timestamps never go backwards even if
// the clock does.
func (o *Order) advance(to Status, a auth.Actor, notes string, now time.Time) time.Time {
	at := now.UTC()
	if n := len(o.History); n > 0 && at.Before(o.History[n-1].At) {
		at = o.History[n-1].At
	}
	o.History = append(o.History, StatusEntry{
		Seq:       len(o.History) + 1,
		Status:    to,
		At:        at,
		ActorID:   a.ID,
		ActorRole: a.Role,
		Notes:     notes,
	})
	o.Status = to
	o.UpdatedAt = at
	return at
}
