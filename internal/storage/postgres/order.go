package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/recycle-market/internal/domain/auth"
	"github.com/xenking/recycle-market/internal/domain/measure"
	"github.com/xenking/recycle-market/internal/domain/order"
)

const orderColumns = `id, user_id, user_role, address_id, payment_method, payment_intent_id,
	idempotency_key, delivery_fee, total_amount, status, courier_id, collected_at, completed_at,
	cancel_reason, has_quantity_adjustments, quantity_adjustment_notes, version, created_at, updated_at`

const (
	insertOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	insertOrderItemSQL = `INSERT INTO order_items (id, order_id, position, item_id, name_en, name_ar,
		category_en, category_ar, price, points, unit, quantity, reserved_quantity, original_quantity,
		quantity_adjusted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	insertHistorySQL = `INSERT INTO order_status_history (order_id, seq, status, at, actor_id, actor_role, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (order_id, seq) DO NOTHING`

	insertProofSQL = `INSERT INTO delivery_proofs (order_id, photo_url, notes, submitted_by, submitted_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id) DO NOTHING`

	getOrderSQL          = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	getOrderForUpdateSQL = getOrderSQL + ` FOR UPDATE`

	findByIdempotencyKeySQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 AND idempotency_key = $2`

	listByUserSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC`

	listByCourierSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE courier_id = $1
		ORDER BY created_at DESC`

	updateOrderSQL = `UPDATE orders SET status = $3, courier_id = $4, collected_at = $5, completed_at = $6,
		cancel_reason = $7, total_amount = $8, has_quantity_adjustments = $9,
		quantity_adjustment_notes = $10, version = version + 1, updated_at = $11
		WHERE id = $1 AND version = $2`

	updateOrderItemSQL = `UPDATE order_items SET quantity = $2, reserved_quantity = $3,
		original_quantity = $4, quantity_adjusted = $5
		WHERE id = $1`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	listItemsSQL = `SELECT order_id, id, item_id, name_en, name_ar, category_en, category_ar, price, points,
		unit, quantity, reserved_quantity, original_quantity, quantity_adjusted
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`

	listHistorySQL = `SELECT order_id, seq, status, at, actor_id, actor_role, notes
		FROM order_status_history WHERE order_id = ANY($1) ORDER BY order_id, seq`

	listProofsSQL = `SELECT order_id, photo_url, notes, submitted_by, submitted_at
		FROM delivery_proofs WHERE order_id = ANY($1)`
)

const (
	orderPKey              = "orders_pkey"
	orderIdempotencyKeyIdx = "orders_idempotency_key"
)

var _ order.Repository = orderRepo{}

type orderRepo struct {
	q querier
}

func (r orderRepo) Create(ctx context.Context, o *order.Order) error {
	_, err := r.q.Exec(ctx, insertOrderSQL,
		o.ID, o.UserID, string(o.UserRole), o.AddressID, string(o.PaymentMethod), o.PaymentIntentID,
		nullable(o.IdempotencyKey), o.DeliveryFee, o.TotalAmount, string(o.Status), nullable(o.CourierID),
		o.CollectedAt, o.CompletedAt, o.CancelReason, o.HasQuantityAdjustments,
		notes(o.QuantityAdjustmentNotes), o.Version, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, orderIdempotencyKeyIdx) || isUniqueViolation(err, orderPKey) {
			return errors.Wrapf(order.ErrConflict, "order %s already exists", o.ID)
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	b := &pgx.Batch{}
	for i, it := range o.Items {
		b.Queue(insertOrderItemSQL,
			it.ID, o.ID, i, it.ItemID, it.Name.En, it.Name.Ar, it.Category.En, it.Category.Ar,
			it.Price, it.Points, it.Unit.String(), it.Quantity, it.ReservedQuantity, it.OriginalQuantity,
			it.QuantityAdjusted,
		)
	}
	queueChildren(b, o)
	if err := r.q.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("creating order %q children: %w", o.ID, err)
	}
	return nil
}

func (r orderRepo) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderSQL, id)
}

func (r orderRepo) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderForUpdateSQL, id)
}

func (r orderRepo) FindByIdempotencyKey(ctx context.Context, userID, key string) (*order.Order, error) {
	return r.getOne(ctx, findByIdempotencyKeySQL, userID, key)
}

func (r orderRepo) getOne(ctx context.Context, sql string, args ...any) (*order.Order, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}
	if err := r.loadChildren(ctx, []*order.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r orderRepo) Update(ctx context.Context, o *order.Order, expectedVersion int64) error {
	tag, err := r.q.Exec(ctx, updateOrderSQL,
		o.ID, expectedVersion, string(o.Status), nullable(o.CourierID), o.CollectedAt, o.CompletedAt,
		o.CancelReason, o.TotalAmount, o.HasQuantityAdjustments, notes(o.QuantityAdjustmentNotes),
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.q.QueryRow(ctx, orderExistsSQL, o.ID).Scan(&exists); err != nil {
			return fmt.Errorf("checking order %q: %w", o.ID, err)
		}
		if !exists {
			return order.ErrNotFound
		}
		return errors.Wrapf(order.ErrConflict, "order %s is not at version %d", o.ID, expectedVersion)
	}

	b := &pgx.Batch{}
	for _, it := range o.Items {
		b.Queue(updateOrderItemSQL, it.ID, it.Quantity, it.ReservedQuantity, it.OriginalQuantity, it.QuantityAdjusted)
	}
	queueChildren(b, o)
	if err := r.q.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("updating order %q children: %w", o.ID, err)
	}
	o.Version = expectedVersion + 1
	return nil
}

// queueChildren appends history and proof rows. Existing rows are left alone,
// which keeps history append-only.
func queueChildren(b *pgx.Batch, o *order.Order) {
	for _, h := range o.History {
		b.Queue(insertHistorySQL, o.ID, h.Seq, string(h.Status), h.At, h.ActorID, string(h.ActorRole), h.Notes)
	}
	if p := o.DeliveryProof; p != nil {
		b.Queue(insertProofSQL, o.ID, p.PhotoURL, p.Notes, p.SubmittedBy, p.SubmittedAt)
	}
}

func (r orderRepo) ListByUser(ctx context.Context, userID string, f order.ListFilter) ([]order.Order, error) {
	return r.list(ctx, listByUserSQL, userID, string(f.Status))
}

func (r orderRepo) ListByCourier(ctx context.Context, courierID string) ([]order.Order, error) {
	return r.list(ctx, listByCourierSQL, courierID)
}

func (r orderRepo) list(ctx context.Context, sql string, args ...any) ([]order.Order, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	ptrs, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	if err := r.loadChildren(ctx, ptrs); err != nil {
		return nil, err
	}
	out := make([]order.Order, len(ptrs))
	for i, o := range ptrs {
		out[i] = *o
	}
	return out, nil
}

func (r orderRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, deleteOrderSQL, id)
	if err != nil {
		return fmt.Errorf("deleting order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// loadChildren fills lines, history and proofs for orders in three queries.
func (r orderRepo) loadChildren(ctx context.Context, orders []*order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	byID := make(map[string]*order.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
	}

	rows, err := r.q.Query(ctx, listItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanLineItem)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	for _, it := range items {
		o := byID[it.orderID]
		o.Items = append(o.Items, it.LineItem)
	}

	rows, err = r.q.Query(ctx, listHistorySQL, ids)
	if err != nil {
		return fmt.Errorf("listing order history: %w", err)
	}
	history, err := pgx.CollectRows(rows, scanStatusEntry)
	if err != nil {
		return fmt.Errorf("listing order history: %w", err)
	}
	for _, h := range history {
		o := byID[h.orderID]
		o.History = append(o.History, h.StatusEntry)
	}

	rows, err = r.q.Query(ctx, listProofsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing delivery proofs: %w", err)
	}
	proofs, err := pgx.CollectRows(rows, scanProof)
	if err != nil {
		return fmt.Errorf("listing delivery proofs: %w", err)
	}
	for _, p := range proofs {
		proof := p.DeliveryProof
		byID[p.orderID].DeliveryProof = &proof
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var (
		o              order.Order
		userRole       string
		paymentMethod  string
		idempotencyKey *string
		status         string
		courierID      *string
		adjustNotes    []string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &userRole, &o.AddressID, &paymentMethod, &o.PaymentIntentID,
		&idempotencyKey, &o.DeliveryFee, &o.TotalAmount, &status, &courierID, &o.CollectedAt, &o.CompletedAt,
		&o.CancelReason, &o.HasQuantityAdjustments, &adjustNotes, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.UserRole = auth.Role(userRole)
	o.PaymentMethod = order.PaymentMethod(paymentMethod)
	o.IdempotencyKey = deref(idempotencyKey)
	o.Status = order.Status(status)
	o.CourierID = deref(courierID)
	if len(adjustNotes) > 0 {
		o.QuantityAdjustmentNotes = adjustNotes
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	o.CollectedAt = utcPtr(o.CollectedAt)
	o.CompletedAt = utcPtr(o.CompletedAt)
	return &o, nil
}

type lineRow struct {
	orderID string
	order.LineItem
}

func scanLineItem(row pgx.CollectableRow) (lineRow, error) {
	var (
		l    lineRow
		unit string
	)
	err := row.Scan(
		&l.orderID, &l.ID, &l.ItemID, &l.Name.En, &l.Name.Ar, &l.Category.En, &l.Category.Ar,
		&l.Price, &l.Points, &unit, &l.Quantity, &l.ReservedQuantity, &l.OriginalQuantity, &l.QuantityAdjusted,
	)
	if err != nil {
		return l, err
	}
	l.Unit, err = measure.Parse(unit)
	return l, err
}

type historyRow struct {
	orderID string
	order.StatusEntry
}

func scanStatusEntry(row pgx.CollectableRow) (historyRow, error) {
	var (
		h         historyRow
		status    string
		actorRole string
	)
	err := row.Scan(&h.orderID, &h.Seq, &status, &h.At, &h.ActorID, &actorRole, &h.Notes)
	h.Status = order.Status(status)
	h.ActorRole = auth.Role(actorRole)
	h.At = h.At.UTC()
	return h, err
}

type proofRow struct {
	orderID string
	order.DeliveryProof
}

func scanProof(row pgx.CollectableRow) (proofRow, error) {
	var p proofRow
	err := row.Scan(&p.orderID, &p.PhotoURL, &p.Notes, &p.SubmittedBy, &p.SubmittedAt)
	p.SubmittedAt = p.SubmittedAt.UTC()
	return p, err
}

func notes(n []string) []string {
	if n == nil {
		return []string{}
	}
	return n
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
