// Package notification defines the per-user notification records emitted by
// order transitions and the outbox relay that publishes them.
package notification

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/recycle-market/internal/domain/i18n"
)

// Type is the event type of a notification.
type Type string

const (
	TypeOrderCreated   Type = "order_created"
	TypeOrderAssigned  Type = "order_assigned"
	TypeOrderCollected Type = "order_collected"
	TypeOrderCancelled Type = "order_cancelled"
	TypeOrderCompleted Type = "order_completed"
)

// OpsChannel is the recipient id of admin/operations notifications.
const OpsChannel = "ops"

// ErrNotFound is returned when the notification does not exist for the user.
var ErrNotFound = errors.New("notification not found")

// Notification is a content-immutable record. Only IsRead and the delivery
// bookkeeping fields change after creation.
type Notification struct {
	ID      string
	UserID  string
	Title   i18n.Text
	Body    i18n.Text
	Type    Type
	OrderID string
	Payload map[string]string
	IsRead  bool

	CreatedAt     time.Time
	DeliveredAt   *time.Time
	Attempts      int
	LastError     string
	NextAttemptAt time.Time
}

// New creates a notification ready to be enqueued.
func New(userID string, typ Type, title, body i18n.Text, orderID string, payload map[string]string, now time.Time) *Notification {
	now = now.UTC()
	return &Notification{
		ID:            uuid.New().String(),
		UserID:        userID,
		Title:         title.WithFallback(),
		Body:          body.WithFallback(),
		Type:          typ,
		OrderID:       orderID,
		Payload:       payload,
		CreatedAt:     now,
		NextAttemptAt: now,
	}
}

// Outbox stores notifications inside the transaction of the transition that
// emits them.
type Outbox interface {
	Enqueue(ctx context.Context, n *Notification) error
}

// Repository reads and maintains stored notifications.
type Repository interface {
	ListForUser(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error)
	SetRead(ctx context.Context, userID, id string, read bool) error
	// Delete removes the user's notifications with the given ids and returns
	// how many were removed.
	Delete(ctx context.Context, userID string, ids []string) (int, error)
	// Pending returns undelivered notifications due at or before now.
	Pending(ctx context.Context, now time.Time, limit int) ([]Notification, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id, reason string, next time.Time) error
}

// Publisher hands a notification to the delivery transport.
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}
