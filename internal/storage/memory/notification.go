package memory

import (
	"context"
	"sort"
	"time"

	"github.com/xenking/recycle-market/internal/domain/notification"
)

var (
	_ notification.Repository = notificationRepo{}
	_ notification.Outbox     = notificationRepo{}
)

type notificationRepo struct {
	b binding
}

func (r notificationRepo) Enqueue(_ context.Context, n *notification.Notification) error {
	return r.b.do(func(st *state) error {
		cp := *n
		st.notifications[n.ID] = &cp
		return nil
	})
}

func (r notificationRepo) ListForUser(_ context.Context, userID string, unreadOnly bool) ([]notification.Notification, error) {
	return r.list(func(n *notification.Notification) bool {
		return n.UserID == userID && (!unreadOnly || !n.IsRead)
	}, true, 0)
}

func (r notificationRepo) SetRead(_ context.Context, userID, id string, read bool) error {
	return r.b.do(func(st *state) error {
		n, ok := st.notifications[id]
		if !ok || n.UserID != userID {
			return notification.ErrNotFound
		}
		n.IsRead = read
		return nil
	})
}

func (r notificationRepo) Delete(_ context.Context, userID string, ids []string) (int, error) {
	var removed int
	err := r.b.do(func(st *state) error {
		for _, id := range ids {
			if n, ok := st.notifications[id]; ok && n.UserID == userID {
				delete(st.notifications, id)
				removed++
			}
		}
		return nil
	})
	return removed, err
}

func (r notificationRepo) Pending(_ context.Context, now time.Time, limit int) ([]notification.Notification, error) {
	return r.list(func(n *notification.Notification) bool {
		return n.DeliveredAt == nil && !n.NextAttemptAt.After(now)
	}, false, limit)
}

func (r notificationRepo) MarkDelivered(_ context.Context, id string, at time.Time) error {
	return r.b.do(func(st *state) error {
		n, ok := st.notifications[id]
		if !ok {
			return notification.ErrNotFound
		}
		at = at.UTC()
		n.DeliveredAt = &at
		n.Attempts++
		n.LastError = ""
		return nil
	})
}

func (r notificationRepo) MarkFailed(_ context.Context, id, reason string, next time.Time) error {
	return r.b.do(func(st *state) error {
		n, ok := st.notifications[id]
		if !ok {
			return notification.ErrNotFound
		}
		n.Attempts++
		n.LastError = reason
		n.NextAttemptAt = next.UTC()
		return nil
	})
}

func (r notificationRepo) list(match func(n *notification.Notification) bool, newestFirst bool, limit int) ([]notification.Notification, error) {
	var out []notification.Notification
	err := r.b.do(func(st *state) error {
		for _, n := range st.notifications {
			if match(n) {
				out = append(out, *n)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}
