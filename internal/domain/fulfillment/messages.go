package fulfillment

import (
	"fmt"
	"time"

	"github.com/xenking/recycle-market/internal/domain/i18n"
	"github.com/xenking/recycle-market/internal/domain/notification"
	"github.com/xenking/recycle-market/internal/domain/order"
)

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orderCreatedMessage(o *order.Order, now time.Time) *notification.Notification {
	ref := shortID(o.ID)
	return notification.New(notification.OpsChannel, notification.TypeOrderCreated,
		i18n.New("New order", "طلب جديد"),
		i18n.New(
			fmt.Sprintf("Order #%s was placed by a %s, total %s.", ref, o.UserRole, o.TotalAmount.StringFixed(2)),
			fmt.Sprintf("تم إنشاء الطلب رقم %s بإجمالي %s.", ref, o.TotalAmount.StringFixed(2)),
		),
		o.ID,
		map[string]string{
			"userId":  o.UserID,
			"total":   o.TotalAmount.StringFixed(2),
			"payment": string(o.PaymentMethod),
		},
		now,
	)
}

func orderAssignedMessage(o *order.Order, now time.Time) *notification.Notification {
	ref := shortID(o.ID)
	return notification.New(o.CourierID, notification.TypeOrderAssigned,
		i18n.New("New pickup assigned", "تم تعيين طلب جديد لك"),
		i18n.New(
			fmt.Sprintf("Order #%s has been assigned to you.", ref),
			fmt.Sprintf("تم تعيين الطلب رقم %s لك.", ref),
		),
		o.ID,
		map[string]string{"addressId": o.AddressID},
		now,
	)
}

func orderCancelledMessage(o *order.Order, now time.Time) *notification.Notification {
	ref := shortID(o.ID)
	return notification.New(o.UserID, notification.TypeOrderCancelled,
		i18n.New("Order cancelled", "تم إلغاء الطلب"),
		i18n.New(
			fmt.Sprintf("Order #%s was cancelled: %s", ref, o.CancelReason),
			fmt.Sprintf("تم إلغاء الطلب رقم %s: %s", ref, o.CancelReason),
		),
		o.ID,
		map[string]string{"reason": o.CancelReason},
		now,
	)
}

func orderCollectedMessage(o *order.Order, now time.Time) *notification.Notification {
	ref := shortID(o.ID)
	payload := map[string]string{"total": o.TotalAmount.StringFixed(2)}
	if o.HasQuantityAdjustments {
		payload["adjusted"] = "true"
	}
	return notification.New(o.UserID, notification.TypeOrderCollected,
		i18n.New("Order collected", "تم استلام الطلب"),
		i18n.New(
			fmt.Sprintf("The courier collected order #%s. Final total %s.", ref, o.TotalAmount.StringFixed(2)),
			fmt.Sprintf("استلم المندوب الطلب رقم %s. الإجمالي النهائي %s.", ref, o.TotalAmount.StringFixed(2)),
		),
		o.ID,
		payload,
		now,
	)
}

func orderCompletedMessage(o *order.Order, points int64, now time.Time) *notification.Notification {
	ref := shortID(o.ID)
	en := fmt.Sprintf("Order #%s is complete. Thank you for recycling!", ref)
	ar := fmt.Sprintf("تم إكمال الطلب رقم %s. شكراً لإعادة التدوير!", ref)
	payload := map[string]string{}
	if points > 0 {
		en = fmt.Sprintf("Order #%s is complete. You earned %d points.", ref, points)
		ar = fmt.Sprintf("تم إكمال الطلب رقم %s. لقد ربحت %d نقطة.", ref, points)
		payload["points"] = fmt.Sprint(points)
	}
	return notification.New(o.UserID, notification.TypeOrderCompleted,
		i18n.New("Order completed", "تم إكمال الطلب"),
		i18n.New(en, ar),
		o.ID,
		payload,
		now,
	)
}
