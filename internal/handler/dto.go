package handler

import (
	"github.com/go-faster/jx"

	"github.com/xenking/recycle-market/internal/domain/cart"
	"github.com/xenking/recycle-market/internal/domain/catalog"
	"github.com/xenking/recycle-market/internal/domain/ledger"
	"github.com/xenking/recycle-market/internal/domain/notification"
	"github.com/xenking/recycle-market/internal/domain/order"
	"github.com/xenking/recycle-market/internal/domain/rewards"
)

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("userId")
	e.Str(o.UserID)
	e.FieldStart("userRole")
	e.Str(string(o.UserRole))
	e.FieldStart("addressId")
	e.Str(o.AddressID)
	e.FieldStart("paymentMethod")
	e.Str(string(o.PaymentMethod))
	optStr(e, "paymentIntentId", o.PaymentIntentID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	optStr(e, "courierId", o.CourierID)

	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		encodeLineItem(e, it)
	}
	e.ArrEnd()

	e.FieldStart("deliveryFee")
	encodeMoney(e, o.DeliveryFee)
	e.FieldStart("totalAmount")
	encodeMoney(e, o.TotalAmount)

	e.FieldStart("statusHistory")
	e.ArrStart()
	for _, h := range o.History {
		e.ObjStart()
		e.FieldStart("status")
		e.Str(string(h.Status))
		e.FieldStart("at")
		encodeTime(e, h.At)
		e.FieldStart("actorId")
		e.Str(h.ActorID)
		e.FieldStart("actorRole")
		e.Str(string(h.ActorRole))
		optStr(e, "notes", h.Notes)
		e.ObjEnd()
	}
	e.ArrEnd()

	if p := o.DeliveryProof; p != nil {
		e.FieldStart("deliveryProof")
		e.ObjStart()
		e.FieldStart("photoUrl")
		e.Str(p.PhotoURL)
		optStr(e, "notes", p.Notes)
		e.FieldStart("submittedBy")
		e.Str(p.SubmittedBy)
		e.FieldStart("submittedAt")
		encodeTime(e, p.SubmittedAt)
		e.ObjEnd()
	}
	optTime(e, "collectedAt", o.CollectedAt)
	optTime(e, "completedAt", o.CompletedAt)
	optStr(e, "cancelReason", o.CancelReason)

	e.FieldStart("hasQuantityAdjustments")
	e.Bool(o.HasQuantityAdjustments)
	e.FieldStart("quantityAdjustmentNotes")
	e.ArrStart()
	for _, n := range o.QuantityAdjustmentNotes {
		e.Str(n)
	}
	e.ArrEnd()

	e.FieldStart("version")
	e.Int64(o.Version)
	e.FieldStart("createdAt")
	encodeTime(e, o.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, o.UpdatedAt)
	e.ObjEnd()
}

func encodeLineItem(e *jx.Encoder, it order.LineItem) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(it.ID)
	e.FieldStart("itemId")
	e.Str(it.ItemID)
	e.FieldStart("name")
	encodeText(e, it.Name)
	e.FieldStart("category")
	encodeText(e, it.Category)
	e.FieldStart("price")
	encodeMoney(e, it.Price)
	e.FieldStart("points")
	encodeDecimal(e, it.Points)
	e.FieldStart("unit")
	e.Str(it.Unit.String())
	e.FieldStart("quantity")
	encodeDecimal(e, it.Quantity)
	e.FieldStart("reservedQuantity")
	encodeDecimal(e, it.ReservedQuantity)
	if it.OriginalQuantity.Valid {
		e.FieldStart("originalQuantity")
		encodeDecimal(e, it.OriginalQuantity.Decimal)
	}
	e.FieldStart("quantityAdjusted")
	e.Bool(it.QuantityAdjusted)
	e.ObjEnd()
}

func encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.ObjStart()
	e.FieldStart("orders")
	e.ArrStart()
	for i := range orders {
		encodeOrder(e, &orders[i])
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeCart(e *jx.Encoder, c *cart.Cart) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, l := range c.Lines {
		e.ObjStart()
		e.FieldStart("itemId")
		e.Str(l.ItemID)
		e.FieldStart("name")
		encodeText(e, l.Name)
		e.FieldStart("category")
		encodeText(e, l.Category)
		e.FieldStart("price")
		encodeMoney(e, l.Price)
		e.FieldStart("points")
		encodeDecimal(e, l.Points)
		e.FieldStart("unit")
		e.Str(l.Unit.String())
		e.FieldStart("quantity")
		encodeDecimal(e, l.Quantity)
		optStr(e, "image", l.Image)
		e.FieldStart("addedAt")
		encodeTime(e, l.AddedAt)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("subtotal")
	encodeMoney(e, c.Subtotal())
	e.ObjEnd()
}

func encodeItems(e *jx.Encoder, items []catalog.Item) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range items {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(it.ID)
		e.FieldStart("name")
		encodeText(e, it.Name)
		e.FieldStart("category")
		encodeText(e, it.Category)
		e.FieldStart("price")
		encodeMoney(e, it.Price)
		e.FieldStart("points")
		encodeDecimal(e, it.Points)
		e.FieldStart("unit")
		e.Str(it.Unit.String())
		optStr(e, "image", it.Image)
		e.FieldStart("stock")
		encodeDecimal(e, it.Stock)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeBalances(e *jx.Encoder, b rewards.Balances) {
	e.ObjStart()
	e.FieldStart("points")
	encodeDecimal(e, b.Points)
	e.FieldStart("wallet")
	encodeMoney(e, b.Wallet)
	e.ObjEnd()
}

func encodeEntry(e *jx.Encoder, en *ledger.Entry) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(en.ID)
	e.FieldStart("book")
	e.Str(string(en.Book))
	e.FieldStart("type")
	e.Str(string(en.Type))
	e.FieldStart("amount")
	encodeDecimal(e, en.Amount)
	optStr(e, "orderId", en.OrderID)
	optStr(e, "reason", en.Reason)
	optStr(e, "gateway", en.Gateway)
	e.FieldStart("createdAt")
	encodeTime(e, en.CreatedAt)
	e.ObjEnd()
}

func encodeLedger(e *jx.Encoder, book ledger.Book, entries []ledger.Entry) {
	e.ObjStart()
	e.FieldStart("book")
	e.Str(string(book))
	e.FieldStart("balance")
	encodeDecimal(e, ledger.Fold(entries))
	e.FieldStart("entries")
	e.ArrStart()
	for i := range entries {
		encodeEntry(e, &entries[i])
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeNotifications(e *jx.Encoder, list []notification.Notification) {
	e.ObjStart()
	e.FieldStart("notifications")
	e.ArrStart()
	for _, n := range list {
		n.Encode(e)
	}
	e.ArrEnd()
	e.ObjEnd()
}
