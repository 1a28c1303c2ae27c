package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/recycle-market/internal/domain/fulfillment"
	"github.com/xenking/recycle-market/internal/domain/order"
)

// IdempotencyKeyHeader makes order creation safe to retry.
const IdempotencyKeyHeader = "Idempotency-Key"

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	req := fulfillment.CreateRequest{
		IdempotencyKey: strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader)),
	}
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "addressId":
			req.AddressID, err = d.Str()
		case "paymentMethod":
			var s string
			s, err = d.Str()
			req.PaymentMethod = order.PaymentMethod(s)
		case "paymentIntentId":
			req.PaymentIntentID, err = d.Str()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "%q", key)
		}
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.AddressID == "" {
		writeError(w, r, badRequest("addressId is required"))
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = order.PaymentCash
	}
	if !req.PaymentMethod.Valid() {
		writeError(w, r, badRequest("unknown payment method %q", req.PaymentMethod))
		return
	}

	o, err := h.fulfillment.CreateOrder(r.Context(), actor(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/orders/"+o.ID)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.fulfillment.GetOrder(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.fulfillment.DeleteOrder(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// transitionOrder moves an order to the requested status. Clients racing
// another writer send the version they read as expectedVersion; without it
// the change applies to the order's current state.
func (h *Handler) transitionOrder(w http.ResponseWriter, r *http.Request) {
	req, err := decodeTransition(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.fulfillment.Transition(r.Context(), actor(r), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func decodeTransition(w http.ResponseWriter, r *http.Request) (fulfillment.TransitionRequest, error) {
	var (
		req    fulfillment.TransitionRequest
		status string
	)
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "status":
			status, err = d.Str()
		case "courierId":
			req.CourierID, err = d.Str()
		case "reason":
			req.Reason, err = d.Str()
		case "notes":
			req.Notes, err = d.Str()
		case "expectedVersion":
			req.ExpectedVersion, err = d.Int64()
		case "collected":
			err = d.Arr(func(d *jx.Decoder) error {
				line, err := decodeCollectedLine(d)
				req.Collected = append(req.Collected, line)
				return err
			})
		case "proof":
			err = d.Obj(func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "photoUrl":
					req.Proof.PhotoURL, err = d.Str()
				case "notes":
					req.Proof.Notes, err = d.Str()
				default:
					err = d.Skip()
				}
				return err
			})
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "%q", key)
		}
		return nil
	})
	if err != nil {
		return req, err
	}
	if status == "" {
		return req, badRequest("status is required")
	}
	if req.Target, err = order.ParseStatus(status); err != nil {
		return req, err
	}
	if req.Proof.Notes == "" {
		req.Proof.Notes = req.Notes
	}
	return req, nil
}

func decodeCollectedLine(d *jx.Decoder) (fulfillment.CollectedLine, error) {
	var (
		line   fulfillment.CollectedLine
		hasQty bool
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "lineId":
			line.LineID, err = d.Str()
		case "quantity":
			line.Quantity, err = decodeDecimal(d)
			hasQty = true
		default:
			err = d.Skip()
		}
		return err
	})
	if err == nil && (line.LineID == "" || !hasQty) {
		err = errors.New("collected lines need lineId and quantity")
	}
	return line, err
}

func (h *Handler) listUserOrders(w http.ResponseWriter, r *http.Request) {
	var f order.ListFilter
	if s := r.URL.Query().Get("status"); s != "" {
		st, err := order.ParseStatus(s)
		if err != nil {
			writeError(w, r, err)
			return
		}
		f.Status = st
	}
	orders, err := h.fulfillment.ListOrdersForUser(r.Context(), actor(r), chi.URLParam(r, "id"), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, orders) })
}

func (h *Handler) listCourierOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.fulfillment.ListOrdersForCourier(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, orders) })
}
