package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/recycle-market/internal/domain/cart"
)

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), actor(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, c) })
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), actor(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setCartItem(w http.ResponseWriter, r *http.Request) {
	var (
		itemID string
		qty    decimal.Decimal
	)
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "itemId":
			itemID, err = d.Str()
		case "quantity":
			qty, err = decodeDecimal(d)
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
	if itemID == "" {
		writeError(w, r, badRequest("itemId is required"))
		return
	}
	h.respondCart(w, r)(h.carts.Set(r.Context(), actor(r), itemID, qty))
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	h.respondCart(w, r)(h.carts.Remove(r.Context(), actor(r), chi.URLParam(r, "itemId")))
}

// mergeCart moves the X-Session-ID cart into the authenticated user's cart.
func (h *Handler) mergeCart(w http.ResponseWriter, r *http.Request) {
	sid := strings.TrimSpace(r.Header.Get(SessionHeader))
	if sid == "" {
		writeError(w, r, badRequest("%s header is required", SessionHeader))
		return
	}
	h.respondCart(w, r)(h.carts.Merge(r.Context(), guestPrefix+sid, actor(r)))
}

func (h *Handler) respondCart(w http.ResponseWriter, r *http.Request) func(*cart.Cart, error) {
	return func(c *cart.Cart, err error) {
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, c) })
	}
}
