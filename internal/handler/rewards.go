package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/recycle-market/internal/domain/ledger"
)

func (h *Handler) getBalances(w http.ResponseWriter, r *http.Request) {
	b, err := h.rewards.Balances(r.Context(), actor(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeBalances(e, b) })
}

func (h *Handler) getLedger(w http.ResponseWriter, r *http.Request) {
	book, err := ledger.ParseBook(chi.URLParam(r, "book"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := h.rewards.History(r.Context(), actor(r).ID, book)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeLedger(e, book, entries) })
}

func (h *Handler) redeemPoints(w http.ResponseWriter, r *http.Request) {
	var points decimal.Decimal
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "points":
			points, err = decodeDecimal(d)
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
	red, err := h.rewards.RedeemPoints(r.Context(), actor(r), points)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("points")
		encodeEntry(e, &red.Points)
		e.FieldStart("cashback")
		encodeEntry(e, &red.Cashback)
		e.ObjEnd()
	})
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	var (
		amount  decimal.Decimal
		gateway string
	)
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "amount":
			amount, err = decodeDecimal(d)
		case "gateway":
			gateway, err = d.Str()
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
	entry, err := h.rewards.Withdraw(r.Context(), actor(r), amount, gateway)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeEntry(e, entry) })
}
