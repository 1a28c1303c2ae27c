package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeItems(e, items) })
}
