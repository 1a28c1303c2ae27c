package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	var unread bool
	if s := r.URL.Query().Get("unread"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			writeError(w, r, badRequest("unread must be a boolean"))
			return
		}
		unread = v
	}
	list, err := h.notifications.ListForUser(r.Context(), actor(r).ID, unread)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeNotifications(e, list) })
}

// markNotification flips the read flag, the only mutable part of a
// notification.
func (h *Handler) markNotification(w http.ResponseWriter, r *http.Request) {
	var (
		read bool
		set  bool
	)
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "isRead":
			read, err = d.Bool()
			set = true
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
	if !set {
		writeError(w, r, badRequest("isRead is required"))
		return
	}
	if err := h.notifications.SetRead(r.Context(), actor(r).ID, chi.URLParam(r, "id"), read); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteNotifications(w http.ResponseWriter, r *http.Request) {
	var ids []string
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "ids" {
			return d.Skip()
		}
		if err := d.Arr(func(d *jx.Decoder) error {
			id, err := d.Str()
			ids = append(ids, id)
			return err
		}); err != nil {
			return errors.Wrap(err, `"ids"`)
		}
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(ids) == 0 {
		writeError(w, r, badRequest("ids must not be empty"))
		return
	}
	n, err := h.notifications.Delete(r.Context(), actor(r).ID, ids)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("deleted")
		e.Int(n)
		e.ObjEnd()
	})
}
