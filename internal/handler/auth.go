package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/recycle-market/internal/domain/auth"
	"github.com/xenking/recycle-market/pkg/httpmiddleware"
)

// SessionHeader identifies an anonymous cart before login.
const SessionHeader = "X-Session-ID"

// guestPrefix namespaces anonymous cart owners away from user ids.
const guestPrefix = "session:"

// Authenticate requires a valid bearer token and stores the actor in the
// request context.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, err := h.bearer(r)
		if err != nil {
			zctx.From(r.Context()).Debug("Authentication failed", zap.Error(err))
			w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
			writeMessage(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), a)))
	})
}

// AuthenticateOrGuest accepts a bearer token or, without one, an
// X-Session-ID that is treated as a guest customer.
func (h *Handler) AuthenticateOrGuest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			if sid := strings.TrimSpace(r.Header.Get(SessionHeader)); sid != "" {
				guest := auth.Actor{ID: guestPrefix + sid, Role: auth.RoleCustomer}
				next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), guest)))
				return
			}
		}
		h.Authenticate(next).ServeHTTP(w, r)
	})
}

func (h *Handler) bearer(r *http.Request) (auth.Actor, error) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return auth.Actor{}, auth.ErrUnauthenticated
	}
	return h.tokens.Verify(strings.TrimSpace(raw))
}

// actor returns the caller identified by Authenticate.
func actor(r *http.Request) auth.Actor {
	a, _ := auth.FromContext(r.Context())
	return a
}

// RateLimitKey buckets identified callers by actor id and everyone else by
// client IP.
func RateLimitKey(r *http.Request) string {
	if a, ok := auth.FromContext(r.Context()); ok {
		return "actor:" + a.ID
	}
	return "ip:" + httpmiddleware.ClientIP(r)
}
