// Package httpmiddleware holds the net/http middleware shared by the service
// binaries. Middlewares are plain func(http.Handler) http.Handler values so
// they plug into a chi router with Use.
package httpmiddleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// RoutePattern returns the chi route pattern matched for r, such as
// "/api/orders/{id}". It is empty until routing has happened, so middlewares
// read it after calling the next handler.
func RoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}

// WriteError writes the {"code","message"} error envelope used by every JSON
// endpoint.
func WriteError(w http.ResponseWriter, status int, message string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(message)
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
