// Package handler exposes the marketplace over HTTP. Requests and responses
// are JSON encoded with jx; routing is chi.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/recycle-market/internal/domain/auth"
	"github.com/xenking/recycle-market/internal/domain/cart"
	"github.com/xenking/recycle-market/internal/domain/catalog"
	"github.com/xenking/recycle-market/internal/domain/fulfillment"
	"github.com/xenking/recycle-market/internal/domain/notification"
	"github.com/xenking/recycle-market/internal/domain/rewards"
)

// Deps are the domain services behind the API.
type Deps struct {
	Fulfillment   *fulfillment.Service
	Carts         *cart.Service
	Rewards       *rewards.Service
	Notifications notification.Repository
	Catalog       catalog.Repository
	Tokens        *auth.TokenVerifier
}

// Handler serves the /api routes.
type Handler struct {
	fulfillment   *fulfillment.Service
	carts         *cart.Service
	rewards       *rewards.Service
	notifications notification.Repository
	catalog       catalog.Repository
	tokens        *auth.TokenVerifier
}

// New creates a Handler.
func New(d Deps) *Handler {
	return &Handler{
		fulfillment:   d.Fulfillment,
		carts:         d.Carts,
		rewards:       d.Rewards,
		notifications: d.Notifications,
		catalog:       d.Catalog,
		tokens:        d.Tokens,
	}
}

// Router returns the API routes, meant to be mounted under /api. The given
// middlewares run after the caller has been identified, so they can key on
// the actor.
func (h *Handler) Router(identified ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/items", h.listItems)

	// Carts can be filled before login under an X-Session-ID.
	r.Group(func(r chi.Router) {
		r.Use(h.AuthenticateOrGuest)
		r.Use(identified...)
		r.Get("/cart", h.getCart)
		r.Delete("/cart", h.clearCart)
		r.Put("/cart/items", h.setCartItem)
		r.Delete("/cart/items/{itemId}", h.removeCartItem)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.Authenticate)
		r.Use(identified...)

		r.Post("/cart/merge", h.mergeCart)

		r.Post("/orders", h.createOrder)
		r.Get("/orders/{id}", h.getOrder)
		r.Delete("/orders/{id}", h.deleteOrder)
		r.Post("/orders/{id}/transitions", h.transitionOrder)
		r.Get("/users/{id}/orders", h.listUserOrders)
		r.Get("/couriers/{id}/orders", h.listCourierOrders)

		r.Get("/me/balances", h.getBalances)
		r.Get("/me/ledger/{book}", h.getLedger)
		r.Post("/me/points/redeem", h.redeemPoints)
		r.Post("/me/wallet/withdraw", h.withdraw)

		r.Get("/me/notifications", h.listNotifications)
		r.Patch("/me/notifications/{id}", h.markNotification)
		r.Delete("/me/notifications", h.deleteNotifications)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}
