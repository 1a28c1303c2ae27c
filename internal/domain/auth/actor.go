package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// Role is the marketplace role of an authenticated actor.
type Role string

const (
	// RoleCustomer sells recyclables and earns points.
	RoleCustomer Role = "customer"
	// RoleBuyer purchases materials at marked-up prices.
	RoleBuyer Role = "buyer"
	// RoleDelivery is a courier collecting and delivering orders.
	RoleDelivery Role = "delivery"
	// RoleAdmin operates the marketplace.
	RoleAdmin Role = "admin"
)

// ErrUnauthenticated is returned when a request carries no valid identity.
var ErrUnauthenticated = errors.New("unauthenticated")

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleBuyer, RoleDelivery, RoleAdmin:
		return true
	}
	return false
}

// Actor is the identity on whose behalf an operation runs. The auth/session
// layer supplies it and the core trusts it as given.
type Actor struct {
	ID   string
	Role Role
}

// IsAdmin reports whether the actor is an admin.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Owns reports whether the actor is the user identified by userID.
func (a Actor) Owns(userID string) bool {
	return a.ID != "" && a.ID == userID
}

type actorKey struct{}

// WithActor stores the actor in ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// FromContext returns the actor stored in ctx.
func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
