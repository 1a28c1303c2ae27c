package address

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when the address does not exist or belongs to
// another user.
var ErrNotFound = errors.New("address not found")

// Address is a delivery/pickup location owned by a user.
type Address struct {
	ID       string
	UserID   string
	Label    string
	Street   string
	City     string
	Building string
	Phone    string
}

// Repository resolves addresses for their owner.
type Repository interface {
	Get(ctx context.Context, userID, addressID string) (*Address, error)
}
