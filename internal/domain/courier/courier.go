package courier

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned for an unknown courier id.
var ErrNotFound = errors.New("courier not found")

// Courier is a delivery account as seen by the fulfillment workflow.
type Courier struct {
	ID        string
	Name      string
	Approved  bool
	Available bool
}

// Directory answers whether a courier can take new orders.
type Directory interface {
	IsApprovedAndAvailable(ctx context.Context, courierID string) (bool, error)
}
