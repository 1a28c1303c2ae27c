package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/recycle-market/internal/domain/i18n"
	"github.com/xenking/recycle-market/internal/domain/measure"
)

// ErrNotFound is returned when a requested catalog item does not exist.
var ErrNotFound = errors.New("catalog item not found")

// Item is a recyclable material listed in the catalog.
type Item struct {
	ID       string
	Name     i18n.Text
	Category i18n.Text
	// Price is the customer-facing price per unit.
	Price decimal.Decimal
	// Points is the loyalty points value per unit.
	Points decimal.Decimal
	Unit   measure.Unit
	Image  string
	// Stock is a read-only view of the Stock Ledger counter for the item.
	Stock decimal.Decimal
}

// Repository defines read operations for the catalog.
type Repository interface {
	List(ctx context.Context) ([]Item, error)
	GetByID(ctx context.Context, id string) (*Item, error)
	GetByIDs(ctx context.Context, ids []string) ([]Item, error)
}
