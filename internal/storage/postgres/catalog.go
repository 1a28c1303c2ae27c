package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/recycle-market/internal/domain/address"
	"github.com/xenking/recycle-market/internal/domain/catalog"
	"github.com/xenking/recycle-market/internal/domain/courier"
	"github.com/xenking/recycle-market/internal/domain/measure"
)

const (
	itemColumns = `id, name_en, name_ar, category_en, category_ar, price, points, unit, image, quantity`

	listItemsCatalogSQL = `SELECT ` + itemColumns + ` FROM items ORDER BY id`
	getItemSQL          = `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	getItemsSQL         = `SELECT ` + itemColumns + ` FROM items WHERE id = ANY($1) ORDER BY id`

	upsertItemSQL = `INSERT INTO items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name_en = EXCLUDED.name_en, name_ar = EXCLUDED.name_ar,
			category_en = EXCLUDED.category_en, category_ar = EXCLUDED.category_ar,
			price = EXCLUDED.price, points = EXCLUDED.points, unit = EXCLUDED.unit,
			image = EXCLUDED.image, updated_at = now()`

	getAddressSQL = `SELECT id, user_id, label, street, city, building, phone
		FROM addresses WHERE id = $1 AND user_id = $2`

	upsertAddressSQL = `INSERT INTO addresses (id, user_id, label, street, city, building, phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id, label = EXCLUDED.label,
			street = EXCLUDED.street, city = EXCLUDED.city, building = EXCLUDED.building,
			phone = EXCLUDED.phone`

	getCourierSQL = `SELECT approved, available FROM couriers WHERE id = $1`

	upsertCourierSQL = `INSERT INTO couriers (id, name, approved, available)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, approved = EXCLUDED.approved,
			available = EXCLUDED.available`
)

var (
	_ catalog.Repository = catalogRepo{}
	_ address.Repository = addressRepo{}
	_ courier.Directory  = courierDirectory{}
)

type catalogRepo struct {
	q querier
}

func (r catalogRepo) List(ctx context.Context) ([]catalog.Item, error) {
	rows, err := r.q.Query(ctx, listItemsCatalogSQL)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	return pgx.CollectRows(rows, scanItem)
}

func (r catalogRepo) GetByID(ctx context.Context, id string) (*catalog.Item, error) {
	rows, err := r.q.Query(ctx, getItemSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting item %q: %w", id, err)
	}
	it, err := pgx.CollectExactlyOneRow(rows, scanItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting item %q: %w", id, err)
	}
	return &it, nil
}

func (r catalogRepo) GetByIDs(ctx context.Context, ids []string) ([]catalog.Item, error) {
	rows, err := r.q.Query(ctx, getItemsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting items by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanItem)
}

func scanItem(row pgx.CollectableRow) (catalog.Item, error) {
	var (
		it   catalog.Item
		unit string
	)
	err := row.Scan(
		&it.ID, &it.Name.En, &it.Name.Ar, &it.Category.En, &it.Category.Ar,
		&it.Price, &it.Points, &unit, &it.Image, &it.Stock,
	)
	if err != nil {
		return it, err
	}
	it.Unit, err = measure.Parse(unit)
	return it, err
}

type addressRepo struct {
	q querier
}

func (r addressRepo) Get(ctx context.Context, userID, addressID string) (*address.Address, error) {
	var a address.Address
	err := r.q.QueryRow(ctx, getAddressSQL, addressID, userID).
		Scan(&a.ID, &a.UserID, &a.Label, &a.Street, &a.City, &a.Building, &a.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, address.ErrNotFound
		}
		return nil, fmt.Errorf("getting address %q: %w", addressID, err)
	}
	return &a, nil
}

type courierDirectory struct {
	q querier
}

func (d courierDirectory) IsApprovedAndAvailable(ctx context.Context, courierID string) (bool, error) {
	var approved, available bool
	if err := d.q.QueryRow(ctx, getCourierSQL, courierID).Scan(&approved, &available); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, courier.ErrNotFound
		}
		return false, fmt.Errorf("getting courier %q: %w", courierID, err)
	}
	return approved && available, nil
}

// UpsertItem inserts or updates a catalog item. The stock counter is only
// set on insert; later changes go through the stock ledger.
func (s *Store) UpsertItem(ctx context.Context, it catalog.Item) error {
	_, err := s.pool.Exec(ctx, upsertItemSQL,
		it.ID, it.Name.En, it.Name.Ar, it.Category.En, it.Category.Ar,
		it.Price, it.Points, it.Unit.String(), it.Image, it.Stock,
	)
	if err != nil {
		return fmt.Errorf("upserting item %q: %w", it.ID, err)
	}
	return nil
}

// UpsertAddress inserts or updates an address.
func (s *Store) UpsertAddress(ctx context.Context, a address.Address) error {
	_, err := s.pool.Exec(ctx, upsertAddressSQL, a.ID, a.UserID, a.Label, a.Street, a.City, a.Building, a.Phone)
	if err != nil {
		return fmt.Errorf("upserting address %q: %w", a.ID, err)
	}
	return nil
}

// UpsertCourier inserts or updates a courier.
func (s *Store) UpsertCourier(ctx context.Context, c courier.Courier) error {
	_, err := s.pool.Exec(ctx, upsertCourierSQL, c.ID, c.Name, c.Approved, c.Available)
	if err != nil {
		return fmt.Errorf("upserting courier %q: %w", c.ID, err)
	}
	return nil
}
