package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/recycle-market/db"
	"github.com/xenking/recycle-market/internal/domain/address"
	"github.com/xenking/recycle-market/internal/domain/catalog"
	"github.com/xenking/recycle-market/internal/domain/courier"
	"github.com/xenking/recycle-market/internal/domain/i18n"
	"github.com/xenking/recycle-market/internal/domain/measure"
	"github.com/xenking/recycle-market/internal/storage/postgres"
)

type textJSON struct {
	En string `json:"en"`
	Ar string `json:"ar"`
}

type itemJSON struct {
	ID       string          `json:"id"`
	Name     textJSON        `json:"name"`
	Category textJSON        `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Points   decimal.Decimal `json:"points"`
	Unit     string          `json:"unit"`
	Image    string          `json:"image"`
	Quantity decimal.Decimal `json:"quantity"`
}

type courierJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Approved  bool   `json:"approved"`
	Available bool   `json:"available"`
}

type addressJSON struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Label    string `json:"label"`
	Street   string `json:"street"`
	City     string `json:"city"`
	Building string `json:"building"`
	Phone    string `json:"phone"`
}

type seedJSON struct {
	Items     []itemJSON    `json:"items"`
	Couriers  []courierJSON `json:"couriers"`
	Addresses []addressJSON `json:"addresses"`
}

func main() {
	var (
		databaseURL string
		seedFile    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedFile, "seed-file", "", "path to a seed JSON file (defaults to the embedded fixture)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedFile string) error {
	data := db.Seed
	if seedFile != "" {
		slog.Info("reading seed file", slog.String("path", seedFile))
		var err error
		if data, err = os.ReadFile(seedFile); err != nil {
			return errors.Wrap(err, "read seed file")
		}
	}

	var seed seedJSON
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed JSON")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	store := postgres.NewStore(pool)

	if err := seedItems(ctx, store, seed.Items); err != nil {
		return errors.Wrap(err, "seed items")
	}
	if err := seedCouriers(ctx, store, seed.Couriers); err != nil {
		return errors.Wrap(err, "seed couriers")
	}
	if err := seedAddresses(ctx, store, seed.Addresses); err != nil {
		return errors.Wrap(err, "seed addresses")
	}
	return nil
}

func seedItems(ctx context.Context, store *postgres.Store, items []itemJSON) error {
	slog.Info("upserting items", slog.Int("count", len(items)))

	for _, it := range items {
		unit, err := measure.Parse(it.Unit)
		if err != nil {
			return errors.Wrapf(err, "item %s", it.ID)
		}
		if err := store.UpsertItem(ctx, catalog.Item{
			ID:       it.ID,
			Name:     i18n.New(it.Name.En, it.Name.Ar),
			Category: i18n.New(it.Category.En, it.Category.Ar),
			Price:    it.Price,
			Points:   it.Points,
			Unit:     unit,
			Image:    it.Image,
			Stock:    it.Quantity,
		}); err != nil {
			return errors.Wrapf(err, "upsert item %s", it.ID)
		}

		slog.Info("upserted item", slog.String("id", it.ID), slog.String("name", it.Name.En))
	}

	return nil
}

func seedCouriers(ctx context.Context, store *postgres.Store, couriers []courierJSON) error {
	slog.Info("upserting couriers", slog.Int("count", len(couriers)))

	for _, c := range couriers {
		if err := store.UpsertCourier(ctx, courier.Courier{
			ID:        c.ID,
			Name:      c.Name,
			Approved:  c.Approved,
			Available: c.Available,
		}); err != nil {
			return errors.Wrapf(err, "upsert courier %s", c.ID)
		}

		slog.Info("upserted courier", slog.String("id", c.ID), slog.Bool("available", c.Approved && c.Available))
	}

	return nil
}

func seedAddresses(ctx context.Context, store *postgres.Store, addresses []addressJSON) error {
	slog.Info("upserting addresses", slog.Int("count", len(addresses)))

	for _, a := range addresses {
		if err := store.UpsertAddress(ctx, address.Address{
			ID:       a.ID,
			UserID:   a.UserID,
			Label:    a.Label,
			Street:   a.Street,
			City:     a.City,
			Building: a.Building,
			Phone:    a.Phone,
		}); err != nil {
			return errors.Wrapf(err, "upsert address %s", a.ID)
		}

		slog.Info("upserted address", slog.String("id", a.ID), slog.String("user_id", a.UserID))
	}

	return nil
}
