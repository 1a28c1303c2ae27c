package main

import (
	"context"
	"flag"
	"os"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/recycle-market/internal/domain/rewards"
	"github.com/xenking/recycle-market/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		workers     int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&workers, "workers", 4, "accounts reconciled concurrently")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		if databaseURL == "" {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}

		pool, err := postgres.NewPool(ctx, databaseURL)
		if err != nil {
			return errors.Wrap(err, "connect to database")
		}
		defer pool.Close()

		store := postgres.NewStore(pool)
		rep, err := rewards.NewReconciler(store, store.Ledger(), lg, workers).Run(ctx)
		if err != nil {
			return errors.Wrap(err, "reconcile")
		}

		lg.Info("Ledger reconciliation completed",
			zap.Int("checked", rep.Checked),
			zap.Int("repaired", rep.Repaired),
		)
		return nil
	})
}
