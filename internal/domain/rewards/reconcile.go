package rewards

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/recycle-market/internal/domain/ledger"
	"github.com/xenking/recycle-market/internal/storage"
)

// Report summarises one reconciliation pass.
type Report struct {
	Checked  int
	Repaired int
}

// Reconciler replays every account's ledger and repairs materialized
// balances that drifted from the replay.
type Reconciler struct {
	tx      storage.Transactor
	ledger  ledger.Store
	lg      *zap.Logger
	workers int
}

// NewReconciler creates a Reconciler checking up to workers accounts
// concurrently.
func NewReconciler(tx storage.Transactor, store ledger.Store, lg *zap.Logger, workers int) *Reconciler {
	if workers <= 0 {
		workers = 4
	}
	return &Reconciler{tx: tx, ledger: store, lg: lg, workers: workers}
}

// Run performs one full pass.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	accounts, err := r.ledger.Accounts(ctx)
	if err != nil {
		return Report{}, errors.Wrap(err, "list accounts")
	}

	var repaired atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, acct := range accounts {
		g.Go(func() error {
			fixed, err := r.reconcile(gctx, acct)
			if err != nil {
				return errors.Wrapf(err, "reconcile %s/%s", acct.Book, acct.UserID)
			}
			if fixed {
				repaired.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	return Report{Checked: len(accounts), Repaired: int(repaired.Load())}, nil
}

// Loop runs a pass every interval until ctx is cancelled.
func (r *Reconciler) Loop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		rep, err := r.Run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.lg.Error("Ledger reconciliation failed", zap.Error(err))
			continue
		}
		r.lg.Debug("Ledger reconciled", zap.Int("checked", rep.Checked), zap.Int("repaired", rep.Repaired))
	}
}

func (r *Reconciler) reconcile(ctx context.Context, acct ledger.Account) (bool, error) {
	var fixed bool
	err := storage.WithRetry(ctx, r.tx, storage.RetryPolicy{}, func(ctx context.Context, tx storage.Tx) error {
		fixed = false
		// Balance first: stores lock the balance row so no append lands
		// between the two reads.
		have, err := tx.Ledger().Balance(ctx, acct.Book, acct.UserID)
		if err != nil {
			return err
		}
		entries, err := tx.Ledger().Entries(ctx, acct.Book, acct.UserID)
		if err != nil {
			return err
		}
		want := ledger.Fold(entries)
		if have.Equal(want) {
			return nil
		}
		r.lg.Warn("Ledger balance drift repaired",
			zap.String("book", string(acct.Book)),
			zap.String("user_id", acct.UserID),
			zap.String("materialized", have.String()),
			zap.String("replayed", want.String()),
		)
		fixed = true
		return tx.Ledger().SetBalance(ctx, acct, want)
	})
	return fixed, err
}
