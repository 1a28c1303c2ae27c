package notification

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// RelayConfig tunes the outbox relay.
type RelayConfig struct {
	PollInterval   time.Duration
	PublishTimeout time.Duration
	BatchSize      int
	RetryInitial   time.Duration
	RetryMax       time.Duration
}

func (c *RelayConfig) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 5 * time.Minute
	}
}

// Relay moves committed notifications from the outbox to the publisher.
// Publishing happens after the emitting transaction committed, so a slow or
// failing transport never affects order state.
type Relay struct {
	repo Repository
	pub  Publisher
	lg   *zap.Logger
	cfg  RelayConfig
	now  func() time.Time
}

// NewRelay creates a Relay.
func NewRelay(repo Repository, pub Publisher, lg *zap.Logger, cfg RelayConfig) *Relay {
	cfg.setDefaults()
	return &Relay{
		repo: repo,
		pub:  pub,
		lg:   lg,
		cfg:  cfg,
		now:  time.Now,
	}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.lg.Warn("Notification relay flush failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Flush publishes one batch of due notifications and returns how many were
// delivered.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	pending, err := r.repo.Pending(ctx, r.now(), r.cfg.BatchSize)
	if err != nil {
		return 0, errors.Wrap(err, "fetch pending")
	}

	delivered := 0
	for _, n := range pending {
		if err := r.publish(ctx, n); err != nil {
			next := r.now().Add(r.retryDelay(n.Attempts + 1))
			r.lg.Warn("Notification publish failed",
				zap.String("notification_id", n.ID),
				zap.String("type", string(n.Type)),
				zap.Int("attempt", n.Attempts+1),
				zap.Time("next_attempt", next),
				zap.Error(err),
			)
			if err := r.repo.MarkFailed(ctx, n.ID, err.Error(), next); err != nil {
				return delivered, errors.Wrapf(err, "mark %s failed", n.ID)
			}
			continue
		}
		if err := r.repo.MarkDelivered(ctx, n.ID, r.now()); err != nil {
			return delivered, errors.Wrapf(err, "mark %s delivered", n.ID)
		}
		delivered++
	}
	return delivered, nil
}

func (r *Relay) publish(ctx context.Context, n Notification) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.PublishTimeout)
	defer cancel()
	return r.pub.Publish(ctx, n)
}

// retryDelay is the exponential backoff interval before the given attempt.
func (r *Relay) retryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.RetryInitial
	b.MaxInterval = r.cfg.RetryMax
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.InitialInterval
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}
