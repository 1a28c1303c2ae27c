// Package redis stores carts in Redis hashes, one hash per owner keyed by
// item id. Carts live outside order transactions and expire when idle.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/recycle-market/internal/domain/cart"
)

// DefaultCartTTL is how long an untouched cart is kept.
const DefaultCartTTL = 30 * 24 * time.Hour

// Connect initializes a Redis client from a redis:// URL or host:port.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var opt *redis.Options
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		parsed, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, errors.Wrap(err, "parse redis url")
		}
		opt = parsed
	} else {
		opt = &redis.Options{Addr: redisURL}
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

var _ cart.Store = (*CartStore)(nil)

// CartStore implements cart.Store on Redis.
type CartStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCartStore creates a CartStore. A non-positive ttl uses DefaultCartTTL.
func NewCartStore(client *redis.Client, ttl time.Duration) *CartStore {
	if ttl <= 0 {
		ttl = DefaultCartTTL
	}
	return &CartStore{client: client, ttl: ttl}
}

func cartKey(owner string) string {
	return "cart:" + owner
}

func (s *CartStore) Get(ctx context.Context, owner string) (*cart.Cart, error) {
	data, err := s.client.HGetAll(ctx, cartKey(owner)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading cart %q: %w", owner, err)
	}
	c := &cart.Cart{Owner: owner, Lines: make([]cart.Line, 0, len(data))}
	for itemID, raw := range data {
		line, err := decodeLine([]byte(raw))
		if err != nil {
			return nil, errors.Wrapf(err, "decode cart line %s", itemID)
		}
		c.Lines = append(c.Lines, line)
	}
	sortLines(c.Lines)
	return c, nil
}

func (s *CartStore) Put(ctx context.Context, owner string, line cart.Line) error {
	key := cartKey(owner)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, line.ItemID, encodeLine(line))
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing cart %q: %w", owner, err)
	}
	return nil
}

func (s *CartStore) Remove(ctx context.Context, owner, itemID string) error {
	if err := s.client.HDel(ctx, cartKey(owner), itemID).Err(); err != nil {
		return fmt.Errorf("removing %q from cart %q: %w", itemID, owner, err)
	}
	return nil
}

func (s *CartStore) Clear(ctx context.Context, owner string) error {
	if err := s.client.Del(ctx, cartKey(owner)).Err(); err != nil {
		return fmt.Errorf("clearing cart %q: %w", owner, err)
	}
	return nil
}
