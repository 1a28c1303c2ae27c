package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/recycle-market/internal/broker"
	"github.com/xenking/recycle-market/internal/domain/stock"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (RECYCLE_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (RECYCLE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL    string `default:"localhost:6379" usage:"Redis URL or host:port for carts (RECYCLE_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	JWTSecret   string `usage:"HMAC secret for bearer tokens (RECYCLE_JWT_SECRET)" flag:"jwt-secret"`
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
	Fulfillment FulfillmentConfig
	Rewards     RewardsConfig
	Notify      NotifyConfig
	Cart        CartConfig
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// FulfillmentConfig tunes order placement and the state machine.
type FulfillmentConfig struct {
	DeliveryFee       string `default:"5" usage:"Flat delivery fee added to every order" flag:"delivery-fee"`
	BuyerMarkup       string `default:"1.2" usage:"Price multiplier applied to buyer carts" flag:"buyer-markup"`
	ReservationPolicy string `default:"partial" usage:"Stock reservation policy: partial or strict" flag:"reservation-policy"`
	TxAttempts        int    `default:"3" usage:"Attempts for transactions hitting transient failures" flag:"tx-attempts"`
}

// RewardsConfig tunes points redemption and ledger reconciliation.
type RewardsConfig struct {
	RedeemRate        string        `default:"0.1" usage:"Wallet credit per redeemed point" flag:"redeem-rate"`
	ReconcileInterval time.Duration `default:"10m" usage:"Ledger reconciliation interval, 0 disables" flag:"reconcile-interval"`
	ReconcileWorkers  int           `default:"4" usage:"Accounts reconciled concurrently" flag:"reconcile-workers"`
}

// NotifyConfig controls the notification outbox relay.
type NotifyConfig struct {
	KafkaBrokers   string        `default:"" usage:"Comma separated Kafka brokers, empty logs notifications instead" flag:"kafka-brokers"`
	Topic          string        `default:"recycle.notifications" usage:"Kafka topic for notifications" flag:"notify-topic"`
	PollInterval   time.Duration `default:"1s" usage:"Outbox poll interval" flag:"notify-poll-interval"`
	PublishTimeout time.Duration `default:"5s" usage:"Per-notification publish timeout" flag:"notify-publish-timeout"`
	BatchSize      int           `default:"100" usage:"Notifications published per poll" flag:"notify-batch-size"`
}

// CartConfig controls cart persistence.
type CartConfig struct {
	TTL time.Duration `default:"720h" usage:"Idle cart expiry" flag:"cart-ttl"`
}

// Settings are the parsed domain values of a Config.
type Settings struct {
	DeliveryFee decimal.Decimal
	BuyerMarkup decimal.Decimal
	RedeemRate  decimal.Decimal
	Policy      stock.ReservationPolicy
	Brokers     []string
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "RECYCLE",
		Files:     []string{"config.yaml", "/etc/recycle/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and that every domain value parses.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set RECYCLE_DATABASE_URL or DATABASE_URL")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT secret is required: set RECYCLE_JWT_SECRET")
	}
	_, err := c.Settings()
	return err
}

// Settings parses the decimal and enum fields.
func (c *Config) Settings() (Settings, error) {
	var (
		s   Settings
		err error
	)
	if s.DeliveryFee, err = decimal.NewFromString(c.Fulfillment.DeliveryFee); err != nil {
		return s, errors.Wrap(err, "parse delivery fee")
	}
	if s.DeliveryFee.IsNegative() {
		return s, errors.New("delivery fee must not be negative")
	}
	if s.BuyerMarkup, err = decimal.NewFromString(c.Fulfillment.BuyerMarkup); err != nil {
		return s, errors.Wrap(err, "parse buyer markup")
	}
	if s.RedeemRate, err = decimal.NewFromString(c.Rewards.RedeemRate); err != nil {
		return s, errors.Wrap(err, "parse redeem rate")
	}
	if !s.RedeemRate.IsPositive() {
		return s, errors.New("redeem rate must be positive")
	}
	if s.Policy, err = stock.ParsePolicy(c.Fulfillment.ReservationPolicy); err != nil {
		return s, errors.Wrap(err, "parse reservation policy")
	}
	s.Brokers = broker.ParseBrokers(c.Notify.KafkaBrokers)
	return s, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL, REDIS_URL and PORT
// to the application's RECYCLE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" && os.Getenv("RECYCLE_REDIS_URL") == "" {
		c.RedisURL = v
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
