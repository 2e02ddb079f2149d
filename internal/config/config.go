// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the checkout service needs at startup.
type Config struct {
	Addr          string `env:"ADDR" envDefault:":8080"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:3000"`

	SQLitePath string `env:"SQLITE_PATH" envDefault:"./data/checkout.db"`
	RedisAddr  string `env:"REDIS_ADDR" envDefault:"localhost:6379"`

	GatewayBaseURL       string        `env:"GATEWAY_BASE_URL,required"`
	GatewayAPIKey        string        `env:"GATEWAY_API_KEY,required"`
	GatewayWebhookSecret string        `env:"GATEWAY_WEBHOOK_SECRET,required"`
	GatewayTimeout       time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"15s"`

	RateLimitCapacity int           `env:"CHECKOUT_RATE_CAPACITY" envDefault:"5"`
	RateLimitRefill   int           `env:"CHECKOUT_RATE_REFILL" envDefault:"5"`
	RateLimitWindow   time.Duration `env:"CHECKOUT_RATE_WINDOW" envDefault:"1m"`

	BreakerThreshold    int           `env:"BREAKER_THRESHOLD" envDefault:"5"`
	BreakerResetTimeout time.Duration `env:"BREAKER_RESET_TIMEOUT" envDefault:"1m"`

	MaxCartItems      int           `env:"MAX_CART_ITEMS" envDefault:"50"`
	AbandonedOrderTTL time.Duration `env:"ABANDONED_ORDER_TTL" envDefault:"1h"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
