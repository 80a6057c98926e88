package rates

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dshills/marketplace-discovery/pkg/types"
)

// ErrNotFound is returned by a Source when no rate is stored for a key
var ErrNotFound = errors.New("rate not found")

// Source is the live key-value store rates are read from
type Source interface {
	// Get returns the raw value stored at key, or ErrNotFound
	Get(ctx context.Context, key string) (string, error)
	Close() error
}

// Key returns the source key holding the USD rate of a currency, e.g. "ETH-USD_price"
func Key(currency types.CurrencyKey) string {
	return fmt.Sprintf("%s-%s_price", currency.Code(), types.QuoteCurrency)
}

// RedisConfig holds the Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisSource reads rates from Redis
type RedisSource struct {
	client *redis.Client
}

// NewRedisSource creates a Redis-backed Source. It does not dial: an unreachable
// server shows up as lookup errors, which the Provider answers with the fallback table.
func NewRedisSource(cfg RedisConfig) *RedisSource {
	return &RedisSource{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

// Get returns the value stored at key
func (s *RedisSource) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

// Ping checks that Redis is reachable
func (s *RedisSource) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection pool
func (s *RedisSource) Close() error {
	return s.client.Close()
}
