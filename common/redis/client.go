package redis

import (
	"context"
	"fmt"
	"time"

	"voto-alerts/common/config"

	"github.com/go-redis/redis/v8"
)

const defaultTimeout = 5 * time.Second

// Client is the go-redis client.
type Client = redis.Client

// NewRedisClient creates a client without connecting. Dial and I/O are
// bounded by cfg.Timeout.
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		MaxRetries:   1,
	})
}

// Connect creates a client and pings it. The client is closed when the ping fails.
func Connect(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := NewRedisClient(cfg)
	if err := Ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Ping checks the connection.
func Ping(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}

// Close closes the connection.
func Close(client *redis.Client) error {
	return client.Close()
}
