package database

import (
	"context"
	"errors"
	"time"

	"admission-portal/internal/common/config"
	apperrors "admission-portal/internal/common/errors"

	"github.com/redis/go-redis/v9"
)

// RedisClient backs the application id sequence and the reconciliation lease.
// Both are single-key commands, so a small pool is enough.
type RedisClient struct {
	Client *redis.Client
}

func NewRedis(cfg config.RedisConfig) (*RedisClient, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is empty")
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ClientName:   "admission-worker",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     poolSize,
		MinIdleConns: 1,
		MaxRetries:   2,
	})
	return &RedisClient{Client: rdb}, nil
}

// Ping reports ResourceUnavailable when the server cannot be reached.
func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return apperrors.NewResourceUnavailableError("redis", err)
	}
	return nil
}

func (c *RedisClient) Close() error {
	if c == nil || c.Client == nil {
		return nil
	}
	return c.Client.Close()
}
