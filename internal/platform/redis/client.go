// Package redis connects the worker to the store holding session and auth
// records. Redis is the system of record here, not a cache: a missing
// connection is fatal at startup.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"ipvreturn/internal/platform/config"
)

// Client wraps go-redis with the health probe the ops endpoint polls.
type Client struct {
	*redis.Client
}

// New dials the record store described by cfg and verifies it responds
// before handing the client out.
func New(cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{Client: client}, nil
}

// Health reports whether the record store still answers.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.Client.Close()
}
