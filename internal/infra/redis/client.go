package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultNamespace = "default"
	connectTimeout   = 5 * time.Second
)

// Config holds Redis connection configuration for the write-off task queue.
type Config struct {
	URL       string `yaml:"url"       env:"URL"`
	Password  string `yaml:"password"  env:"PASSWORD"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// KeyNamespace is the namespace queue keys are scoped to.
func (c Config) KeyNamespace() string {
	if c.Namespace == "" {
		return defaultNamespace
	}
	return c.Namespace
}

// Client is a Redis connection scoped to one key namespace.
type Client struct {
	rdb       *redis.Client
	namespace string
}

// NewClient connects to Redis and pings it before returning.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb, namespace: cfg.KeyNamespace()}, nil
}

// Namespace returns the key namespace of this client.
func (c *Client) Namespace() string { return c.namespace }

// Tasks returns the task queue stored under the client's namespace.
func (c *Client) Tasks() *TaskRepo {
	return NewTaskRepo(c, c.namespace)
}

// Health pings Redis.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
