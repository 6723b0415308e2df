package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPoolSize    = 2
	defaultDialTimeout = 5 * time.Second
	healthTimeout      = time.Second
)

// Client is the connection behind the shared notification slot.
type Client struct {
	*redis.Client
	logger *slog.Logger
}

type Option func(*options)

type options struct {
	logger      *slog.Logger
	poolSize    int
	dialTimeout time.Duration
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithPoolSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.poolSize = n
		}
	}
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

// New connects to the redis:// URL and pings it once before returning.
func New(ctx context.Context, url string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, errors.New("redis URL is empty")
	}
	o := options{logger: slog.Default(), poolSize: defaultPoolSize, dialTimeout: defaultDialTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	redisOpts.PoolSize = o.poolSize
	redisOpts.DialTimeout = o.dialTimeout

	c := &Client{Client: redis.NewClient(redisOpts), logger: o.logger}
	if err := c.Health(ctx); err != nil {
		_ = c.Client.Close()
		return nil, err
	}
	o.logger.DebugContext(ctx, "notification cache connected", "addr", redisOpts.Addr, "db", redisOpts.DB)
	return c, nil
}

// Health pings the server with a short deadline.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	if err := c.Client.Close(); err != nil {
		c.logger.Warn("closing notification cache connection", "error", err)
		return err
	}
	return nil
}
