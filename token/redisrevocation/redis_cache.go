// Package redisrevocation shares revoked access tokens between server instances through Redis.
package redisrevocation

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/jrsteele09/go-identity-server/token"
)

const defaultKeyPrefix = "identity:revoked:"

var _ token.RevokedTokenCache = (*Cache)(nil)

// Cache stores one key per revoked jti with a TTL matching the token's remaining lifetime.
type Cache struct {
	client  redis.UniversalClient
	prefix  string
	nowFunc func() time.Time
}

type Option func(*Cache)

func WithKeyPrefix(prefix string) Option {
	return func(c *Cache) {
		c.prefix = prefix
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(c *Cache) {
		c.nowFunc = now
	}
}

func New(client redis.UniversalClient, options ...Option) *Cache {
	c := &Cache{client: client, prefix: defaultKeyPrefix, nowFunc: time.Now}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// NewClient connects to the Redis URL and pings it.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "[redisrevocation.NewClient] parse url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "[redisrevocation.NewClient] ping")
	}
	return client, nil
}

func (c *Cache) Add(ctx context.Context, jti string, exp time.Time) error {
	ttl := exp.Sub(c.nowFunc())
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, c.prefix+jti, 1, ttl).Err(); err != nil {
		return errors.Wrap(err, "[Cache.Add]")
	}
	return nil
}

func (c *Cache) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := c.client.Exists(ctx, c.prefix+jti).Result()
	if err != nil {
		return false, errors.Wrap(err, "[Cache.IsRevoked]")
	}
	return n > 0, nil
}
