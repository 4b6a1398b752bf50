package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores entries as plain string keys under a prefix.
type Redis struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

// RedisOptions configures NewRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // defaults to "snowball:"
	Timeout  time.Duration // per call, defaults to 5s
}

// NewRedis connects to a single redis node.
func NewRedis(opts RedisOptions) (*Redis, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisWithClient(client, opts.Prefix, opts.Timeout), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.UniversalClient, prefix string, timeout time.Duration) *Redis {
	if prefix == "" {
		prefix = "snowball:"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Redis{client: client, prefix: prefix, timeout: timeout}
}

func (r *Redis) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.timeout)
}

func (r *Redis) Get(key string) (string, bool, error) {
	ctx, cancel := r.ctx()
	defer cancel()

	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %q: %w", key, err)
	}
	return v, true, nil
}

func (r *Redis) Set(key, value string) error {
	ctx, cancel := r.ctx()
	defer cancel()

	if err := r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (r *Redis) Remove(key string) error {
	ctx, cancel := r.ctx()
	defer cancel()

	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
