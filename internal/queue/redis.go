package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPollTimeout = time.Second

// Redis keeps each channel in a Redis list: LPUSH to publish, BRPOP to receive.
type Redis struct {
	client      *redis.Client
	prefix      string
	pollTimeout time.Duration
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to channel names to build list keys.
	Prefix      string
	PollTimeout time.Duration
}

func NewRedis(opts RedisOptions) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisFromClient(client, opts.Prefix, opts.PollTimeout)
}

func NewRedisFromClient(client *redis.Client, prefix string, pollTimeout time.Duration) *Redis {
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}
	return &Redis{client: client, prefix: prefix, pollTimeout: pollTimeout}
}

func (q *Redis) key(channel string) string {
	return q.prefix + channel
}

func (q *Redis) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := q.client.LPush(ctx, q.key(channel), payload).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", channel, err)
	}
	return nil
}

func (q *Redis) Receive(ctx context.Context, channel string) ([]byte, error) {
	res, err := q.client.BRPop(ctx, q.pollTimeout, q.key(channel)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrEmpty
	case errors.Is(err, redis.ErrClosed):
		return nil, ErrClosed
	case err != nil:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("receiving from %s: %w", channel, err)
	}
	// BRPOP replies with [key, value]
	if len(res) != 2 {
		return nil, fmt.Errorf("receiving from %s: unexpected reply of %d elements", channel, len(res))
	}
	return []byte(res[1]), nil
}

// Len returns the number of messages waiting on channel.
func (q *Redis) Len(ctx context.Context, channel string) (int64, error) {
	return q.client.LLen(ctx, q.key(channel)).Result()
}

func (q *Redis) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *Redis) Close() error {
	return q.client.Close()
}

// OpenRedis connects and pings the server.
func OpenRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	q := NewRedis(opts)
	if err := q.Ping(ctx); err != nil {
		q.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return q, nil
}
