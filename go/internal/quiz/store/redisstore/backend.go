// Package redisstore keeps each session document in a Redis hash and
// announces writes on a per-document pub/sub channel.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mcdev12/quizsync/go/internal/quiz/store"
)

const (
	DefaultPrefix = "quiz:"

	fieldData = "data"
	fieldRev  = "rev"
)

type Backend struct {
	rdb    *redis.Client
	prefix string
	owned  bool
}

var _ store.Backend = (*Backend)(nil)

// NewRedisClient parses url and checks the server answers.
func NewRedisClient(ctx context.Context, url string, log zerolog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info().
		Str("addr", opt.Addr).
		Int("db", opt.DB).
		Msg("Redis connected")

	return rdb, nil
}

// NewOwned wraps a client the backend closes with itself.
func NewOwned(rdb *redis.Client, prefix string) *Backend {
	b := New(rdb, prefix)
	b.owned = true
	return b
}

// New wraps a client the caller keeps ownership of.
func New(rdb *redis.Client, prefix string) *Backend {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Backend{rdb: rdb, prefix: prefix}
}

func (b *Backend) hashKey(key string) string { return b.prefix + key }
func (b *Backend) channel(key string) string { return b.prefix + "changes:" + key }

func (b *Backend) Load(ctx context.Context, key string) ([]byte, uint64, error) {
	vals, err := b.rdb.HMGet(ctx, b.hashKey(key), fieldData, fieldRev).Result()
	if err != nil {
		return nil, 0, err
	}
	rev, err := parseRev(vals[1])
	if err != nil {
		return nil, 0, err
	}
	data, ok := vals[0].(string)
	if !ok {
		return nil, rev, nil
	}
	return []byte(data), rev, nil
}

func parseRev(v any) (uint64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, nil
	}
	rev, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt revision %q: %w", s, err)
	}
	return rev, nil
}

func (b *Backend) CompareAndSwap(ctx context.Context, key string, data []byte, revision uint64) error {
	hk := b.hashKey(key)
	err := b.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, hk, fieldRev).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != revision {
			return store.ErrConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if data == nil {
				// The revision survives deletion so a stale writer still conflicts.
				pipe.HDel(ctx, hk, fieldData)
			} else {
				pipe.HSet(ctx, hk, fieldData, data)
			}
			pipe.HIncrBy(ctx, hk, fieldRev, 1)
			pipe.Publish(ctx, b.channel(key), revision+1)
			return nil
		})
		return err
	}, hk)

	if errors.Is(err, redis.TxFailedErr) {
		return store.ErrConflict
	}
	return err
}

func (b *Backend) Watch(ctx context.Context, key string) (<-chan struct{}, error) {
	pubsub := b.rdb.Subscribe(ctx, b.channel(key))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", key, err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}

func (b *Backend) Close() error {
	if b.owned {
		return b.rdb.Close()
	}
	return nil
}
