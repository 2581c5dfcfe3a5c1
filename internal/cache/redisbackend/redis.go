// Package redisbackend stores cache entries in Redis. Each entry is a JSON
// string under its own key; a sorted set scored by creation time indexes the
// queries for listing.
package redisbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/FranksOps/sift/internal/cache"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix = "sift:cache:"
	indexKey      = "index"
)

// ensure redisBackend implements cache.Backend
var _ cache.Backend = (*redisBackend)(nil)

type redisBackend struct {
	client *redis.Client
	prefix string
}

// New connects to the Redis server described by url
// (redis://[:password@]host:port/db).
func New(ctx context.Context, url string) (cache.Backend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewFromClient(client, DefaultPrefix), nil
}

// NewFromClient uses an existing client. Keys are namespaced by prefix.
func NewFromClient(client *redis.Client, prefix string) cache.Backend {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &redisBackend{client: client, prefix: prefix}
}

func (b *redisBackend) entryKey(query string) string {
	return b.prefix + "q:" + query
}

func (b *redisBackend) Get(ctx context.Context, query string) (*cache.Entry, error) {
	data, err := b.client.Get(ctx, b.entryKey(query)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var e cache.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	return &e, nil
}

func (b *redisBackend) Put(ctx context.Context, entry *cache.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, b.entryKey(entry.Query), data, 0)
		pipe.ZAdd(ctx, b.prefix+indexKey, redis.Z{
			Score:  float64(entry.CreatedAt.UnixMicro()),
			Member: entry.Query,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	return nil
}

func (b *redisBackend) List(ctx context.Context, filter cache.Filter) ([]*cache.Entry, error) {
	if filter.Query != "" {
		e, err := b.Get(ctx, filter.Query)
		if err != nil || e == nil {
			return nil, err
		}
		if !cache.Match(e, filter) {
			return nil, nil
		}
		return cache.Page([]*cache.Entry{e}, filter), nil
	}

	lo := "-inf"
	if filter.Since != nil {
		lo = strconv.FormatInt(filter.Since.UnixMicro(), 10)
	}
	rangeBy := &redis.ZRangeBy{Min: lo, Max: "+inf"}
	if filter.Limit > 0 || filter.Offset > 0 {
		rangeBy.Offset = int64(max(filter.Offset, 0))
		rangeBy.Count = -1
		if filter.Limit > 0 {
			rangeBy.Count = int64(filter.Limit)
		}
	}

	queries, err := b.client.ZRevRangeByScore(ctx, b.prefix+indexKey, rangeBy).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list: %w", err)
	}

	entries := make([]*cache.Entry, 0, len(queries))
	for _, q := range queries {
		e, err := b.Get(ctx, q)
		if err != nil {
			return nil, err
		}
		if e != nil {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (b *redisBackend) Close() error {
	return b.client.Close()
}
