package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sibyl-ai/sibyl/pkg/models"
)

const (
	historyKeyPrefix = "sibyl:history:"
	cacheHashKey     = "sibyl:cache"
)

// redisBackend mirrors the sqlite record layout on Redis: one string per
// user holding the serialized history, one hash for the global cache.
type redisBackend struct {
	client *redis.Client
}

// OpenRedis creates a Store backed by Redis. The connection is verified with
// a ping so an unreachable server surfaces at construction time.
func OpenRedis(redisURL string) (*Store, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Store{kind: "redis", b: &redisBackend{client: client}}, nil
}

func (r *redisBackend) history(ctx context.Context, userID string) ([]models.Saying, error) {
	blob, err := r.client.Get(ctx, historyKeyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("read history", err)
	}

	var h []models.Saying
	if err := json.Unmarshal(blob, &h); err != nil {
		return nil, storageErr("decode history", err)
	}
	return h, nil
}

func (r *redisBackend) setHistory(ctx context.Context, userID string, h []models.Saying) error {
	blob, err := json.Marshal(h)
	if err != nil {
		return storageErr("encode history", err)
	}
	if err := r.client.Set(ctx, historyKeyPrefix+userID, blob, 0).Err(); err != nil {
		return storageErr("write history", err)
	}
	return nil
}

func (r *redisBackend) cached(ctx context.Context, key string) (models.Saying, bool, error) {
	blob, err := r.client.HGet(ctx, cacheHashKey, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Saying{}, false, nil
	}
	if err != nil {
		return models.Saying{}, false, storageErr("read cache", err)
	}

	var saying models.Saying
	if err := json.Unmarshal(blob, &saying); err != nil {
		return models.Saying{}, false, storageErr("decode cache entry", err)
	}
	return saying, true, nil
}

func (r *redisBackend) setCached(ctx context.Context, key string, saying models.Saying) error {
	blob, err := json.Marshal(saying)
	if err != nil {
		return storageErr("encode cache entry", err)
	}
	if err := r.client.HSet(ctx, cacheHashKey, key, blob).Err(); err != nil {
		return storageErr("write cache", err)
	}
	return nil
}

func (r *redisBackend) allHistories(ctx context.Context) (map[string][]models.Saying, error) {
	out := make(map[string][]models.Saying)

	iter := r.client.Scan(ctx, 0, historyKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		blob, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, storageErr("read history", err)
		}

		var h []models.Saying
		if err := json.Unmarshal(blob, &h); err != nil {
			return nil, storageErr("decode history", err)
		}
		out[strings.TrimPrefix(key, historyKeyPrefix)] = h
	}
	if err := iter.Err(); err != nil {
		return nil, storageErr("iterate histories", err)
	}
	return out, nil
}

func (r *redisBackend) cachedAll(ctx context.Context) ([]models.Saying, error) {
	entries, err := r.client.HGetAll(ctx, cacheHashKey).Result()
	if err != nil {
		return nil, storageErr("iterate cache", err)
	}

	out := make([]models.Saying, 0, len(entries))
	for _, blob := range entries {
		var saying models.Saying
		if err := json.Unmarshal([]byte(blob), &saying); err != nil {
			return nil, storageErr("decode cache entry", err)
		}
		out = append(out, saying)
	}
	return out, nil
}

func (r *redisBackend) close() error {
	return r.client.Close()
}
