package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"mixflow/storage"

	"github.com/go-redis/redis/v8"
)

const statKeyPrefix = "mixflow:stat:"

// StatCache stores file metadata in Redis with a TTL.
type StatCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ storage.StatCache = (*StatCache)(nil)

// NewStatCache creates a StatCache.
func NewStatCache(client *redis.Client, ttl time.Duration) *StatCache {
	return &StatCache{client: client, ttl: ttl}
}

type cachedInfo struct {
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

func statKey(kind storage.Kind, name string) string {
	return statKeyPrefix + string(kind) + ":" + name
}

func (c *StatCache) Get(ctx context.Context, kind storage.Kind, name string) (storage.Info, bool, error) {
	data, err := c.client.Get(ctx, statKey(kind, name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return storage.Info{}, false, nil
		}
		return storage.Info{}, false, err
	}
	var ci cachedInfo
	if err := json.Unmarshal(data, &ci); err != nil {
		// 数据损坏, 按未命中处理
		return storage.Info{}, false, nil
	}
	return storage.Info{Kind: kind, Name: name, Size: ci.Size, ModTime: ci.ModTime}, true, nil
}

func (c *StatCache) Set(ctx context.Context, info storage.Info) error {
	data, err := json.Marshal(cachedInfo{Size: info.Size, ModTime: info.ModTime})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, statKey(info.Kind, info.Name), data, c.ttl).Err()
}

func (c *StatCache) Invalidate(ctx context.Context, kind storage.Kind, name string) error {
	return c.client.Del(ctx, statKey(kind, name)).Err()
}

// Purge deletes every cached stat and returns how many keys were removed.
func (c *StatCache) Purge(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, statKeyPrefix+"*", 500).Result()
		if err != nil {
			return removed, err
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, err
			}
			removed += int(n)
		}
		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}
