package data

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/go-kratos/kratos/v2/log"

	"adengine/cmd/ad-engine/internal/domain"
	"adengine/pkg/cache"
)

// RedisSignalCache 基于 Redis 的信号发现结果缓存
type RedisSignalCache struct {
	cache *cache.RedisCache
	log   *log.Helper
}

// NewRedisSignalCache 创建信号缓存
func NewRedisSignalCache(redisCache *cache.RedisCache, logger log.Logger) *RedisSignalCache {
	return &RedisSignalCache{
		cache: redisCache,
		log:   log.NewHelper(log.With(logger, "module", "signal_cache")),
	}
}

// queryFingerprint 查询指纹：对规范化 JSON 取 SHA-256
func queryFingerprint(query *domain.SignalQuery) string {
	data, err := json.Marshal(query)
	if err != nil {
		return "invalid"
	}
	sum := sha256.Sum256(data)
	return "signals:" + hex.EncodeToString(sum[:16])
}

// Get 按查询指纹取缓存，未命中返回 ErrCacheMiss
func (c *RedisSignalCache) Get(ctx context.Context, query *domain.SignalQuery) ([]*domain.AudienceSignal, error) {
	var signals []*domain.AudienceSignal
	err := c.cache.GetObject(ctx, queryFingerprint(query), &signals)
	if err != nil {
		if cache.IsMiss(err) {
			return nil, domain.ErrCacheMiss
		}
		return nil, err
	}
	return signals, nil
}

// Set 写入缓存
func (c *RedisSignalCache) Set(ctx context.Context, query *domain.SignalQuery, signals []*domain.AudienceSignal, ttl time.Duration) error {
	return c.cache.SetObject(ctx, queryFingerprint(query), signals, ttl)
}
