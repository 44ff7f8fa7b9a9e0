// Package cache 提供基于 Redis 的聚合指标读缓存；事件日志始终是事实来源。
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bionicotaku/lingo-services-outreach/internal/models/vo"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL       = 10 * time.Minute
	defaultKeyPrefix = "outreach:analytics:"
)

// setIfNewer 仅当新值的 event_count 不小于已缓存值时写入，避免并发请求以旧聚合覆盖新聚合。
var setIfNewer = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'event_count')
if current and tonumber(current) > tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'event_count', ARGV[1], 'payload', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// AnalyticsCache 以 hash 形式缓存每个视频的聚合指标。
type AnalyticsCache struct {
	client    redis.UniversalClient
	ttl       time.Duration
	keyPrefix string
	log       *log.Helper
}

// NewAnalyticsCache 构造缓存；ttl 与 keyPrefix 为空时使用默认值。
func NewAnalyticsCache(client redis.UniversalClient, ttl time.Duration, keyPrefix string, logger log.Logger) (*AnalyticsCache, error) {
	if client == nil {
		return nil, errors.New("analytics cache: redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &AnalyticsCache{
		client:    client,
		ttl:       ttl,
		keyPrefix: keyPrefix,
		log:       log.NewHelper(logger),
	}, nil
}

// Get 读取缓存；未命中返回 (nil, false, nil)。
func (c *AnalyticsCache) Get(ctx context.Context, videoID uuid.UUID) (*vo.AnalyticsAggregate, bool, error) {
	payload, err := c.client.HGet(ctx, c.key(videoID), "payload").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis hget: %w", err)
	}
	var aggregate vo.AnalyticsAggregate
	if err := json.Unmarshal(payload, &aggregate); err != nil {
		c.log.WithContext(ctx).Warnf("drop corrupted analytics cache entry: video_id=%s err=%v", videoID, err)
		_ = c.client.Del(ctx, c.key(videoID)).Err()
		return nil, false, nil
	}
	return &aggregate, true, nil
}

// Set 写入聚合；已缓存更新的聚合时保持不变。
func (c *AnalyticsCache) Set(ctx context.Context, videoID uuid.UUID, aggregate vo.AnalyticsAggregate) error {
	payload, err := json.Marshal(aggregate)
	if err != nil {
		return fmt.Errorf("marshal analytics aggregate: %w", err)
	}
	err = setIfNewer.Run(ctx, c.client, []string{c.key(videoID)},
		aggregate.EventCount, payload, c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redis set analytics: %w", err)
	}
	return nil
}

// Invalidate 删除缓存项。
func (c *AnalyticsCache) Invalidate(ctx context.Context, videoID uuid.UUID) error {
	if err := c.client.Del(ctx, c.key(videoID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (c *AnalyticsCache) key(videoID uuid.UUID) string {
	return c.keyPrefix + videoID.String()
}
