package cache

import (
	"context"
	"fmt"

	loader "github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/config_loader"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
)

// ProviderSet 暴露 Redis 客户端与聚合缓存。
var ProviderSet = wire.NewSet(ProvideRedisClient, ProvideAnalyticsCache)

// ProvideRedisClient 在配置了地址时创建客户端并校验连通性；未配置时返回 nil。
func ProvideRedisClient(ctx context.Context, cfg *loader.Config, logger log.Logger) (redis.UniversalClient, func(), error) {
	redisCfg := cfg.Data.Redis
	if redisCfg.Addr == "" {
		return nil, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", redisCfg.Addr, err)
	}
	helper := log.NewHelper(logger)
	helper.Infof("redis analytics cache connected: addr=%s db=%d", redisCfg.Addr, redisCfg.DB)
	cleanup := func() {
		if err := client.Close(); err != nil {
			helper.Warnf("close redis client: %v", err)
		}
	}
	return client, cleanup, nil
}

// ProvideAnalyticsCache 在 Redis 可用时构造缓存；否则返回 nil，读路径直接回源事件日志。
func ProvideAnalyticsCache(client redis.UniversalClient, cfg *loader.Config, logger log.Logger) (*AnalyticsCache, error) {
	if client == nil {
		return nil, nil
	}
	return NewAnalyticsCache(client, cfg.Data.Redis.TTL.Std(), cfg.Data.Redis.KeyPrefix, logger)
}
