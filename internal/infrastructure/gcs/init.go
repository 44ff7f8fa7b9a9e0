package gcs

import (
	"context"
	"fmt"

	loader "github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/config_loader"
	"github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/ratelimit"

	"cloud.google.com/go/storage"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// ProviderSet 暴露存储客户端、对象存储与签名器。
var ProviderSet = wire.NewSet(
	ProvideClient,
	ProvideObjectStore,
	ProvideMediaSigner,
)

// ProvideClient 使用默认凭据创建存储客户端。
func ProvideClient(ctx context.Context, logger log.Logger) (*storage.Client, func(), error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("create gcs client: %w", err)
	}
	helper := log.NewHelper(logger)
	cleanup := func() {
		if err := client.Close(); err != nil {
			helper.Warnf("close gcs client: %v", err)
		}
	}
	return client, cleanup, nil
}

// ProvideObjectStore 供 Wire 注入使用。
func ProvideObjectStore(cfg *loader.Config, client *storage.Client, logger log.Logger) (*ObjectStore, error) {
	limiter := ratelimit.New(cfg.Storage.RateLimit, cfg.Storage.Burst)
	return NewObjectStore(client, cfg.Storage.Bucket, limiter, logger)
}

// ProvideMediaSigner 供 Wire 注入使用，只允许签发原始视频与预览前缀下的对象。
func ProvideMediaSigner(ctx context.Context, cfg *loader.Config, client *storage.Client, logger log.Logger) (*MediaSigner, error) {
	return NewMediaSigner(ctx, cfg.Storage.Bucket, cfg.Storage.SignerServiceAccount, logger,
		WithClient(client),
		WithAllowedPrefixes(cfg.Storage.RawPrefix, cfg.Storage.PreviewPrefix),
	)
}
