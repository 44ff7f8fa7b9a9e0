package transcoder

import (
	"context"

	loader "github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/config_loader"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// ProviderSet 暴露转码客户端。
var ProviderSet = wire.NewSet(ProvideClient)

// ProvideClient 按配置构造客户端；未配置 endpoint 时返回 nil（流水线将按 disabled 跳过预览）。
func ProvideClient(ctx context.Context, cfg *loader.Config, logger log.Logger) (*Client, func(), error) {
	if cfg.Transcoder.Endpoint == "" {
		return nil, func() {}, nil
	}
	return NewClient(ctx, Config{
		Endpoint:  cfg.Transcoder.Endpoint,
		Timeout:   cfg.Transcoder.Timeout.Std(),
		RateLimit: cfg.Transcoder.RateLimit,
		Burst:     cfg.Transcoder.Burst,
	}, logger)
}
