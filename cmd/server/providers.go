package main

import (
	"github.com/bionicotaku/lingo-services-outreach/internal/controllers"
	"github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/cache"
	loader "github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/config_loader"
	"github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/gcs"
	"github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/transcoder"
	"github.com/bionicotaku/lingo-services-outreach/internal/services"
	"github.com/bionicotaku/lingo-services-outreach/internal/tasks/pipeline"

	"github.com/bionicotaku/lingo-utils/txmanager"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// serviceProviderSet 将配置映射为用例构造参数，并把用例绑定到 Handler 所需的接口。
var serviceProviderSet = wire.NewSet(
	provideMeter,
	provideTranscoder,
	provideAnalyticsCache,
	providePipelineService,
	provideIngestService,
	provideCommandService,
	provideQueryService,
	wire.Bind(new(services.BinaryStorage), new(*gcs.ObjectStore)),
	wire.Bind(new(services.URLSigner), new(*gcs.MediaSigner)),
	wire.Bind(new(controllers.OutreachCommander), new(*services.OutreachCommandService)),
	wire.Bind(new(controllers.OutreachQuerier), new(*services.OutreachQueryService)),
	wire.Bind(new(controllers.PipelineOperator), new(*services.PipelineService)),
	wire.Bind(new(controllers.PipelineRunner), new(*pipeline.Runner)),
	wire.Bind(new(controllers.EventIngestor), new(*services.IngestService)),
)

// provideMeter 从 observability.Init 注册的全局 MeterProvider 取服务级 Meter。
func provideMeter(meta loader.ServiceMetadata) metric.Meter {
	return otel.GetMeterProvider().Meter(meta.Name)
}

// provideTranscoder 未配置转码服务时返回 nil 接口，流水线据此跳过预览。
func provideTranscoder(client *transcoder.Client) services.Transcoder {
	if client == nil {
		return nil
	}
	return client
}

// provideAnalyticsCache 未配置 Redis 时返回 nil 接口，读写直接走事件日志。
func provideAnalyticsCache(c *cache.AnalyticsCache) services.AnalyticsCache {
	if c == nil {
		return nil
	}
	return c
}

func providePipelineService(store services.OutreachStore, storage services.BinaryStorage, tc services.Transcoder, outbox services.OutboxWriter, tx txmanager.Manager, cfg *loader.Config, logger log.Logger) (*services.PipelineService, error) {
	return services.NewPipelineService(store, storage, tc, outbox, tx, services.PipelineConfig{
		PreviewEnabled:       cfg.Pipeline.PreviewOn(),
		PreviewFailurePolicy: services.PreviewFailurePolicy(cfg.Pipeline.PreviewFailurePolicy),
		LandingBaseURL:       cfg.Pipeline.LandingBaseURL,
		RawPrefix:            cfg.Storage.RawPrefix,
		PreviewPrefix:        cfg.Storage.PreviewPrefix,
		MaxCASRetries:        cfg.Pipeline.MaxCASRetries,
	}, logger)
}

func provideIngestService(store services.OutreachStore, events services.EventLog, outbox services.OutboxWriter, ac services.AnalyticsCache, tx txmanager.Manager, cfg *loader.Config, logger log.Logger) *services.IngestService {
	return services.NewIngestService(store, events, outbox, ac, tx, cfg.Ingest.MaxCASRetries, logger)
}

func provideCommandService(store services.OutreachStore, events services.EventLog, outbox services.OutboxWriter, ac services.AnalyticsCache, tx txmanager.Manager, cfg *loader.Config, logger log.Logger) *services.OutreachCommandService {
	return services.NewOutreachCommandService(store, events, outbox, ac, tx, cfg.Ingest.MaxCASRetries, logger)
}

func provideQueryService(store services.OutreachStore, events services.EventLog, ac services.AnalyticsCache, signer services.URLSigner, cfg *loader.Config, logger log.Logger) *services.OutreachQueryService {
	return services.NewOutreachQueryService(store, events, ac, signer, cfg.Storage.SignedURLTTL.Std(), logger)
}
