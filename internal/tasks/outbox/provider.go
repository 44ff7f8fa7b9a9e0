package outbox

import (
	loader "github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/config_loader"
	"github.com/bionicotaku/lingo-services-outreach/internal/repositories"

	"github.com/bionicotaku/lingo-utils/gcpubsub"
	outboxcfg "github.com/bionicotaku/lingo-utils/outbox/config"
	"github.com/go-kratos/kratos/v2/log"
	"go.opentelemetry.io/otel/metric"
)

// ProvideRunner 将 Outbox 仓储与 Pub/Sub 发布器包装为发布 Runner；未启用或未配置主题时返回 nil。
func ProvideRunner(
	repo *repositories.OutboxRepository,
	publisher gcpubsub.Publisher,
	cfg *loader.Config,
	outboxCfg outboxcfg.Config,
	meter metric.Meter,
	logger log.Logger,
) *Runner {
	if repo == nil || publisher == nil || cfg == nil || !cfg.PublisherOn() {
		log.NewHelper(logger).Info("outbox publisher disabled: pubsub topic not configured")
		return nil
	}
	runner, err := NewRunner(RunnerParams{
		Repo:      repo,
		Publisher: publisher,
		Config:    outboxCfg.Publisher,
		Logger:    logger,
		Meter:     meter,
	})
	if err != nil {
		log.NewHelper(logger).Errorw("msg", "init outbox runner failed", "error", err)
		return nil
	}
	return runner
}
