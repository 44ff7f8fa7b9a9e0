package pipeline

import (
	loader "github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/config_loader"
	"github.com/bionicotaku/lingo-services-outreach/internal/repositories"
	"github.com/bionicotaku/lingo-services-outreach/internal/services"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"go.opentelemetry.io/otel/metric"
)

// ProviderSet 暴露 Runner 与 Sweeper。
var ProviderSet = wire.NewSet(ProvideRunner, ProvideSweeper)

// ProvideRunner 以配置的运行超时构造 Runner。
func ProvideRunner(svc *services.PipelineService, cfg *loader.Config, meter metric.Meter, logger log.Logger) *Runner {
	return NewRunner(svc, cfg.Pipeline.RunTimeout.Std(), logger, meter)
}

// ProvideSweeper 以配置的调度表达式构造 Sweeper。
func ProvideSweeper(repo *repositories.OutreachRepository, svc *services.PipelineService, runner *Runner, cfg *loader.Config, logger log.Logger) (*Sweeper, error) {
	return NewSweeper(repo, svc, runner, SweeperConfig{
		Schedule:   cfg.Pipeline.SweepSchedule,
		StaleAfter: cfg.Pipeline.StaleAfter.Std(),
		Batch:      cfg.Pipeline.SweepBatch,
	}, logger)
}
