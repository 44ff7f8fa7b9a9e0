package delivery

import (
	"github.com/bionicotaku/lingo-services-outreach/internal/services"

	"github.com/bionicotaku/lingo-utils/gcpubsub"
	"github.com/go-kratos/kratos/v2/log"
	"go.opentelemetry.io/otel/metric"
)

// ProvideRunner 在配置了订阅时构造回执消费任务；否则返回 nil。
func ProvideRunner(subscriber gcpubsub.Subscriber, ingest *services.IngestService, meter metric.Meter, logger log.Logger) (*Runner, error) {
	if subscriber == nil {
		log.NewHelper(logger).Info("delivery receipt consumer disabled: no subscription configured")
		return nil, nil
	}
	return NewRunner(subscriber, ingest, logger, meter)
}
