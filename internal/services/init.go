// Package services 编排视频外联生命周期用例：状态引擎、聚合、建议规则、流水线与事件写入。
package services

import (
	"github.com/bionicotaku/lingo-services-outreach/internal/repositories"

	"github.com/google/wire"
)

// ProviderSet 将仓储实现绑定到服务层依赖的接口；服务构造器由 cmd 层按配置组装。
var ProviderSet = wire.NewSet(
	wire.Bind(new(OutreachStore), new(*repositories.OutreachRepository)),
	wire.Bind(new(EventLog), new(*repositories.VideoEventRepository)),
	wire.Bind(new(OutboxWriter), new(*repositories.OutboxRepository)),
)
