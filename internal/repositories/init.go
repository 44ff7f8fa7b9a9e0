package repositories

import "github.com/google/wire"

// ProviderSet 暴露 Repository 层的构造函数供 Wire 依赖注入使用。
var ProviderSet = wire.NewSet(
	NewOutreachRepository,
	NewVideoEventRepository,
	NewOutboxRepository,
)
