package database

import "github.com/google/wire"

// ProviderSet 暴露连接池、事务管理器与就绪探针构造器供 Wire 依赖注入使用。
var ProviderSet = wire.NewSet(
	NewPgxPool,
	NewTxManager,
	NewPinger,
)
