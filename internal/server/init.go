package server

import (
	"github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/database"

	"github.com/google/wire"
)

// ProviderSet 暴露 HTTP Server 构造。
var ProviderSet = wire.NewSet(
	NewHTTPServer,
	wire.Bind(new(ReadinessChecker), new(*database.Pinger)),
)
