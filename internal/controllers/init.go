package controllers

import (
	loader "github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/config_loader"

	"github.com/google/wire"
)

// ProviderSet exposes controller/handler constructors for DI.
var ProviderSet = wire.NewSet(
	ProvideBaseHandler,
	NewOutreachHandler,
	NewTrackingHandler,
)

// ProvideBaseHandler 使用配置中的超时预算构造 BaseHandler。
func ProvideBaseHandler(cfg *loader.Config) *BaseHandler {
	return NewBaseHandler(HandlerTimeouts{
		Command: cfg.Handlers.CommandTimeout.Std(),
		Query:   cfg.Handlers.QueryTimeout.Std(),
		Ingest:  cfg.Handlers.IngestTimeout.Std(),
	})
}
