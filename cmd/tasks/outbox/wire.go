//go:build wireinject
// +build wireinject

// Package main 为 outbox 任务 CLI 提供 Wire 依赖注入定义。
package main

import (
	"context"

	loader "github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/config_loader"
	"github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/database"
	"github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/pubsub"
	"github.com/bionicotaku/lingo-services-outreach/internal/repositories"
	"github.com/bionicotaku/lingo-services-outreach/internal/tasks/outbox"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

//go:generate go run github.com/google/wire/cmd/wire

func wireOutboxTask(context.Context, *loader.Bundle, log.Logger) (*outboxTaskApp, func(), error) {
	panic(wire.Build(
		loader.ProviderSet,
		provideMeter,
		database.NewPgxPool,
		repositories.NewOutboxRepository,
		pubsub.ProviderSet,
		outbox.ProvideRunner,
		newOutboxTaskApp,
	))
}
