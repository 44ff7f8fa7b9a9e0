//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"context"

	"github.com/bionicotaku/lingo-services-outreach/internal/controllers"
	"github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/cache"
	loader "github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/config_loader"
	"github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/database"
	"github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/gcs"
	"github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/pubsub"
	"github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/transcoder"
	"github.com/bionicotaku/lingo-services-outreach/internal/repositories"
	"github.com/bionicotaku/lingo-services-outreach/internal/server"
	"github.com/bionicotaku/lingo-services-outreach/internal/services"
	"github.com/bionicotaku/lingo-services-outreach/internal/tasks/delivery"
	"github.com/bionicotaku/lingo-services-outreach/internal/tasks/outbox"
	"github.com/bionicotaku/lingo-services-outreach/internal/tasks/pipeline"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp init kratos application.
func wireApp(context.Context, *loader.Bundle, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		loader.ProviderSet,
		database.ProviderSet,
		repositories.ProviderSet,
		gcs.ProviderSet,
		transcoder.ProviderSet,
		cache.ProviderSet,
		pubsub.ProviderSet,
		services.ProviderSet,
		serviceProviderSet,
		pipeline.ProviderSet,
		outbox.ProvideRunner,
		delivery.ProvideRunner,
		controllers.ProviderSet,
		server.ProviderSet,
		newApp,
	))
}
