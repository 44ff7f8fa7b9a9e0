// Package main boots the Kratos HTTP entrypoint for the outreach service.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	loader "github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/config_loader"
	loginfra "github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/logger"
	"github.com/bionicotaku/lingo-services-outreach/internal/tasks/delivery"
	"github.com/bionicotaku/lingo-services-outreach/internal/tasks/outbox"
	"github.com/bionicotaku/lingo-services-outreach/internal/tasks/pipeline"

	"github.com/bionicotaku/lingo-utils/observability"
	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"

	_ "go.uber.org/automaxprocs"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name is the name of the compiled software.
	Name string
	// Version is the version of the compiled software.
	Version string
	// flagconf is the config flag.
	flagconf string
)

func init() {
	flag.StringVar(&flagconf, "conf", "", "config path, eg: -conf configs/config.yaml")
}

func newApp(meta loader.ServiceMetadata, logger log.Logger, hs *http.Server, runner *pipeline.Runner, sweeper *pipeline.Sweeper, publisher *outbox.Runner, receipts *delivery.Runner) *kratos.App {
	servers := []transport.Server{hs, runner, sweeper}
	if publisher != nil {
		servers = append(servers, publisher)
	}
	if receipts != nil {
		servers = append(servers, receipts)
	}
	return kratos.New(
		kratos.ID(meta.InstanceID),
		kratos.Name(meta.Name),
		kratos.Version(meta.Version),
		kratos.Metadata(map[string]string{"environment": meta.Environment}),
		kratos.Logger(logger),
		kratos.Server(servers...),
	)
}

func main() {
	flag.Parse()
	if Name != "" {
		_ = os.Setenv("SERVICE_NAME", Name)
	}
	if Version != "" {
		_ = os.Setenv("SERVICE_VERSION", Version)
	}

	// Load configuration (.env, YAML, env overrides, defaults, validation).
	bundle, err := loader.Build(loader.Params{ConfPath: flagconf})
	if err != nil {
		panic(err)
	}

	// Build the structured logger used by the entire application.
	logger, err := loginfra.NewLogger(bundle.Service)
	if err != nil {
		panic(err)
	}

	obsShutdown, err := observability.Init(context.Background(), bundle.ObsConfig,
		observability.WithLogger(logger),
		observability.WithServiceName(bundle.Service.Name),
		observability.WithServiceVersion(bundle.Service.Version),
		observability.WithEnvironment(bundle.Service.Environment),
	)
	if err != nil {
		panic(err)
	}
	defer func() {
		if obsShutdown == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obsShutdown(ctx); err != nil {
			log.NewHelper(logger).Warnf("shutdown observability: %v", err)
		}
	}()

	// Assemble all dependencies via Wire and create the Kratos app.
	app, cleanup, err := wireApp(context.Background(), bundle, logger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// Start the application and block until a stop signal is received.
	if err := app.Run(); err != nil {
		panic(err)
	}
}
