// Package main 提供 Outbox 发布任务的独立进程入口，便于与 HTTP 服务分开部署。
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	loader "github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/config_loader"
	loginfra "github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/logger"
	"github.com/bionicotaku/lingo-services-outreach/internal/tasks/outbox"

	"github.com/bionicotaku/lingo-utils/observability"
	"github.com/go-kratos/kratos/v2/log"

	_ "go.uber.org/automaxprocs"
)

type outboxTaskApp struct {
	Runner *outbox.Runner
	Logger log.Logger
}

func main() {
	ctx := context.Background()

	confFlag := flag.String("conf", "", "config path, eg: -conf configs/config.yaml")
	flag.Parse()

	bundle, err := loader.Build(loader.Params{ConfPath: *confFlag})
	if err != nil {
		panic(err)
	}
	logger, err := loginfra.NewLogger(bundle.Service)
	if err != nil {
		panic(err)
	}

	obsShutdown, err := observability.Init(ctx, bundle.ObsConfig,
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obsShutdown(shutdownCtx); err != nil {
			log.NewHelper(logger).Warnf("shutdown observability: %v", err)
		}
	}()

	app, cleanup, err := wireOutboxTask(ctx, bundle, logger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	helper := log.NewHelper(app.Logger)
	if app.Runner == nil {
		helper.Warn("outbox publisher disabled (pubsub.project_id / pubsub.topic_id not configured)")
		return
	}

	helper.Info("starting outbox publisher")

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Runner.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		helper.Errorf("outbox publisher stopped unexpectedly: %v", err)
		os.Exit(1)
	}

	helper.Info("outbox publisher stopped")
}

func newOutboxTaskApp(logger log.Logger, runner *outbox.Runner) *outboxTaskApp {
	return &outboxTaskApp{Runner: runner, Logger: logger}
}
