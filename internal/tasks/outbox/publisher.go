// Package outbox 将 outbox_events 中的外联事件交由共享发布器投递到 Pub/Sub。
package outbox

import (
	"context"
	"errors"
	"sync"

	"github.com/bionicotaku/lingo-services-outreach/internal/repositories"

	"github.com/bionicotaku/lingo-utils/gcpubsub"
	outboxcfg "github.com/bionicotaku/lingo-utils/outbox/config"
	outboxpublisher "github.com/bionicotaku/lingo-utils/outbox/publisher"
	"github.com/go-kratos/kratos/v2/log"
	"go.opentelemetry.io/otel/metric"
)

// Config 直接复用共享发布器配置。
type Config = outboxcfg.PublisherConfig

// RunnerParams 注入构建 Runner 所需的依赖。
type RunnerParams struct {
	Repo      *repositories.OutboxRepository
	Publisher gcpubsub.Publisher
	Config    Config
	Logger    log.Logger
	Meter     metric.Meter
}

// Runner 包装共享发布 Runner，并适配 kratos transport.Server 生命周期。
type Runner struct {
	delegate *outboxpublisher.Runner
	log      *log.Helper

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner 构造 Outbox 发布 Runner。
func NewRunner(params RunnerParams) (*Runner, error) {
	if params.Repo == nil {
		return nil, errors.New("outbox: repository is required")
	}
	if params.Publisher == nil {
		return nil, errors.New("outbox: publisher is required")
	}
	delegate, err := outboxpublisher.NewRunner(outboxpublisher.RunnerParams{
		Store:     params.Repo.Shared(),
		Publisher: params.Publisher,
		Config:    params.Config,
		Logger:    params.Logger,
		Meter:     params.Meter,
	})
	if err != nil {
		return nil, err
	}
	return &Runner{delegate: delegate, log: log.NewHelper(params.Logger)}, nil
}

// Run 阻塞执行发布循环，直到 ctx 取消。
func (r *Runner) Run(ctx context.Context) error {
	if r == nil || r.delegate == nil {
		return nil
	}
	r.log.WithContext(ctx).Info("outbox publisher started")
	err := r.delegate.Run(ctx)
	r.log.Info("outbox publisher stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Start 满足 transport.Server：阻塞执行发布循环，直至 Stop 被调用。
func (r *Runner) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.mu.Lock()
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()
	defer close(done)
	return r.Run(runCtx)
}

// Stop 结束发布循环并等待在途批次写回。
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
