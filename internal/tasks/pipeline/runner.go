// Package pipeline 托管流水线的后台运行：与请求生命周期解耦执行、按视频去重、
// 停机时中断在途运行，并由定时清扫回收心跳超时的记录。
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bionicotaku/lingo-services-outreach/internal/models/vo"
	"github.com/bionicotaku/lingo-services-outreach/internal/services"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
)

const (
	defaultRunTimeout = 10 * time.Minute
	interruptTimeout  = 10 * time.Second

	reasonShutdown = "service shutting down"
)

// Pipeline 为 Runner 依赖的流水线能力。
type Pipeline interface {
	Run(ctx context.Context, videoID uuid.UUID, binary *services.BinaryInput) (*vo.PipelineProgress, error)
	MarkInterrupted(ctx context.Context, videoID uuid.UUID, reason string) error
}

// Runner 在独立于请求的上下文中执行流水线，同一视频同时只有一个运行。
type Runner struct {
	pipeline   Pipeline
	runTimeout time.Duration
	log        *log.Helper

	group   singleflight.Group
	mu      sync.Mutex
	running map[uuid.UUID]time.Time
	wg      sync.WaitGroup

	base     context.Context
	shutdown context.CancelFunc

	runs     metric.Int64Counter
	duration metric.Float64Histogram
}

// NewRunner 构造 Runner；meter 为 nil 时不记录指标。
func NewRunner(pipeline Pipeline, runTimeout time.Duration, logger log.Logger, meter metric.Meter) *Runner {
	if runTimeout <= 0 {
		runTimeout = defaultRunTimeout
	}
	base, shutdown := context.WithCancel(context.Background())
	r := &Runner{
		pipeline:   pipeline,
		runTimeout: runTimeout,
		log:        log.NewHelper(logger),
		running:    make(map[uuid.UUID]time.Time),
		base:       base,
		shutdown:   shutdown,
	}
	if meter != nil {
		var err error
		if r.runs, err = meter.Int64Counter("pipeline_runs_total",
			metric.WithDescription("Pipeline runs by outcome")); err != nil {
			r.log.Warnf("init pipeline runs counter: %v", err)
		}
		if r.duration, err = meter.Float64Histogram("pipeline_run_duration_seconds",
			metric.WithDescription("Wall time of pipeline runs"), metric.WithUnit("s")); err != nil {
			r.log.Warnf("init pipeline duration histogram: %v", err)
		}
	}
	return r
}

// Run 同步执行流水线；同一视频的并发调用共享同一次运行的结果。
// 调用方取消只会停止等待，运行本身继续直至完成、超时或停机。
func (r *Runner) Run(ctx context.Context, videoID uuid.UUID, binary *services.BinaryInput) (*vo.PipelineProgress, error) {
	ch, _, err := r.join(ctx, videoID, binary)
	if err != nil {
		return nil, err
	}
	select {
	case res := <-ch:
		progress, _ := res.Val.(*vo.PipelineProgress)
		return r.decorate(progress), res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Launch 在后台启动流水线并立即返回；已有运行时返回 false。
func (r *Runner) Launch(ctx context.Context, videoID uuid.UUID, binary *services.BinaryInput) (bool, error) {
	_, started, err := r.join(ctx, videoID, binary)
	if err != nil {
		return false, err
	}
	return started, nil
}

// join 在锁内登记运行并挂到 singleflight 上；started 表示本次调用发起了新运行。
// 登记与 Forget 都在 mu 内完成，running 与 singleflight 的在途集合始终一致。
func (r *Runner) join(ctx context.Context, videoID uuid.UUID, binary *services.BinaryInput) (<-chan singleflight.Result, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.base.Err() != nil {
		return nil, false, services.ErrRunnerStopped
	}
	_, busy := r.running[videoID]
	if !busy {
		r.running[videoID] = time.Now()
		r.wg.Add(1)
	}
	// DoChan 的结果通道带缓冲，无人接收也不会泄漏 goroutine。
	ch := r.group.DoChan(videoID.String(), func() (any, error) {
		return r.execute(ctx, videoID, binary)
	})
	return ch, !busy, nil
}

// Running 报告该视频是否有在途运行。
func (r *Runner) Running(videoID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[videoID]
	return ok
}

// Decorate 为进度视图补充在途标记。
func (r *Runner) Decorate(progress *vo.PipelineProgress) *vo.PipelineProgress {
	return r.decorate(progress)
}

func (r *Runner) decorate(progress *vo.PipelineProgress) *vo.PipelineProgress {
	if progress == nil {
		return nil
	}
	// singleflight 把同一指针交给所有等待者，只改副本。
	view := *progress
	view.Running = r.Running(progress.VideoID)
	return &view
}

// Start 满足 transport.Server；Runner 按需启动运行，无需常驻循环。
func (r *Runner) Start(context.Context) error {
	return nil
}

// Stop 取消所有在途运行并等待其写回失败记录；超出 ctx 期限的运行显式标记为中断。
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	r.shutdown()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.log.Info("pipeline runner stopped")
		return nil
	case <-ctx.Done():
	}

	r.mu.Lock()
	pending := make([]uuid.UUID, 0, len(r.running))
	for id := range r.running {
		pending = append(pending, id)
	}
	r.mu.Unlock()

	var errs []error
	for _, id := range pending {
		markCtx, cancel := context.WithTimeout(context.Background(), interruptTimeout)
		if err := r.pipeline.MarkInterrupted(markCtx, id, reasonShutdown); err != nil {
			errs = append(errs, err)
			r.log.Errorf("mark pipeline interrupted failed: video_id=%s err=%v", id, err)
		}
		cancel()
	}
	r.log.Warnf("pipeline runner stopped with %d runs still in flight", len(pending))
	return errors.Join(errs...)
}

func (r *Runner) execute(parent context.Context, videoID uuid.UUID, binary *services.BinaryInput) (*vo.PipelineProgress, error) {
	started := time.Now()
	defer func() {
		r.mu.Lock()
		r.group.Forget(videoID.String())
		delete(r.running, videoID)
		r.mu.Unlock()
		r.wg.Done()
	}()

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(parent), r.runTimeout)
	defer cancel()
	stopWatch := context.AfterFunc(r.base, cancel)
	defer stopWatch()

	r.log.WithContext(runCtx).Infof("pipeline run started: video_id=%s", videoID)
	progress, err := r.pipeline.Run(runCtx, videoID, binary)
	outcome := "completed"
	switch {
	case err == nil:
	case r.base.Err() != nil:
		outcome = "interrupted"
	default:
		outcome = "failed"
	}
	r.record(runCtx, outcome, time.Since(started))
	if err != nil {
		r.log.WithContext(runCtx).Warnf("pipeline run %s: video_id=%s err=%v", outcome, videoID, err)
	}
	return progress, err
}

func (r *Runner) record(ctx context.Context, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	ctx = context.WithoutCancel(ctx)
	if r.runs != nil {
		r.runs.Add(ctx, 1, attrs)
	}
	if r.duration != nil {
		r.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
}
