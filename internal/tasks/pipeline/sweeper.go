package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/bionicotaku/lingo-services-outreach/internal/models/po"

	"github.com/bionicotaku/lingo-utils/txmanager"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

const (
	defaultSweepSchedule = "@every 1m"
	defaultSweepBatch    = 50
	defaultStaleAfter    = 15 * time.Minute

	reasonHeartbeatLost = "heartbeat lost"
)

// StaleLister 查询心跳超时的 processing 记录。
type StaleLister interface {
	ListStale(ctx context.Context, sess txmanager.Session, before time.Time, limit int) ([]*po.VideoOutreach, error)
}

// Interrupter 将未完成的运行标记为失败。
type Interrupter interface {
	MarkInterrupted(ctx context.Context, videoID uuid.UUID, reason string) error
}

// SweeperConfig 控制清扫频率与判定阈值。
type SweeperConfig struct {
	Schedule   string
	StaleAfter time.Duration
	Batch      int
}

// Sweeper 周期性回收进程崩溃或重启后遗留的 processing 记录，使其进入可重试的失败状态。
type Sweeper struct {
	lister      StaleLister
	interrupter Interrupter
	runner      *Runner
	cfg         SweeperConfig
	cron        *cron.Cron
	clock       func() time.Time
	log         *log.Helper
}

// NewSweeper 构造清扫任务；runner 非空时跳过本进程仍在执行的运行。
func NewSweeper(lister StaleLister, interrupter Interrupter, runner *Runner, cfg SweeperConfig, logger log.Logger) (*Sweeper, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = defaultSweepSchedule
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	if cfg.Batch <= 0 {
		cfg.Batch = defaultSweepBatch
	}
	s := &Sweeper{
		lister:      lister,
		interrupter: interrupter,
		runner:      runner,
		cfg:         cfg,
		cron:        cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		clock:       time.Now,
		log:         log.NewHelper(logger),
	}
	if _, err := s.cron.AddFunc(cfg.Schedule, s.tick); err != nil {
		return nil, fmt.Errorf("schedule pipeline sweeper %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

// WithClock 覆盖时钟，仅用于测试。
func (s *Sweeper) WithClock(clock func() time.Time) *Sweeper {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// Start 启动 cron 调度，满足 transport.Server。
func (s *Sweeper) Start(context.Context) error {
	s.log.Infof("pipeline sweeper started: schedule=%q stale_after=%s batch=%d", s.cfg.Schedule, s.cfg.StaleAfter, s.cfg.Batch)
	s.cron.Start()
	return nil
}

// Stop 停止调度并等待正在执行的清扫结束。
func (s *Sweeper) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		s.log.Info("pipeline sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := s.SweepOnce(ctx); err != nil {
		s.log.WithContext(ctx).Warnf("pipeline sweep failed: %v", err)
	}
}

// SweepOnce 执行一次清扫，返回被标记中断的记录数。
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	before := s.clock().Add(-s.cfg.StaleAfter)
	stale, err := s.lister.ListStale(ctx, nil, before, s.cfg.Batch)
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, outreach := range stale {
		if s.runner != nil && s.runner.Running(outreach.VideoID) {
			continue
		}
		if err := s.interrupter.MarkInterrupted(ctx, outreach.VideoID, reasonHeartbeatLost); err != nil {
			s.log.WithContext(ctx).Warnf("mark stale pipeline failed: video_id=%s err=%v", outreach.VideoID, err)
			continue
		}
		marked++
	}
	if marked > 0 {
		s.log.WithContext(ctx).Infof("pipeline sweep marked %d stale runs as interrupted", marked)
	}
	return marked, nil
}
