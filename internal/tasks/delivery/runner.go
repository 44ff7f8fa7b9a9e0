package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bionicotaku/lingo-services-outreach/internal/models/vo"
	"github.com/bionicotaku/lingo-services-outreach/internal/services"

	"github.com/bionicotaku/lingo-utils/gcpubsub"
	"github.com/go-kratos/kratos/v2/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Ingestor 抽象事件写入用例。
type Ingestor interface {
	Ingest(ctx context.Context, input services.IngestEventInput) (*vo.IngestResult, error)
}

// 处理结果标签。
const (
	outcomeAccepted  = "accepted"
	outcomeDuplicate = "duplicate"
	outcomeDropped   = "dropped"
	outcomeRetry     = "retry"
)

// Runner 将订阅消息转交 Ingestor，按错误类别决定 Ack 或 Nack。
type Runner struct {
	receiver gcpubsub.Subscriber
	ingestor Ingestor
	log      *log.Helper
	handled  metric.Int64Counter

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner 构造回执消费任务；meter 可为 nil。
func NewRunner(receiver gcpubsub.Subscriber, ingestor Ingestor, logger log.Logger, meter metric.Meter) (*Runner, error) {
	if receiver == nil {
		return nil, errors.New("delivery: subscriber is required")
	}
	if ingestor == nil {
		return nil, errors.New("delivery: ingestor is required")
	}
	r := &Runner{
		receiver: receiver,
		ingestor: ingestor,
		log:      log.NewHelper(logger),
	}
	if meter != nil {
		counter, err := meter.Int64Counter("delivery_receipts_total",
			metric.WithDescription("Delivery receipts consumed from the subscription"))
		if err != nil {
			r.log.Warnf("init delivery counter: %v", err)
		}
		r.handled = counter
	}
	return r, nil
}

// Run 阻塞消费回执，直到 ctx 取消。
func (r *Runner) Run(ctx context.Context) error {
	r.log.WithContext(ctx).Info("delivery receipt consumer started")
	err := r.receiver.Receive(ctx, r.Handle)
	r.log.Info("delivery receipt consumer stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Start 满足 transport.Server：阻塞消费，直至 Stop 被调用。
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

// Stop 取消拉取并等待在途消息处理完成。
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

// Handle 处理单条回执；返回 nil 表示 Ack，返回错误表示请求重投。
// 无法解析、记录不存在、状态不允许、事件非法的消息直接确认丢弃；冲突与上游故障请求重投。
func (r *Runner) Handle(ctx context.Context, msg *gcpubsub.Message) error {
	input, err := Decode(msg.Data, msg.Attributes)
	if err != nil {
		r.log.WithContext(ctx).Warnf("drop delivery receipt: err=%v", err)
		r.count(ctx, "", outcomeDropped)
		return nil
	}

	result, err := r.ingestor.Ingest(ctx, input)
	switch {
	case err == nil:
		outcome := outcomeAccepted
		if result != nil && result.Duplicate {
			outcome = outcomeDuplicate
		}
		r.count(ctx, input.EventType, outcome)
		return nil
	case services.IsValidation(err), services.IsNotFound(err), services.IsIllegalTransition(err):
		r.log.WithContext(ctx).Warnf("drop delivery receipt: event_id=%s type=%s err=%v", input.EventID, input.EventType, err)
		r.count(ctx, input.EventType, outcomeDropped)
		return nil
	default:
		r.log.WithContext(ctx).Errorf("delivery receipt failed, requesting redelivery: event_id=%s type=%s err=%v", input.EventID, input.EventType, err)
		r.count(ctx, input.EventType, outcomeRetry)
		return fmt.Errorf("ingest delivery receipt %s: %w", input.EventID, err)
	}
}

func (r *Runner) count(ctx context.Context, eventType, outcome string) {
	if r.handled == nil {
		return
	}
	r.handled.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("outcome", outcome),
	))
}
