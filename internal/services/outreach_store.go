package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	outboxevents "github.com/bionicotaku/lingo-services-outreach/internal/models/outbox_events"
	"github.com/bionicotaku/lingo-services-outreach/internal/models/po"
	"github.com/bionicotaku/lingo-services-outreach/internal/models/vo"
	"github.com/bionicotaku/lingo-services-outreach/internal/repositories"

	"github.com/bionicotaku/lingo-utils/txmanager"
	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// OutreachStore 定义外联实体的持久化行为（幂等建档、CAS 更新、按 token 查询）。
type OutreachStore interface {
	Create(ctx context.Context, sess txmanager.Session, input repositories.CreateOutreachInput) (*po.VideoOutreach, bool, error)
	GetByID(ctx context.Context, sess txmanager.Session, videoID uuid.UUID) (*po.VideoOutreach, error)
	GetByToken(ctx context.Context, sess txmanager.Session, token string) (*po.VideoOutreach, error)
	Update(ctx context.Context, sess txmanager.Session, outreach *po.VideoOutreach, expectedVersion int64) (*po.VideoOutreach, error)
}

// EventLog 定义互动事件日志的追加与读取。
type EventLog interface {
	Append(ctx context.Context, sess txmanager.Session, input repositories.AppendEventInput) (*po.VideoEvent, error)
	ListByVideo(ctx context.Context, sess txmanager.Session, videoID uuid.UUID) ([]*po.VideoEvent, error)
}

// OutboxWriter 定义 Outbox 写入行为。
type OutboxWriter interface {
	Enqueue(ctx context.Context, sess txmanager.Session, msg repositories.OutboxMessage) error
}

// AnalyticsCache 为聚合指标的读缓存；事件日志始终是事实来源。
type AnalyticsCache interface {
	Get(ctx context.Context, videoID uuid.UUID) (*vo.AnalyticsAggregate, bool, error)
	Set(ctx context.Context, videoID uuid.UUID, aggregate vo.AnalyticsAggregate) error
	Invalidate(ctx context.Context, videoID uuid.UUID) error
}

const defaultMaxCASRetries = 3

// mutateFunc 在副本上修改实体；txCtx 与 sess 属于同一事务，读取须经由它们。返回 false 表示无需写入。
type mutateFunc func(txCtx context.Context, sess txmanager.Session, next *po.VideoOutreach) (bool, error)

// commitHook 在同一事务内、CAS 写入成功后执行（如写 Outbox）。
type commitHook func(ctx context.Context, sess txmanager.Session, before, after *po.VideoOutreach) error

// outreachWriter 封装 "读取 → 修改 → CAS 写回" 的重试循环。
type outreachWriter struct {
	store      OutreachStore
	outbox     OutboxWriter
	txManager  txmanager.Manager
	maxRetries int
	log        *log.Helper
}

func newOutreachWriter(store OutreachStore, outbox OutboxWriter, tx txmanager.Manager, maxRetries int, logger log.Logger) *outreachWriter {
	if maxRetries <= 0 {
		maxRetries = defaultMaxCASRetries
	}
	return &outreachWriter{
		store:      store,
		outbox:     outbox,
		txManager:  tx,
		maxRetries: maxRetries,
		log:        log.NewHelper(logger),
	}
}

// mutate 以乐观并发修改实体；版本冲突时重新读取并重放修改，超过重试次数返回 ConflictError。
func (w *outreachWriter) mutate(ctx context.Context, videoID uuid.UUID, fn mutateFunc, hook commitHook) (*po.VideoOutreach, error) {
	var lastErr error
	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		var result *po.VideoOutreach
		err := w.txManager.WithinTx(ctx, txmanager.TxOptions{}, func(txCtx context.Context, sess txmanager.Session) error {
			current, err := w.store.GetByID(txCtx, sess, videoID)
			if err != nil {
				return err
			}
			next := current.Clone()
			changed, err := fn(txCtx, sess, next)
			if err != nil {
				return err
			}
			if !changed {
				result = current
				return nil
			}
			updated, err := w.store.Update(txCtx, sess, next, current.Version)
			if err != nil {
				return err
			}
			if hook != nil {
				if err := hook(txCtx, sess, current, updated); err != nil {
					return err
				}
			}
			result = updated
			return nil
		})
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, repositories.ErrVersionConflict) {
			return nil, mapStoreError(err)
		}
		lastErr = err
		w.log.WithContext(ctx).Debugf("outreach cas conflict, retrying: video_id=%s attempt=%d", videoID, attempt+1)
	}
	return nil, NewVersionConflictError(lastErr)
}

// enqueue 将领域事件编码后写入 Outbox。
func (w *outreachWriter) enqueue(ctx context.Context, sess txmanager.Session, event *outboxevents.DomainEvent) error {
	return enqueueOutbox(ctx, w.outbox, sess, event)
}

func enqueueOutbox(ctx context.Context, outbox OutboxWriter, sess txmanager.Session, event *outboxevents.DomainEvent) error {
	if outbox == nil || event == nil {
		return nil
	}
	payload, err := outboxevents.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal outreach event: %w", err)
	}
	attributes := outboxevents.BuildAttributes(event, outboxevents.SchemaVersionV1, outboxevents.TraceIDFromContext(ctx))
	msg := repositories.OutboxMessage{
		EventID:       event.EventID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.Kind.String(),
		Payload:       payload,
		Headers:       attributes,
		AvailableAt:   time.Now().UTC(),
	}
	if err := outbox.Enqueue(ctx, sess, msg); err != nil {
		return fmt.Errorf("enqueue outbox: %w", err)
	}
	return nil
}

// mapStoreError 将仓储哨兵错误映射为对外错误；已是 Kratos 错误的原样返回。
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, repositories.ErrOutreachNotFound):
		return ErrOutreachNotFound
	case errors.Is(err, repositories.ErrVersionConflict):
		return NewVersionConflictError(err)
	case errors.Is(err, repositories.ErrIdempotencyMismatch):
		return NewConflictError("%s", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return kerrors.GatewayTimeout(ReasonTimeout, "operation timeout").WithCause(err)
	}
	var kratosErr *kerrors.Error
	if errors.As(err, &kratosErr) {
		return err
	}
	if _, ok := AsPipelineError(err); ok {
		return err
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.toKratos()
	}
	return kerrors.InternalServer(ReasonInternal, "outreach operation failed").WithCause(err)
}
