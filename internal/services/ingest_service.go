package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bionicotaku/lingo-services-outreach/internal/models/engagement"
	outboxevents "github.com/bionicotaku/lingo-services-outreach/internal/models/outbox_events"
	"github.com/bionicotaku/lingo-services-outreach/internal/models/po"
	"github.com/bionicotaku/lingo-services-outreach/internal/models/vo"
	"github.com/bionicotaku/lingo-services-outreach/internal/repositories"

	"github.com/bionicotaku/lingo-utils/txmanager"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// IngestEventInput 描述一次互动事件写入；VideoID 与 PublicToken 二选一。
type IngestEventInput struct {
	VideoID     uuid.UUID
	PublicToken string
	EventType   string
	Metadata    json.RawMessage
	EventID     uuid.UUID
}

// IngestService 接收互动事件：追加日志 → 单调推进状态 → 重算聚合，三者同一事务完成。
type IngestService struct {
	store      OutreachStore
	events     EventLog
	outbox     OutboxWriter
	cache      AnalyticsCache
	txManager  txmanager.Manager
	maxRetries int
	now        func() time.Time
	log        *log.Helper

	ingested metric.Int64Counter
}

// NewIngestService 构造事件写入服务；cache 可为 nil。
func NewIngestService(store OutreachStore, events EventLog, outbox OutboxWriter, cache AnalyticsCache, tx txmanager.Manager, maxRetries int, logger log.Logger) *IngestService {
	if maxRetries <= 0 {
		maxRetries = defaultMaxCASRetries
	}
	meter := otel.GetMeterProvider().Meter("lingo-services-outreach.ingest")
	counter, err := meter.Int64Counter("outreach_events_ingested_total",
		metric.WithDescription("Engagement events accepted or rejected by the ingest service"))
	if err != nil {
		log.NewHelper(logger).Warnf("init ingest counter failed: %v", err)
	}
	return &IngestService{
		store:      store,
		events:     events,
		outbox:     outbox,
		cache:      cache,
		txManager:  tx,
		maxRetries: maxRetries,
		now:        time.Now,
		ingested:   counter,
		log:        log.NewHelper(logger),
	}
}

// WithClock 覆盖时钟，仅用于测试。
func (s *IngestService) WithClock(clock func() time.Time) *IngestService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Ingest 写入一条事件并返回最新状态与聚合。
//
// 失败语义：
//   - 事件类型或元数据非法 → ValidationError，不产生任何写入
//   - id/token 未命中 → NotFoundError
//   - 记录尚未 ready → IllegalTransitionError
//   - 并发写入版本冲突 → 整个事务回滚后重试，超过次数返回 ConflictError
//   - event_id 重复 → 视为重放，不写入，返回当前状态
func (s *IngestService) Ingest(ctx context.Context, input IngestEventInput) (*vo.IngestResult, error) {
	eventType, meta, err := validateEvent(input)
	if err != nil {
		s.record(ctx, input.EventType, "invalid")
		s.log.WithContext(ctx).Warnf("reject engagement event: type=%q err=%v", input.EventType, err)
		return nil, err
	}
	if input.VideoID == uuid.Nil && input.PublicToken == "" {
		return nil, NewValidationError("video id or public token is required")
	}
	metadata, err := engagement.Encode(meta)
	if err != nil {
		return nil, NewValidationError("%v", err)
	}

	eventID := input.EventID
	if eventID == uuid.Nil {
		eventID = uuid.New()
	}
	// 事件时间取服务端接收时间，保证日志顺序即到达顺序。
	occurredAt := s.now().UTC()

	var (
		result    *vo.IngestResult
		videoID   uuid.UUID
		aggregate vo.AnalyticsAggregate
		lastErr   error
	)
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err = s.txManager.WithinTx(ctx, txmanager.TxOptions{}, func(txCtx context.Context, sess txmanager.Session) error {
			current, err := s.load(txCtx, sess, input)
			if err != nil {
				return err
			}
			if !CanIngest(current.Status) {
				return NewIllegalTransitionError(current.Status, inducedOr(eventType, current.Status))
			}

			if _, err := s.events.Append(txCtx, sess, repositories.AppendEventInput{
				EventID:    eventID,
				VideoID:    current.VideoID,
				Type:       eventType,
				OccurredAt: occurredAt,
				Metadata:   metadata,
			}); err != nil {
				return err
			}

			next := current.Clone()
			next.Status = ApplyEvent(current.Status, eventType)
			// 即使状态不变也推进版本，使同一视频的并发事件串行化。
			updated, err := s.store.Update(txCtx, sess, next, current.Version)
			if err != nil {
				return err
			}

			history, err := s.events.ListByVideo(txCtx, sess, current.VideoID)
			if err != nil {
				return err
			}
			aggregate = Aggregate(history)

			changed := updated.Status != current.Status
			if changed {
				event, err := outboxevents.NewStatusChangedEvent(updated, current.Status, outboxevents.CauseEvent, &eventType, uuid.New(), occurredAt)
				if err != nil {
					return fmt.Errorf("build status changed event: %w", err)
				}
				if err := enqueueOutbox(txCtx, s.outbox, sess, event); err != nil {
					return err
				}
			}

			videoID = updated.VideoID
			result = &vo.IngestResult{
				Status:         string(updated.Status),
				PreviousStatus: string(current.Status),
				Changed:        changed,
				Analytics:      aggregate,
			}
			return nil
		})
		if err == nil || !errors.Is(err, repositories.ErrVersionConflict) {
			break
		}
		lastErr = err
		s.log.WithContext(ctx).Debugf("ingest cas conflict, retrying: event_id=%s attempt=%d", eventID, attempt+1)
	}
	if errors.Is(err, repositories.ErrDuplicateEvent) {
		return s.replayDuplicate(ctx, input, eventID, eventType)
	}
	if err != nil {
		if errors.Is(err, repositories.ErrVersionConflict) {
			err = NewVersionConflictError(lastErr)
		} else {
			err = mapStoreError(err)
		}
		s.record(ctx, string(eventType), "rejected")
		s.log.WithContext(ctx).Warnf("ingest engagement event failed: type=%s video_id=%s err=%v", eventType, input.VideoID, err)
		return nil, err
	}

	s.refreshCache(ctx, videoID, aggregate)
	s.record(ctx, string(eventType), "accepted")
	s.log.WithContext(ctx).Infof("engagement event ingested: video_id=%s type=%s status=%s changed=%t", videoID, eventType, result.Status, result.Changed)
	return result, nil
}

// replayDuplicate 处理重复投递的 event_id：不产生写入，返回当前状态与聚合。
func (s *IngestService) replayDuplicate(ctx context.Context, input IngestEventInput, eventID uuid.UUID, eventType po.EventType) (*vo.IngestResult, error) {
	current, err := s.load(ctx, nil, input)
	if err != nil {
		return nil, mapStoreError(err)
	}
	history, err := s.events.ListByVideo(ctx, nil, current.VideoID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	s.record(ctx, string(eventType), "duplicate")
	s.log.WithContext(ctx).Infof("duplicate engagement event ignored: video_id=%s event_id=%s", current.VideoID, eventID)
	return &vo.IngestResult{
		Status:         string(current.Status),
		PreviousStatus: string(current.Status),
		Duplicate:      true,
		Analytics:      Aggregate(history),
	}, nil
}

func (s *IngestService) load(ctx context.Context, sess txmanager.Session, input IngestEventInput) (*po.VideoOutreach, error) {
	if input.VideoID != uuid.Nil {
		return s.store.GetByID(ctx, sess, input.VideoID)
	}
	return s.store.GetByToken(ctx, sess, input.PublicToken)
}

// refreshCache 写入最新聚合；失败时尽力删除旧值，避免读到过期指标。
func (s *IngestService) refreshCache(ctx context.Context, videoID uuid.UUID, aggregate vo.AnalyticsAggregate) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, videoID, aggregate); err != nil {
		s.log.WithContext(ctx).Warnf("cache analytics failed: video_id=%s err=%v", videoID, err)
		if invErr := s.cache.Invalidate(ctx, videoID); invErr != nil {
			s.log.WithContext(ctx).Warnf("invalidate analytics cache failed: video_id=%s err=%v", videoID, invErr)
		}
	}
}

func (s *IngestService) record(ctx context.Context, eventType, outcome string) {
	if s.ingested == nil {
		return
	}
	s.ingested.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("outcome", outcome),
	))
}

func validateEvent(input IngestEventInput) (po.EventType, engagement.Metadata, error) {
	eventType, err := engagement.ParseEventType(input.EventType)
	if err != nil {
		return "", nil, NewValidationError("%v", err)
	}
	meta, err := engagement.Decode(eventType, input.Metadata)
	if err != nil {
		return "", nil, NewValidationError("%v", err)
	}
	return eventType, meta, nil
}

func inducedOr(eventType po.EventType, fallback po.OutreachStatus) po.OutreachStatus {
	if status, ok := InducedStatus(eventType); ok {
		return status
	}
	return fallback
}
