package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	outboxevents "github.com/bionicotaku/lingo-services-outreach/internal/models/outbox_events"
	"github.com/bionicotaku/lingo-services-outreach/internal/models/po"
	"github.com/bionicotaku/lingo-services-outreach/internal/models/vo"
	"github.com/bionicotaku/lingo-services-outreach/internal/repositories"

	"github.com/bionicotaku/lingo-utils/txmanager"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

const maxIdempotencyKeyLen = 128

// CreateOutreachInput 表示建档输入。
type CreateOutreachInput struct {
	OwnerID         uuid.UUID
	IdempotencyKey  string
	Recipient       po.Recipient
	Title           string
	Personalization po.PersonalizationConfig
	CTA             po.CTAConfig
}

// OutreachCommandService 封装外联记录的写用例：建档、显式设置状态、按日志重算。
type OutreachCommandService struct {
	store     OutreachStore
	events    EventLog
	outbox    OutboxWriter
	cache     AnalyticsCache
	txManager txmanager.Manager
	writer    *outreachWriter
	now       func() time.Time
	log       *log.Helper
}

// NewOutreachCommandService 构造写模型服务；cache 可为 nil。
func NewOutreachCommandService(store OutreachStore, events EventLog, outbox OutboxWriter, cache AnalyticsCache, tx txmanager.Manager, maxRetries int, logger log.Logger) *OutreachCommandService {
	return &OutreachCommandService{
		store:     store,
		events:    events,
		outbox:    outbox,
		cache:     cache,
		txManager: tx,
		writer:    newOutreachWriter(store, outbox, tx, maxRetries, logger),
		now:       time.Now,
		log:       log.NewHelper(logger),
	}
}

// WithClock 覆盖时钟，仅用于测试。
func (s *OutreachCommandService) WithClock(clock func() time.Time) *OutreachCommandService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// CreateOutreach 以 (owner, idempotency key) 幂等建档；重复请求复用既有记录。
// 同一幂等键对应不同收件人时返回 ConflictError。
func (s *OutreachCommandService) CreateOutreach(ctx context.Context, input CreateOutreachInput) (*vo.OutreachCreated, error) {
	if err := validateCreateInput(&input); err != nil {
		return nil, err
	}

	var (
		outreach *po.VideoOutreach
		inserted bool
	)
	err := s.txManager.WithinTx(ctx, txmanager.TxOptions{}, func(txCtx context.Context, sess txmanager.Session) error {
		created, isNew, err := s.store.Create(txCtx, sess, repositories.CreateOutreachInput{
			OwnerID:         input.OwnerID,
			IdempotencyKey:  input.IdempotencyKey,
			Recipient:       input.Recipient,
			Title:           input.Title,
			Personalization: input.Personalization,
			CTA:             input.CTA,
		})
		if err != nil {
			return err
		}
		if !isNew {
			if created.Recipient.PersonID != input.Recipient.PersonID {
				return fmt.Errorf("%w: key=%s", repositories.ErrIdempotencyMismatch, input.IdempotencyKey)
			}
			outreach = created
			return nil
		}

		occurredAt := created.CreatedAt.UTC()
		if occurredAt.IsZero() {
			occurredAt = s.now().UTC()
		}
		event, err := outboxevents.NewOutreachCreatedEvent(created, uuid.New(), occurredAt)
		if err != nil {
			return fmt.Errorf("build outreach created event: %w", err)
		}
		if err := enqueueOutbox(txCtx, s.outbox, sess, event); err != nil {
			return err
		}
		outreach = created
		inserted = true
		return nil
	})
	if err != nil {
		mapped := mapStoreError(err)
		if IsConflict(mapped) {
			s.log.WithContext(ctx).Warnf("create outreach conflict: owner_id=%s key=%s", input.OwnerID, input.IdempotencyKey)
		} else {
			s.log.WithContext(ctx).Errorf("create outreach failed: owner_id=%s key=%s err=%v", input.OwnerID, input.IdempotencyKey, err)
		}
		return nil, mapped
	}

	s.log.WithContext(ctx).Infof("CreateOutreach: video_id=%s status=%s reused=%t", outreach.VideoID, outreach.Status, !inserted)
	return &vo.OutreachCreated{
		VideoID: outreach.VideoID,
		Status:  string(outreach.Status),
		Reused:  !inserted,
	}, nil
}

// PatchStatus 处理发送者显式设置状态（目前仅 sent），遵循 max-with-current 规则。
func (s *OutreachCommandService) PatchStatus(ctx context.Context, videoID uuid.UUID, rawStatus string) (*vo.StatusPatched, error) {
	target := po.OutreachStatus(strings.TrimSpace(strings.ToLower(rawStatus)))
	if !target.Valid() {
		return nil, NewValidationError("invalid status: %q", rawStatus)
	}

	var previous po.OutreachStatus
	now := s.now().UTC()
	updated, err := s.writer.mutate(ctx, videoID, func(_ context.Context, _ txmanager.Session, next *po.VideoOutreach) (bool, error) {
		previous = next.Status
		status, changed, err := ApplyManualStatus(next.Status, target)
		if err != nil {
			return false, err
		}
		if !changed {
			return false, nil
		}
		next.Status = status
		next.SentAt = &now
		return true, nil
	}, func(ctx context.Context, sess txmanager.Session, before, after *po.VideoOutreach) error {
		event, err := outboxevents.NewStatusChangedEvent(after, before.Status, outboxevents.CauseManual, nil, uuid.New(), now)
		if err != nil {
			return fmt.Errorf("build status changed event: %w", err)
		}
		return enqueueOutbox(ctx, s.outbox, sess, event)
	})
	if err != nil {
		if IsIllegalTransition(err) || IsValidation(err) {
			s.log.WithContext(ctx).Warnf("patch status rejected: video_id=%s target=%s err=%v", videoID, target, err)
		} else if !IsNotFound(err) {
			s.log.WithContext(ctx).Errorf("patch status failed: video_id=%s err=%v", videoID, err)
		}
		return nil, err
	}

	result := &vo.StatusPatched{
		VideoID:        updated.VideoID,
		Status:         string(updated.Status),
		PreviousStatus: string(previous),
		Changed:        updated.Status != previous,
	}
	s.log.WithContext(ctx).Infof("PatchStatus: video_id=%s %s -> %s changed=%t", videoID, previous, updated.Status, result.Changed)
	return result, nil
}

// Recompute 从事件日志重放状态与聚合：状态只可能被修复为更高等级，聚合写回缓存。
func (s *OutreachCommandService) Recompute(ctx context.Context, videoID uuid.UUID) (*vo.OutreachDetail, error) {
	var aggregate vo.AnalyticsAggregate
	updated, err := s.writer.mutate(ctx, videoID, func(txCtx context.Context, sess txmanager.Session, next *po.VideoOutreach) (bool, error) {
		history, err := s.events.ListByVideo(txCtx, sess, videoID)
		if err != nil {
			return false, err
		}
		aggregate = Aggregate(history)
		replayed := ReplayStatus(ReplayBase(next), history)
		healed := po.MaxStatus(next.Status, replayed)
		if healed == next.Status {
			return false, nil
		}
		next.Status = healed
		return true, nil
	}, func(ctx context.Context, sess txmanager.Session, before, after *po.VideoOutreach) error {
		event, err := outboxevents.NewStatusChangedEvent(after, before.Status, outboxevents.CauseRecompute, nil, uuid.New(), s.now())
		if err != nil {
			return fmt.Errorf("build status changed event: %w", err)
		}
		return enqueueOutbox(ctx, s.outbox, sess, event)
	})
	if err != nil {
		if !IsNotFound(err) {
			s.log.WithContext(ctx).Errorf("recompute outreach failed: video_id=%s err=%v", videoID, err)
		}
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, videoID, aggregate); err != nil {
			s.log.WithContext(ctx).Warnf("cache analytics failed: video_id=%s err=%v", videoID, err)
		}
	}
	s.log.WithContext(ctx).Infof("Recompute: video_id=%s status=%s views=%d avg_watch=%d", videoID, updated.Status, aggregate.Views, aggregate.AvgWatchPercent)
	return vo.NewOutreachDetail(updated, aggregate, Recommend(updated.Status, aggregate)), nil
}

func validateCreateInput(input *CreateOutreachInput) error {
	input.IdempotencyKey = strings.TrimSpace(input.IdempotencyKey)
	input.Title = strings.TrimSpace(input.Title)
	input.Recipient.Name = strings.TrimSpace(input.Recipient.Name)
	input.Recipient.Email = strings.TrimSpace(input.Recipient.Email)
	input.CTA.Label = strings.TrimSpace(input.CTA.Label)

	switch {
	case input.OwnerID == uuid.Nil:
		return NewValidationError("owner_id is required")
	case input.IdempotencyKey == "":
		return NewValidationError("idempotency key is required")
	case len(input.IdempotencyKey) > maxIdempotencyKeyLen:
		return NewValidationError("idempotency key exceeds %d characters", maxIdempotencyKeyLen)
	case input.Recipient.PersonID == uuid.Nil:
		return NewValidationError("recipient person_id is required")
	case input.Recipient.Name == "":
		return NewValidationError("recipient name is required")
	case input.Title == "":
		return NewValidationError("title is required")
	case !input.CTA.Type.Valid():
		return NewValidationError("invalid cta type: %q", input.CTA.Type)
	case input.CTA.Label == "":
		return NewValidationError("cta label is required")
	}
	if input.Recipient.Email != "" {
		if _, err := mail.ParseAddress(input.Recipient.Email); err != nil {
			return NewValidationError("invalid recipient email: %v", err)
		}
	}
	if target := strings.TrimSpace(input.Personalization.TargetURL); target != "" {
		if err := validateAbsoluteURL(target); err != nil {
			return NewValidationError("invalid target_url: %v", err)
		}
	}
	if link := input.CTA.SchedulingLink; link != nil && strings.TrimSpace(*link) != "" {
		if err := validateAbsoluteURL(strings.TrimSpace(*link)); err != nil {
			return NewValidationError("invalid scheduling_link: %v", err)
		}
	}
	return nil
}

func validateAbsoluteURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("scheme must be http or https")
	}
	if parsed.Host == "" {
		return errors.New("host is required")
	}
	return nil
}
