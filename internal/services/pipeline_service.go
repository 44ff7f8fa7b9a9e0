package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	outboxevents "github.com/bionicotaku/lingo-services-outreach/internal/models/outbox_events"
	"github.com/bionicotaku/lingo-services-outreach/internal/models/po"
	"github.com/bionicotaku/lingo-services-outreach/internal/models/vo"

	"github.com/bionicotaku/lingo-utils/txmanager"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// BinaryStorage 为原始视频与预览的持久化存储，按路径寻址，写后不变。
type BinaryStorage interface {
	Put(ctx context.Context, objectPath, contentType string, data []byte) (*StoredObject, error)
}

// StoredObject 描述已写入存储的对象。
type StoredObject struct {
	Path      string
	SizeBytes int64
}

// Transcoder 为转码协作方，从已存储的视频生成短循环预览。
type Transcoder interface {
	GeneratePreview(ctx context.Context, req TranscodeRequest) (*TranscodeResult, error)
}

// TranscodeRequest 描述一次预览生成请求。
type TranscodeRequest struct {
	VideoID     uuid.UUID
	SourcePath  string
	PreviewPath string
}

// TranscodeResult 为转码结果。
type TranscodeResult struct {
	PreviewPath    string
	DurationMillis int64
	Resolution     string
}

// PreviewFailurePolicy 决定预览生成失败时流水线的行为。
type PreviewFailurePolicy string

// 预览失败策略。
const (
	// PreviewSoftSkip 跳过预览（使用封面帧）并继续。
	PreviewSoftSkip PreviewFailurePolicy = "soft_skip"
	// PreviewHardFail 视为阶段失败，阻断完成。
	PreviewHardFail PreviewFailurePolicy = "hard_fail"
)

// Valid 判断策略是否合法。
func (p PreviewFailurePolicy) Valid() bool {
	return p == PreviewSoftSkip || p == PreviewHardFail
}

// 预览跳过原因。
const (
	PreviewSkipDisabled    = "disabled"
	PreviewSkipUnsupported = "unsupported"
	PreviewSkipUnavailable = "transcoder_unavailable"
)

const failureWriteTimeout = 10 * time.Second

// PipelineConfig 为流水线的可配置项。
type PipelineConfig struct {
	PreviewEnabled       bool
	PreviewFailurePolicy PreviewFailurePolicy
	LandingBaseURL       string
	RawPrefix            string
	PreviewPrefix        string
	MaxCASRetries        int
}

// BinaryInput 为上传的视频文件内容。
type BinaryInput struct {
	ContentType string
	Data        []byte
}

// PipelineOption 自定义 PipelineService。
type PipelineOption func(*PipelineService)

// WithPipelineClock 注入时钟，便于测试。
func WithPipelineClock(clock func() time.Time) PipelineOption {
	return func(s *PipelineService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithTokenGenerator 注入公开 token 生成器。
func WithTokenGenerator(gen TokenGenerator) PipelineOption {
	return func(s *PipelineService) {
		if gen != nil {
			s.tokens = gen
		}
	}
}

// PipelineService 编排 uploading → generating_preview → creating_landing → done 四个阶段。
//
// 每个阶段完成后立即以 CAS 写回实体，失败时记录 {phase, message} 并保留已完成的阶段，
// 重试从失败的阶段继续。
type PipelineService struct {
	store      OutreachStore
	storage    BinaryStorage
	transcoder Transcoder
	writer     *outreachWriter
	cfg        PipelineConfig
	tokens     TokenGenerator
	now        func() time.Time
	log        *log.Helper
}

// NewPipelineService 构造流水线服务。
func NewPipelineService(store OutreachStore, storage BinaryStorage, transcoder Transcoder, outbox OutboxWriter, tx txmanager.Manager, cfg PipelineConfig, logger log.Logger, opts ...PipelineOption) (*PipelineService, error) {
	switch {
	case store == nil:
		return nil, errors.New("pipeline service: store is required")
	case storage == nil:
		return nil, errors.New("pipeline service: storage is required")
	case tx == nil:
		return nil, errors.New("pipeline service: tx manager is required")
	case cfg.PreviewEnabled && transcoder == nil:
		return nil, errors.New("pipeline service: transcoder is required when preview is enabled")
	}
	if cfg.PreviewFailurePolicy == "" {
		cfg.PreviewFailurePolicy = PreviewSoftSkip
	}
	if !cfg.PreviewFailurePolicy.Valid() {
		return nil, fmt.Errorf("pipeline service: invalid preview failure policy %q", cfg.PreviewFailurePolicy)
	}
	if cfg.RawPrefix == "" {
		cfg.RawPrefix = "raw_videos"
	}
	if cfg.PreviewPrefix == "" {
		cfg.PreviewPrefix = "previews"
	}
	cfg.LandingBaseURL = strings.TrimRight(cfg.LandingBaseURL, "/")

	svc := &PipelineService{
		store:      store,
		storage:    storage,
		transcoder: transcoder,
		writer:     newOutreachWriter(store, outbox, tx, cfg.MaxCASRetries, logger),
		cfg:        cfg,
		tokens:     NewPublicToken,
		now:        time.Now,
		log:        log.NewHelper(logger),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Run 从上次完成阶段的下一阶段开始执行，直至 done 或某阶段失败。
// binary 仅在 uploading 尚未完成时需要。
func (s *PipelineService) Run(ctx context.Context, videoID uuid.UUID, binary *BinaryInput) (*vo.PipelineProgress, error) {
	current, err := s.begin(ctx, videoID, binary)
	if err != nil {
		return nil, err
	}
	for next := current.PhaseCompleted.Next(); next != po.PhaseNone; next = current.PhaseCompleted.Next() {
		current, err = s.execute(ctx, current, next, binary)
		if err != nil {
			return vo.NewPipelineProgress(current), err
		}
	}
	s.log.WithContext(ctx).Infof("pipeline completed: video_id=%s status=%s preview_generated=%t", current.VideoID, current.Status, current.PreviewGenerated)
	return vo.NewPipelineProgress(current), nil
}

// UploadBinary 仅执行 uploading 阶段；已完成时为 no-op。
func (s *PipelineService) UploadBinary(ctx context.Context, videoID uuid.UUID, binary BinaryInput) (*vo.PipelineProgress, error) {
	return s.runSingle(ctx, videoID, po.PhaseUploading, &binary)
}

// GeneratePreview 仅执行 generating_preview 阶段；要求 uploading 已完成。
func (s *PipelineService) GeneratePreview(ctx context.Context, videoID uuid.UUID) (*vo.PipelineProgress, error) {
	return s.runSingle(ctx, videoID, po.PhaseGeneratingPreview, nil)
}

// Progress 返回当前阶段与进度，供轮询使用。
func (s *PipelineService) Progress(ctx context.Context, videoID uuid.UUID) (*vo.PipelineProgress, error) {
	current, err := s.store.GetByID(ctx, nil, videoID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return vo.NewPipelineProgress(current), nil
}

// MarkInterrupted 将未完成的运行标记为失败（停机或心跳超时），保证不会静默遗留中间状态。
func (s *PipelineService) MarkInterrupted(ctx context.Context, videoID uuid.UUID, reason string) error {
	current, err := s.store.GetByID(ctx, nil, videoID)
	if err != nil {
		return mapStoreError(err)
	}
	if current.PhaseCompleted == po.PhaseDone || current.Failure != nil {
		return nil
	}
	phase := current.PhaseCompleted.Next()
	_, err = s.recordFailure(ctx, current, &PipelineError{Phase: phase, Cause: fmt.Errorf("interrupted: %s", reason)})
	return err
}

func (s *PipelineService) runSingle(ctx context.Context, videoID uuid.UUID, phase po.PipelinePhase, binary *BinaryInput) (*vo.PipelineProgress, error) {
	current, err := s.store.GetByID(ctx, nil, videoID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if current.PhaseCompleted.Index() >= phase.Index() {
		return vo.NewPipelineProgress(current), nil
	}
	if next := current.PhaseCompleted.Next(); next != phase {
		return nil, NewValidationError("phase %s cannot run before %s completes", phase, next)
	}
	if current, err = s.begin(ctx, videoID, binary); err != nil {
		return nil, err
	}
	current, err = s.execute(ctx, current, phase, binary)
	return vo.NewPipelineProgress(current), err
}

// begin 校验输入并把实体推进到 processing，同时清除上次失败、刷新心跳。
func (s *PipelineService) begin(ctx context.Context, videoID uuid.UUID, binary *BinaryInput) (*po.VideoOutreach, error) {
	current, err := s.store.GetByID(ctx, nil, videoID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if current.PhaseCompleted == po.PhaseDone {
		return current, nil
	}
	if current.PhaseCompleted.Index() < po.PhaseUploading.Index() && (binary == nil || len(binary.Data) == 0) {
		return nil, NewValidationError("video binary is required before upload completes")
	}

	now := s.now().UTC()
	return s.writer.mutate(ctx, videoID, func(_ context.Context, _ txmanager.Session, next *po.VideoOutreach) (bool, error) {
		if next.PhaseCompleted == po.PhaseDone {
			return false, nil
		}
		next.Status = po.MaxStatus(next.Status, po.OutreachStatusProcessing)
		next.Failure = nil
		next.HeartbeatAt = &now
		return true, nil
	}, nil)
}

func (s *PipelineService) execute(ctx context.Context, current *po.VideoOutreach, phase po.PipelinePhase, binary *BinaryInput) (*po.VideoOutreach, error) {
	var (
		updated *po.VideoOutreach
		err     error
	)
	switch phase {
	case po.PhaseUploading:
		updated, err = s.upload(ctx, current, binary)
	case po.PhaseGeneratingPreview:
		updated, err = s.preview(ctx, current)
	case po.PhaseCreatingLanding:
		updated, err = s.landing(ctx, current)
	case po.PhaseDone:
		updated, err = s.finish(ctx, current)
	default:
		err = fmt.Errorf("unknown pipeline phase %q", phase)
	}
	if err != nil {
		return s.fail(ctx, current, phase, err)
	}
	s.log.WithContext(ctx).Debugf("pipeline phase completed: video_id=%s phase=%s progress=%d", updated.VideoID, phase, updated.Progress)
	return updated, nil
}

func (s *PipelineService) upload(ctx context.Context, current *po.VideoOutreach, binary *BinaryInput) (*po.VideoOutreach, error) {
	if binary == nil || len(binary.Data) == 0 {
		return nil, errors.New("video binary is required")
	}
	contentType := binary.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	objectPath := path.Join(s.cfg.RawPrefix, current.OwnerID.String(), current.VideoID.String())
	stored, err := s.storage.Put(ctx, objectPath, contentType, binary.Data)
	if err != nil {
		return nil, upstreamCause(ctx, "storage", err)
	}

	return s.completePhase(ctx, current.VideoID, po.PhaseUploading, func(next *po.VideoOutreach) {
		rawPath := stored.Path
		size := stored.SizeBytes
		next.RawVideoPath = &rawPath
		next.FileSizeBytes = &size
	}, nil)
}

func (s *PipelineService) preview(ctx context.Context, current *po.VideoOutreach) (*po.VideoOutreach, error) {
	if !s.cfg.PreviewEnabled {
		return s.skipPreview(ctx, current.VideoID, PreviewSkipDisabled)
	}
	if current.RawVideoPath == nil {
		return nil, errors.New("raw video path missing")
	}

	result, err := s.transcoder.GeneratePreview(ctx, TranscodeRequest{
		VideoID:     current.VideoID,
		SourcePath:  *current.RawVideoPath,
		PreviewPath: path.Join(s.cfg.PreviewPrefix, current.OwnerID.String(), current.VideoID.String()+".mp4"),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if s.cfg.PreviewFailurePolicy == PreviewSoftSkip {
			reason := PreviewSkipUnavailable
			if errors.Is(err, ErrTranscodeUnsupported) {
				reason = PreviewSkipUnsupported
			}
			s.log.WithContext(ctx).Warnf("preview skipped: video_id=%s reason=%s err=%v", current.VideoID, reason, err)
			return s.skipPreview(ctx, current.VideoID, reason)
		}
		if errors.Is(err, ErrTranscodeUnsupported) {
			return nil, err
		}
		return nil, upstreamCause(ctx, "transcoder", err)
	}

	return s.completePhase(ctx, current.VideoID, po.PhaseGeneratingPreview, func(next *po.VideoOutreach) {
		previewPath := result.PreviewPath
		next.PreviewPath = &previewPath
		next.PreviewGenerated = true
		next.PreviewSkipReason = nil
		if result.DurationMillis > 0 {
			duration := result.DurationMillis
			next.DurationMillis = &duration
		}
		if result.Resolution != "" {
			resolution := result.Resolution
			next.Resolution = &resolution
		}
	}, nil)
}

func (s *PipelineService) skipPreview(ctx context.Context, videoID uuid.UUID, reason string) (*po.VideoOutreach, error) {
	return s.completePhase(ctx, videoID, po.PhaseGeneratingPreview, func(next *po.VideoOutreach) {
		next.PreviewGenerated = false
		next.PreviewSkipReason = &reason
	}, nil)
}

func (s *PipelineService) landing(ctx context.Context, current *po.VideoOutreach) (*po.VideoOutreach, error) {
	token := ""
	if current.PublicToken != nil {
		token = *current.PublicToken
	} else {
		generated, err := s.tokens()
		if err != nil {
			return nil, err
		}
		token = generated
	}

	return s.completePhase(ctx, current.VideoID, po.PhaseCreatingLanding, func(next *po.VideoOutreach) {
		if next.PublicToken == nil {
			value := token
			next.PublicToken = &value
		}
		landingURL := s.cfg.LandingBaseURL + "/v/" + *next.PublicToken
		next.LandingURL = &landingURL
	}, nil)
}

func (s *PipelineService) finish(ctx context.Context, current *po.VideoOutreach) (*po.VideoOutreach, error) {
	return s.completePhase(ctx, current.VideoID, po.PhaseDone, func(next *po.VideoOutreach) {
		next.Status = po.MaxStatus(next.Status, po.OutreachStatusReady)
		next.HeartbeatAt = nil
	}, func(ctx context.Context, sess txmanager.Session, _ *po.VideoOutreach, after *po.VideoOutreach) error {
		event, err := outboxevents.NewOutreachReadyEvent(after, uuid.New(), s.now())
		if err != nil {
			return fmt.Errorf("build outreach ready event: %w", err)
		}
		return s.writer.enqueue(ctx, sess, event)
	})
}

// completePhase 以 CAS 记录阶段完成；若其他运行已越过该阶段则不重复写入。
func (s *PipelineService) completePhase(ctx context.Context, videoID uuid.UUID, phase po.PipelinePhase, apply func(next *po.VideoOutreach), hook commitHook) (*po.VideoOutreach, error) {
	now := s.now().UTC()
	return s.writer.mutate(ctx, videoID, func(_ context.Context, _ txmanager.Session, next *po.VideoOutreach) (bool, error) {
		if next.PhaseCompleted.Index() >= phase.Index() {
			return false, nil
		}
		if next.PhaseCompleted.Next() != phase {
			return false, fmt.Errorf("phase %s out of order after %s", phase, next.PhaseCompleted)
		}
		apply(next)
		next.PhaseCompleted = phase
		next.Progress = phase.Progress()
		next.Failure = nil
		if phase != po.PhaseDone {
			next.HeartbeatAt = &now
		}
		return true, nil
	}, hook)
}

// fail 记录阶段失败并返回对外错误。
func (s *PipelineService) fail(ctx context.Context, current *po.VideoOutreach, phase po.PipelinePhase, cause error) (*po.VideoOutreach, error) {
	pipelineErr := &PipelineError{Phase: phase, Cause: cause}
	failed, err := s.recordFailure(ctx, current, pipelineErr)
	if err != nil {
		s.log.WithContext(ctx).Errorf("record pipeline failure failed: video_id=%s phase=%s err=%v", current.VideoID, phase, err)
		failed = current
	}
	s.log.WithContext(ctx).Warnf("pipeline phase failed: video_id=%s phase=%s upstream=%t err=%v", current.VideoID, phase, pipelineErr.Upstream(), cause)
	return failed, pipelineErr.toKratos()
}

// recordFailure 将 {phase, message} 写回实体并写入失败事件；使用独立于调用方取消的上下文。
func (s *PipelineService) recordFailure(ctx context.Context, current *po.VideoOutreach, pipelineErr *PipelineError) (*po.VideoOutreach, error) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()

	failedAt := s.now().UTC()
	return s.writer.mutate(writeCtx, current.VideoID, func(_ context.Context, _ txmanager.Session, next *po.VideoOutreach) (bool, error) {
		if next.PhaseCompleted.Index() >= pipelineErr.Phase.Index() {
			return false, nil
		}
		next.Failure = &po.PipelineFailure{
			Phase:    pipelineErr.Phase,
			Message:  pipelineErr.Cause.Error(),
			Upstream: pipelineErr.Upstream(),
			FailedAt: failedAt,
		}
		next.HeartbeatAt = nil
		return true, nil
	}, func(ctx context.Context, sess txmanager.Session, _ *po.VideoOutreach, after *po.VideoOutreach) error {
		event, err := outboxevents.NewPipelineFailedEvent(after, uuid.New(), failedAt)
		if err != nil {
			return fmt.Errorf("build pipeline failed event: %w", err)
		}
		return s.writer.enqueue(ctx, sess, event)
	})
}

func upstreamCause(ctx context.Context, service string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if IsUpstream(err) {
		return err
	}
	return NewUpstreamError(service, err)
}
