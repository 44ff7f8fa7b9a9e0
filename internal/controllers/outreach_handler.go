package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/bionicotaku/lingo-services-outreach/internal/controllers/dto"
	"github.com/bionicotaku/lingo-services-outreach/internal/models/vo"
	"github.com/bionicotaku/lingo-services-outreach/internal/services"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

const progressReadTimeout = 2 * time.Second

// OutreachCommander 为外联写用例。
type OutreachCommander interface {
	CreateOutreach(ctx context.Context, input services.CreateOutreachInput) (*vo.OutreachCreated, error)
	PatchStatus(ctx context.Context, videoID uuid.UUID, rawStatus string) (*vo.StatusPatched, error)
	Recompute(ctx context.Context, videoID uuid.UUID) (*vo.OutreachDetail, error)
}

// OutreachQuerier 为外联读用例。
type OutreachQuerier interface {
	GetOutreach(ctx context.Context, videoID uuid.UUID) (*vo.OutreachDetail, error)
	Analytics(ctx context.Context, videoID uuid.UUID) (vo.AnalyticsAggregate, error)
	GetPublicView(ctx context.Context, token string) (*vo.PublicOutreachView, error)
}

// PipelineOperator 为单阶段执行与进度查询。
type PipelineOperator interface {
	UploadBinary(ctx context.Context, videoID uuid.UUID, binary services.BinaryInput) (*vo.PipelineProgress, error)
	GeneratePreview(ctx context.Context, videoID uuid.UUID) (*vo.PipelineProgress, error)
	Progress(ctx context.Context, videoID uuid.UUID) (*vo.PipelineProgress, error)
}

// PipelineRunner 为后台流水线运行。
type PipelineRunner interface {
	Run(ctx context.Context, videoID uuid.UUID, binary *services.BinaryInput) (*vo.PipelineProgress, error)
	Launch(ctx context.Context, videoID uuid.UUID, binary *services.BinaryInput) (bool, error)
	Decorate(progress *vo.PipelineProgress) *vo.PipelineProgress
}

// EventIngestor 为互动事件写入。
type EventIngestor interface {
	Ingest(ctx context.Context, input services.IngestEventInput) (*vo.IngestResult, error)
}

// PipelineRunResult 为触发流水线的响应；Accepted 表示运行仍在后台进行。
type PipelineRunResult struct {
	Accepted bool                 `json:"accepted"`
	Started  bool                 `json:"started"`
	Progress *vo.PipelineProgress `json:"progress"`
}

// OutreachHandler 处理发送者视角的外联请求。
type OutreachHandler struct {
	*BaseHandler
	commands OutreachCommander
	queries  OutreachQuerier
	pipeline PipelineOperator
	runner   PipelineRunner
	ingest   EventIngestor
	log      *log.Helper
}

// NewOutreachHandler 构造外联 Handler。
func NewOutreachHandler(commands OutreachCommander, queries OutreachQuerier, pipeline PipelineOperator, runner PipelineRunner, ingest EventIngestor, base *BaseHandler, logger log.Logger) *OutreachHandler {
	if base == nil {
		base = NewBaseHandler(HandlerTimeouts{})
	}
	return &OutreachHandler{
		BaseHandler: base,
		commands:    commands,
		queries:     queries,
		pipeline:    pipeline,
		runner:      runner,
		ingest:      ingest,
		log:         log.NewHelper(logger),
	}
}

// CreateOutreach 幂等建档；owner 与幂等键优先取自 x-md-* 请求头。
func (h *OutreachHandler) CreateOutreach(ctx context.Context, req *dto.CreateOutreachRequest) (*vo.OutreachCreated, error) {
	meta := h.ExtractMetadata(ctx)
	input, err := dto.ToCreateOutreachInput(req, meta.OwnerID, meta.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := h.WithTimeout(ctx, BudgetCommand)
	defer cancel()
	timeoutCtx = WithRequestMetadata(timeoutCtx, meta)

	return h.commands.CreateOutreach(timeoutCtx, input)
}

// GetOutreach 返回详情、聚合指标与建议。
func (h *OutreachHandler) GetOutreach(ctx context.Context, videoID uuid.UUID) (*vo.OutreachDetail, error) {
	timeoutCtx, cancel := h.WithTimeout(ctx, BudgetQuery)
	defer cancel()

	detail, err := h.queries.GetOutreach(timeoutCtx, videoID)
	if err != nil {
		return nil, err
	}
	if h.runner != nil {
		detail.Pipeline = h.runner.Decorate(detail.Pipeline)
	}
	return detail, nil
}

// GetAnalytics 返回聚合指标。
func (h *OutreachHandler) GetAnalytics(ctx context.Context, videoID uuid.UUID) (*vo.AnalyticsAggregate, error) {
	timeoutCtx, cancel := h.WithTimeout(ctx, BudgetQuery)
	defer cancel()

	aggregate, err := h.queries.Analytics(timeoutCtx, videoID)
	if err != nil {
		return nil, err
	}
	return &aggregate, nil
}

// UploadVideo 仅执行上传阶段。
func (h *OutreachHandler) UploadVideo(ctx context.Context, req *dto.UploadVideoRequest) (*vo.PipelineProgress, error) {
	binary := req.Binary()
	if binary == nil {
		return nil, services.NewValidationError("video body is required")
	}
	timeoutCtx, cancel := h.WithTimeout(ctx, BudgetCommand)
	defer cancel()

	progress, err := h.pipeline.UploadBinary(timeoutCtx, req.VideoID, *binary)
	return h.decorate(progress), err
}

// GeneratePreview 仅执行预览阶段。
func (h *OutreachHandler) GeneratePreview(ctx context.Context, videoID uuid.UUID) (*vo.PipelineProgress, error) {
	timeoutCtx, cancel := h.WithTimeout(ctx, BudgetCommand)
	defer cancel()

	progress, err := h.pipeline.GeneratePreview(timeoutCtx, videoID)
	return h.decorate(progress), err
}

// RunPipeline 启动流水线；wait 为 true 时在命令超时内等待结果，超时后转为后台继续并返回当前进度。
func (h *OutreachHandler) RunPipeline(ctx context.Context, req *dto.UploadVideoRequest, wait bool) (*PipelineRunResult, error) {
	if h.runner == nil {
		return nil, services.ErrRunnerStopped
	}
	if !wait {
		started, err := h.runner.Launch(ctx, req.VideoID, req.Binary())
		if err != nil {
			return nil, err
		}
		progress, err := h.currentProgress(ctx, req.VideoID)
		if err != nil {
			return nil, err
		}
		return &PipelineRunResult{Accepted: true, Started: started, Progress: progress}, nil
	}

	timeoutCtx, cancel := h.WithTimeout(ctx, BudgetCommand)
	defer cancel()
	progress, err := h.runner.Run(timeoutCtx, req.VideoID, req.Binary())
	switch {
	case err == nil:
		return &PipelineRunResult{Started: true, Progress: progress}, nil
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		h.log.WithContext(ctx).Infof("pipeline wait elapsed, continuing in background: video_id=%s", req.VideoID)
		current, readErr := h.currentProgress(ctx, req.VideoID)
		if readErr != nil {
			return nil, readErr
		}
		return &PipelineRunResult{Accepted: true, Started: true, Progress: current}, nil
	default:
		return nil, err
	}
}

// GetProgress 返回流水线进度，供轮询。
func (h *OutreachHandler) GetProgress(ctx context.Context, videoID uuid.UUID) (*vo.PipelineProgress, error) {
	timeoutCtx, cancel := h.WithTimeout(ctx, BudgetQuery)
	defer cancel()

	progress, err := h.pipeline.Progress(timeoutCtx, videoID)
	if err != nil {
		return nil, err
	}
	return h.decorate(progress), nil
}

// PatchStatus 显式设置状态。
func (h *OutreachHandler) PatchStatus(ctx context.Context, videoID uuid.UUID, req *dto.PatchStatusRequest) (*vo.StatusPatched, error) {
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	timeoutCtx, cancel := h.WithTimeout(ctx, BudgetCommand)
	defer cancel()

	return h.commands.PatchStatus(timeoutCtx, videoID, req.Status)
}

// Recompute 从事件日志重算状态与聚合。
func (h *OutreachHandler) Recompute(ctx context.Context, videoID uuid.UUID) (*vo.OutreachDetail, error) {
	timeoutCtx, cancel := h.WithTimeout(ctx, BudgetCommand)
	defer cancel()

	return h.commands.Recompute(timeoutCtx, videoID)
}

// IngestEvent 以视频 ID 写入一条互动事件。
func (h *OutreachHandler) IngestEvent(ctx context.Context, videoID uuid.UUID, req *dto.IngestEventRequest) (*vo.IngestResult, error) {
	meta := h.ExtractMetadata(ctx)
	input, err := dto.ToIngestEventInput(req, videoID, "", meta.EventID)
	if err != nil {
		return nil, err
	}
	timeoutCtx, cancel := h.WithTimeout(ctx, BudgetIngest)
	defer cancel()

	return h.ingest.Ingest(timeoutCtx, input)
}

func (h *OutreachHandler) currentProgress(ctx context.Context, videoID uuid.UUID) (*vo.PipelineProgress, error) {
	readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), progressReadTimeout)
	defer cancel()
	progress, err := h.pipeline.Progress(readCtx, videoID)
	if err != nil {
		return nil, err
	}
	return h.decorate(progress), nil
}

func (h *OutreachHandler) decorate(progress *vo.PipelineProgress) *vo.PipelineProgress {
	if h.runner == nil || progress == nil {
		return progress
	}
	return h.runner.Decorate(progress)
}
