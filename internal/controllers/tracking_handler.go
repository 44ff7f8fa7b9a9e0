package controllers

import (
	"context"
	"strings"

	"github.com/bionicotaku/lingo-services-outreach/internal/controllers/dto"
	"github.com/bionicotaku/lingo-services-outreach/internal/models/vo"
	"github.com/bionicotaku/lingo-services-outreach/internal/services"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// TrackingHandler 服务公开分享页：按 token 读取脱敏视图并上报收件人互动。
type TrackingHandler struct {
	*BaseHandler
	queries OutreachQuerier
	ingest  EventIngestor
	log     *log.Helper
}

// NewTrackingHandler 构造公开分享页 Handler。
func NewTrackingHandler(queries OutreachQuerier, ingest EventIngestor, base *BaseHandler, logger log.Logger) *TrackingHandler {
	if base == nil {
		base = NewBaseHandler(HandlerTimeouts{})
	}
	return &TrackingHandler{BaseHandler: base, queries: queries, ingest: ingest, log: log.NewHelper(logger)}
}

// GetPublicView 按 token 返回脱敏视图。
func (h *TrackingHandler) GetPublicView(ctx context.Context, token string) (*vo.PublicOutreachView, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, services.ErrOutreachNotFound
	}
	timeoutCtx, cancel := h.WithTimeout(ctx, BudgetQuery)
	defer cancel()

	return h.queries.GetPublicView(timeoutCtx, token)
}

// IngestEvent 按 token 写入一条互动事件。分享页不因埋点失败而报错：
// 任何失败只记录日志，调用方始终得到 204。
func (h *TrackingHandler) IngestEvent(ctx context.Context, token string, req *dto.IngestEventRequest) {
	token = strings.TrimSpace(token)
	redacted := (&tokenRequest{Token: token}).String()
	if token == "" || h.ingest == nil {
		h.log.WithContext(ctx).Warnf("public event dropped: %s reason=no_target", redacted)
		return
	}
	meta := h.ExtractMetadata(ctx)
	input, err := dto.ToIngestEventInput(req, uuid.Nil, token, meta.EventID)
	if err != nil {
		h.logDropped(ctx, redacted, err)
		return
	}
	timeoutCtx, cancel := h.WithTimeout(ctx, BudgetIngest)
	defer cancel()

	if _, err := h.ingest.Ingest(timeoutCtx, input); err != nil {
		h.logDropped(ctx, redacted, err)
	}
}

func (h *TrackingHandler) logDropped(ctx context.Context, token string, err error) {
	reason := errors.Reason(err)
	if services.IsUpstream(err) || errors.Code(err) >= 500 {
		h.log.WithContext(ctx).Errorf("public event dropped: %s reason=%s err=%v", token, reason, err)
		return
	}
	h.log.WithContext(ctx).Warnf("public event dropped: %s reason=%s err=%v", token, reason, err)
}
