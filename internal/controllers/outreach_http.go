package controllers

import (
	"context"
	stdhttp "net/http"
	"strconv"

	"github.com/bionicotaku/lingo-services-outreach/internal/controllers/dto"

	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/google/uuid"
)

// HTTP 操作名，供中间件按 operation 选择与日志标注。
const (
	OperationOutreachCreate          = "/outreach.v1.Outreach/CreateOutreach"
	OperationOutreachGet             = "/outreach.v1.Outreach/GetOutreach"
	OperationOutreachAnalytics       = "/outreach.v1.Outreach/GetAnalytics"
	OperationOutreachUploadVideo     = "/outreach.v1.Outreach/UploadVideo"
	OperationOutreachGeneratePreview = "/outreach.v1.Outreach/GeneratePreview"
	OperationOutreachRunPipeline     = "/outreach.v1.Outreach/RunPipeline"
	OperationOutreachGetProgress     = "/outreach.v1.Outreach/GetProgress"
	OperationOutreachPatchStatus     = "/outreach.v1.Outreach/PatchStatus"
	OperationOutreachRecompute       = "/outreach.v1.Outreach/Recompute"
	OperationOutreachIngestEvent     = "/outreach.v1.Outreach/IngestEvent"
	OperationTrackingGetPublicView   = "/outreach.v1.Tracking/GetPublicView"
	OperationTrackingIngestEvent     = "/outreach.v1.Tracking/IngestEvent"
)

// RegisterOutreachHTTPServer 注册发送者视角的路由。
func RegisterOutreachHTTPServer(s *http.Server, h *OutreachHandler) {
	r := s.Route("/")
	r.POST("/v1/outreach", _Outreach_Create_HTTP_Handler(h))
	r.GET("/v1/outreach/{id}", _Outreach_Get_HTTP_Handler(h))
	r.GET("/v1/outreach/{id}/analytics", _Outreach_Analytics_HTTP_Handler(h))
	r.PUT("/v1/outreach/{id}/video", _Outreach_UploadVideo_HTTP_Handler(h))
	r.POST("/v1/outreach/{id}/preview", _Outreach_GeneratePreview_HTTP_Handler(h))
	r.POST("/v1/outreach/{id}/pipeline", _Outreach_RunPipeline_HTTP_Handler(h))
	r.GET("/v1/outreach/{id}/pipeline", _Outreach_GetProgress_HTTP_Handler(h))
	r.PATCH("/v1/outreach/{id}/status", _Outreach_PatchStatus_HTTP_Handler(h))
	r.POST("/v1/outreach/{id}/recompute", _Outreach_Recompute_HTTP_Handler(h))
	r.POST("/v1/outreach/{id}/events", _Outreach_IngestEvent_HTTP_Handler(h))
}

// RegisterTrackingHTTPServer 注册公开分享页的路由。
func RegisterTrackingHTTPServer(s *http.Server, h *TrackingHandler) {
	r := s.Route("/")
	r.GET("/v1/public/{token}", _Tracking_GetPublicView_HTTP_Handler(h))
	r.POST("/v1/public/{token}/events", _Tracking_IngestEvent_HTTP_Handler(h))
}

func _Outreach_Create_HTTP_Handler(h *OutreachHandler) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in dto.CreateOutreachRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationOutreachCreate)
		m := ctx.Middleware(func(ctx context.Context, req any) (any, error) {
			return h.CreateOutreach(ctx, req.(*dto.CreateOutreachRequest))
		})
		out, err := m(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(stdhttp.StatusOK, out)
	}
}

func _Outreach_Get_HTTP_Handler(h *OutreachHandler) func(ctx http.Context) error {
	return byVideoID(OperationOutreachGet, func(ctx context.Context, id videoIDRequest) (any, error) {
		return h.GetOutreach(ctx, id.VideoID)
	})
}

func _Outreach_Analytics_HTTP_Handler(h *OutreachHandler) func(ctx http.Context) error {
	return byVideoID(OperationOutreachAnalytics, func(ctx context.Context, id videoIDRequest) (any, error) {
		return h.GetAnalytics(ctx, id.VideoID)
	})
}

func _Outreach_GeneratePreview_HTTP_Handler(h *OutreachHandler) func(ctx http.Context) error {
	return byVideoID(OperationOutreachGeneratePreview, func(ctx context.Context, id videoIDRequest) (any, error) {
		return h.GeneratePreview(ctx, id.VideoID)
	})
}

func _Outreach_GetProgress_HTTP_Handler(h *OutreachHandler) func(ctx http.Context) error {
	return byVideoID(OperationOutreachGetProgress, func(ctx context.Context, id videoIDRequest) (any, error) {
		return h.GetProgress(ctx, id.VideoID)
	})
}

func _Outreach_Recompute_HTTP_Handler(h *OutreachHandler) func(ctx http.Context) error {
	return byVideoID(OperationOutreachRecompute, func(ctx context.Context, id videoIDRequest) (any, error) {
		return h.Recompute(ctx, id.VideoID)
	})
}

func _Outreach_UploadVideo_HTTP_Handler(h *OutreachHandler) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		videoID, err := dto.ParseVideoID(ctx.Vars().Get("id"))
		if err != nil {
			return err
		}
		in, err := dto.ReadUploadVideoRequest(ctx.Request(), videoID, true)
		if err != nil {
			return err
		}
		http.SetOperation(ctx, OperationOutreachUploadVideo)
		m := ctx.Middleware(func(ctx context.Context, req any) (any, error) {
			return h.UploadVideo(ctx, req.(*dto.UploadVideoRequest))
		})
		out, err := m(ctx, in)
		if err != nil {
			return err
		}
		return ctx.Result(stdhttp.StatusOK, out)
	}
}

func _Outreach_RunPipeline_HTTP_Handler(h *OutreachHandler) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		videoID, err := dto.ParseVideoID(ctx.Vars().Get("id"))
		if err != nil {
			return err
		}
		wait, _ := strconv.ParseBool(ctx.Query().Get("wait"))
		in, err := dto.ReadUploadVideoRequest(ctx.Request(), videoID, false)
		if err != nil {
			return err
		}
		http.SetOperation(ctx, OperationOutreachRunPipeline)
		m := ctx.Middleware(func(ctx context.Context, req any) (any, error) {
			return h.RunPipeline(ctx, req.(*dto.UploadVideoRequest), wait)
		})
		out, err := m(ctx, in)
		if err != nil {
			return err
		}
		result := out.(*PipelineRunResult)
		code := stdhttp.StatusOK
		if result.Accepted {
			code = stdhttp.StatusAccepted
		}
		return ctx.Result(code, result)
	}
}

func _Outreach_PatchStatus_HTTP_Handler(h *OutreachHandler) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		videoID, err := dto.ParseVideoID(ctx.Vars().Get("id"))
		if err != nil {
			return err
		}
		var in dto.PatchStatusRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationOutreachPatchStatus)
		m := ctx.Middleware(func(ctx context.Context, req any) (any, error) {
			return h.PatchStatus(ctx, videoID, req.(*dto.PatchStatusRequest))
		})
		out, err := m(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(stdhttp.StatusOK, out)
	}
}

func _Outreach_IngestEvent_HTTP_Handler(h *OutreachHandler) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		videoID, err := dto.ParseVideoID(ctx.Vars().Get("id"))
		if err != nil {
			return err
		}
		var in dto.IngestEventRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationOutreachIngestEvent)
		m := ctx.Middleware(func(ctx context.Context, req any) (any, error) {
			return h.IngestEvent(ctx, videoID, req.(*dto.IngestEventRequest))
		})
		out, err := m(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(stdhttp.StatusOK, out)
	}
}

func _Tracking_GetPublicView_HTTP_Handler(h *TrackingHandler) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		in := tokenRequest{Token: ctx.Vars().Get("token")}
		http.SetOperation(ctx, OperationTrackingGetPublicView)
		m := ctx.Middleware(func(ctx context.Context, req any) (any, error) {
			return h.GetPublicView(ctx, req.(*tokenRequest).Token)
		})
		out, err := m(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(stdhttp.StatusOK, out)
	}
}

func _Tracking_IngestEvent_HTTP_Handler(h *TrackingHandler) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		token := ctx.Vars().Get("token")
		http.SetOperation(ctx, OperationTrackingIngestEvent)
		var in dto.IngestEventRequest
		if err := ctx.Bind(&in); err != nil {
			h.logDropped(ctx, (&tokenRequest{Token: token}).String(), err)
			ctx.Response().WriteHeader(stdhttp.StatusNoContent)
			return nil
		}
		m := ctx.Middleware(func(ctx context.Context, req any) (any, error) {
			h.IngestEvent(ctx, token, req.(*dto.IngestEventRequest))
			return nil, nil
		})
		if _, err := m(ctx, &in); err != nil {
			return err
		}
		ctx.Response().WriteHeader(stdhttp.StatusNoContent)
		return nil
	}
}

type videoIDRequest struct {
	VideoID uuid.UUID
}

type tokenRequest struct {
	Token string
}

// String 避免访问日志记录完整 token。
func (r *tokenRequest) String() string {
	if len(r.Token) <= 6 {
		return "token=***"
	}
	return "token=" + r.Token[:6] + "***"
}

func byVideoID(operation string, call func(ctx context.Context, id videoIDRequest) (any, error)) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		videoID, err := dto.ParseVideoID(ctx.Vars().Get("id"))
		if err != nil {
			return err
		}
		in := videoIDRequest{VideoID: videoID}
		http.SetOperation(ctx, operation)
		m := ctx.Middleware(func(ctx context.Context, req any) (any, error) {
			return call(ctx, *req.(*videoIDRequest))
		})
		out, err := m(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(stdhttp.StatusOK, out)
	}
}
