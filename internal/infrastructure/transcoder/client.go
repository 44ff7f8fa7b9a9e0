// Package transcoder 封装转码协作方的 HTTP 客户端。
package transcoder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/ratelimit"
	"github.com/bionicotaku/lingo-services-outreach/internal/services"

	obsTrace "github.com/bionicotaku/lingo-utils/observability/tracing"
	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/circuitbreaker"
	"github.com/go-kratos/kratos/v2/middleware/metadata"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
	"golang.org/x/time/rate"
)

const (
	previewPath    = "/v1/previews"
	defaultTimeout = 2 * time.Minute
)

type previewRequest struct {
	VideoID     string `json:"video_id"`
	SourcePath  string `json:"source_path"`
	PreviewPath string `json:"preview_path"`
}

type previewResponse struct {
	PreviewPath    string `json:"preview_path"`
	DurationMillis int64  `json:"duration_millis"`
	Resolution     string `json:"resolution"`
}

// Client 调用转码服务生成短循环预览。
//
// 错误分类：
//   - 400/413/415/422 → services.ErrTranscodeUnsupported（素材无法处理，重试无意义）
//   - 429/5xx 与网络错误 → services.UpstreamError（可重试）
type Client struct {
	http    *khttp.Client
	limiter *rate.Limiter
	log     *log.Helper
}

// Config 描述客户端参数。
type Config struct {
	Endpoint  string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
}

// NewClient 创建转码客户端；返回的 cleanup 关闭底层连接。
func NewClient(ctx context.Context, cfg Config, logger log.Logger) (*Client, func(), error) {
	if cfg.Endpoint == "" {
		return nil, nil, errors.New("transcoder: endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	conn, err := khttp.NewClient(ctx,
		khttp.WithEndpoint(cfg.Endpoint),
		khttp.WithTimeout(timeout),
		khttp.WithMiddleware(
			recovery.Recovery(),
			metadata.Client(),
			obsTrace.Client(),
			circuitbreaker.Client(),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("transcoder: create http client: %w", err)
	}
	helper := log.NewHelper(logger)
	cleanup := func() {
		if err := conn.Close(); err != nil {
			helper.Warnf("close transcoder client: %v", err)
		}
	}
	return &Client{
		http:    conn,
		limiter: ratelimit.New(cfg.RateLimit, cfg.Burst),
		log:     helper,
	}, cleanup, nil
}

// GeneratePreview 请求转码服务从 SourcePath 生成预览并写入 PreviewPath。
func (c *Client) GeneratePreview(ctx context.Context, req services.TranscodeRequest) (*services.TranscodeResult, error) {
	if err := ratelimit.Wait(ctx, c.limiter); err != nil {
		return nil, err
	}

	var reply previewResponse
	err := c.http.Invoke(ctx, http.MethodPost, previewPath, &previewRequest{
		VideoID:     req.VideoID.String(),
		SourcePath:  req.SourcePath,
		PreviewPath: req.PreviewPath,
	}, &reply)
	if err != nil {
		return nil, c.classify(ctx, req, err)
	}

	result := &services.TranscodeResult{
		PreviewPath:    reply.PreviewPath,
		DurationMillis: reply.DurationMillis,
		Resolution:     reply.Resolution,
	}
	if result.PreviewPath == "" {
		result.PreviewPath = req.PreviewPath
	}
	return result, nil
}

func (c *Client) classify(ctx context.Context, req services.TranscodeRequest, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var kerr *kerrors.Error
	if errors.As(err, &kerr) {
		switch code := int(kerr.Code); {
		case code == http.StatusBadRequest, code == http.StatusRequestEntityTooLarge,
			code == http.StatusUnsupportedMediaType, code == http.StatusUnprocessableEntity:
			c.log.WithContext(ctx).Warnf("transcoder rejected source: video_id=%s code=%d reason=%s", req.VideoID, code, kerr.Reason)
			return fmt.Errorf("%w: %s", services.ErrTranscodeUnsupported, kerr.Message)
		case code == http.StatusTooManyRequests, code >= http.StatusInternalServerError:
			return services.NewUpstreamError("transcoder", err)
		}
	}
	return services.NewUpstreamError("transcoder", err)
}
