package dto

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/bionicotaku/lingo-services-outreach/internal/services"

	"github.com/google/uuid"
)

// MaxUploadBytes 为单个视频文件的上限。
const MaxUploadBytes = 512 << 20

// UploadVideoRequest 承载上传的视频内容；String 避免日志中间件打印二进制。
type UploadVideoRequest struct {
	VideoID     uuid.UUID
	ContentType string
	Data        []byte
}

// String 实现 fmt.Stringer。
func (r *UploadVideoRequest) String() string {
	if r == nil {
		return "<nil>"
	}
	return fmt.Sprintf("video_id=%s content_type=%s size=%d", r.VideoID, r.ContentType, len(r.Data))
}

// Binary 转换为服务层输入；无内容时返回 nil。
func (r *UploadVideoRequest) Binary() *services.BinaryInput {
	if r == nil || len(r.Data) == 0 {
		return nil
	}
	return &services.BinaryInput{ContentType: r.ContentType, Data: r.Data}
}

// ReadUploadVideoRequest 读取原始请求体；required 为 false 时允许空体。
func ReadUploadVideoRequest(req *http.Request, videoID uuid.UUID, required bool) (*UploadVideoRequest, error) {
	contentType := strings.TrimSpace(req.Header.Get("Content-Type"))
	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return nil, services.NewValidationError("invalid content type: %v", err)
		}
		contentType = mediaType
	}
	if req.Body == nil {
		if required {
			return nil, services.NewValidationError("video body is required")
		}
		return &UploadVideoRequest{VideoID: videoID}, nil
	}

	data, err := io.ReadAll(io.LimitReader(req.Body, MaxUploadBytes+1))
	if err != nil {
		return nil, services.NewValidationError("read video body: %v", err)
	}
	if len(data) > MaxUploadBytes {
		return nil, services.NewValidationError("video exceeds %d bytes", MaxUploadBytes)
	}
	if required && len(data) == 0 {
		return nil, services.NewValidationError("video body is required")
	}
	if len(data) > 0 && contentType != "" && !isVideoContentType(contentType) {
		return nil, services.NewValidationError("unsupported content type %q", contentType)
	}
	return &UploadVideoRequest{VideoID: videoID, ContentType: contentType, Data: data}, nil
}

func isVideoContentType(mediaType string) bool {
	return strings.HasPrefix(mediaType, "video/") || mediaType == "application/octet-stream"
}
