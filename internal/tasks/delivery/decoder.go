// Package delivery 消费邮件服务商推送的投递回执，写入互动事件日志。
package delivery

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bionicotaku/lingo-services-outreach/internal/services"

	"github.com/google/uuid"
)

// AttrEventType 为消息属性中的事件类型键；载荷缺省 event_type 时回退到该属性。
const AttrEventType = "event_type"

// ErrMalformed 表示消息无法解析，重投也不会成功。
var ErrMalformed = errors.New("delivery: malformed receipt")

// Receipt 描述一条投递回执；video_id 与 public_token 二选一。
type Receipt struct {
	EventID     string          `json:"event_id"`
	VideoID     string          `json:"video_id,omitempty"`
	PublicToken string          `json:"public_token,omitempty"`
	EventType   string          `json:"event_type,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// Decode 将消息体与属性解析为事件写入输入。
// event_id 为必填，服务商重投同一回执时据此去重。
func Decode(data []byte, attributes map[string]string) (services.IngestEventInput, error) {
	var receipt Receipt
	if err := json.Unmarshal(data, &receipt); err != nil {
		return services.IngestEventInput{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	eventType := strings.TrimSpace(receipt.EventType)
	if eventType == "" {
		eventType = strings.TrimSpace(attributes[AttrEventType])
	}
	if eventType == "" {
		return services.IngestEventInput{}, fmt.Errorf("%w: event_type missing", ErrMalformed)
	}

	eventID, err := uuid.Parse(strings.TrimSpace(receipt.EventID))
	if err != nil || eventID == uuid.Nil {
		return services.IngestEventInput{}, fmt.Errorf("%w: invalid event_id %q", ErrMalformed, receipt.EventID)
	}

	input := services.IngestEventInput{
		EventType:   strings.ToLower(eventType),
		EventID:     eventID,
		Metadata:    receipt.Metadata,
		PublicToken: strings.TrimSpace(receipt.PublicToken),
	}
	if raw := strings.TrimSpace(receipt.VideoID); raw != "" {
		videoID, err := uuid.Parse(raw)
		if err != nil {
			return services.IngestEventInput{}, fmt.Errorf("%w: invalid video_id %q", ErrMalformed, raw)
		}
		input.VideoID = videoID
	}
	if input.VideoID == uuid.Nil && input.PublicToken == "" {
		return services.IngestEventInput{}, fmt.Errorf("%w: video_id or public_token required", ErrMalformed)
	}
	return input, nil
}
