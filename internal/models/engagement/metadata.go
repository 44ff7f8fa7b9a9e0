// Package engagement 定义收件人互动事件的元数据结构，按事件类型区分 schema（tagged union）。
package engagement

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bionicotaku/lingo-services-outreach/internal/models/po"
)

// ErrUnknownEventType 表示事件类型不在白名单内。
var ErrUnknownEventType = errors.New("engagement: unknown event type")

// ErrInvalidMetadata 表示元数据与事件类型的 schema 不匹配。
var ErrInvalidMetadata = errors.New("engagement: invalid metadata")

// Metadata 为所有事件元数据的公共接口；EventType 用于穷举 switch。
type Metadata interface {
	EventType() po.EventType
}

// DeliveredMetadata 对应 delivered。
type DeliveredMetadata struct {
	Channel string `json:"channel,omitempty"`
}

// OpenedMetadata 对应 opened。
type OpenedMetadata struct {
	UserAgent string `json:"user_agent,omitempty"`
}

// GIFClickedMetadata 对应 gif_clicked。
type GIFClickedMetadata struct {
	Source string `json:"source,omitempty"`
}

// PageViewedMetadata 对应 page_viewed。
type PageViewedMetadata struct {
	Referrer  string `json:"referrer,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// WatchProgressMetadata 对应 video_watched_25/50/75/100。
type WatchProgressMetadata struct {
	Threshold       int     `json:"-"`
	PositionSeconds float64 `json:"position_seconds,omitempty"`
}

// CTAClickedMetadata 对应 cta_clicked。
type CTAClickedMetadata struct {
	CTAType po.CTAType `json:"cta_type,omitempty"`
	URL     string     `json:"url,omitempty"`
}

// MeetingBookedMetadata 对应 meeting_booked。
type MeetingBookedMetadata struct {
	SlotStart *time.Time `json:"slot_start,omitempty"`
	SlotEnd   *time.Time `json:"slot_end,omitempty"`
	Calendar  string     `json:"calendar,omitempty"`
}

// EventType 实现 Metadata。
func (DeliveredMetadata) EventType() po.EventType { return po.EventDelivered }

// EventType 实现 Metadata。
func (OpenedMetadata) EventType() po.EventType { return po.EventOpened }

// EventType 实现 Metadata。
func (GIFClickedMetadata) EventType() po.EventType { return po.EventGIFClicked }

// EventType 实现 Metadata。
func (PageViewedMetadata) EventType() po.EventType { return po.EventPageViewed }

// EventType 实现 Metadata。
func (m WatchProgressMetadata) EventType() po.EventType {
	switch m.Threshold {
	case 25:
		return po.EventVideoWatched25
	case 50:
		return po.EventVideoWatched50
	case 75:
		return po.EventVideoWatched75
	default:
		return po.EventVideoWatched100
	}
}

// EventType 实现 Metadata。
func (CTAClickedMetadata) EventType() po.EventType { return po.EventCTAClicked }

// EventType 实现 Metadata。
func (MeetingBookedMetadata) EventType() po.EventType { return po.EventMeetingBooked }

// ParseEventType 规范化并校验事件类型字符串。
func ParseEventType(raw string) (po.EventType, error) {
	value := po.EventType(strings.TrimSpace(strings.ToLower(raw)))
	if !value.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEventType, raw)
	}
	return value, nil
}

// Decode 按事件类型解析元数据；空载荷得到该类型的零值结构。
// 未知字段视为 schema 不匹配。
func Decode(eventType po.EventType, raw json.RawMessage) (Metadata, error) {
	switch eventType {
	case po.EventDelivered:
		var m DeliveredMetadata
		if err := decodeStrict(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case po.EventOpened:
		var m OpenedMetadata
		if err := decodeStrict(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case po.EventGIFClicked:
		var m GIFClickedMetadata
		if err := decodeStrict(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case po.EventPageViewed:
		var m PageViewedMetadata
		if err := decodeStrict(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case po.EventVideoWatched25, po.EventVideoWatched50, po.EventVideoWatched75, po.EventVideoWatched100:
		var m WatchProgressMetadata
		if err := decodeStrict(raw, &m); err != nil {
			return nil, err
		}
		m.Threshold, _ = eventType.WatchThreshold()
		if m.PositionSeconds < 0 {
			return nil, fmt.Errorf("%w: position_seconds must be non-negative", ErrInvalidMetadata)
		}
		return m, nil
	case po.EventCTAClicked:
		var m CTAClickedMetadata
		if err := decodeStrict(raw, &m); err != nil {
			return nil, err
		}
		if m.CTAType != "" && !m.CTAType.Valid() {
			return nil, fmt.Errorf("%w: unknown cta_type %q", ErrInvalidMetadata, m.CTAType)
		}
		return m, nil
	case po.EventMeetingBooked:
		var m MeetingBookedMetadata
		if err := decodeStrict(raw, &m); err != nil {
			return nil, err
		}
		if m.SlotStart != nil && m.SlotEnd != nil && m.SlotEnd.Before(*m.SlotStart) {
			return nil, fmt.Errorf("%w: slot_end before slot_start", ErrInvalidMetadata)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
}

// Encode 将元数据编码为持久化使用的 JSON；nil 返回 nil。
func Encode(meta Metadata) (json.RawMessage, error) {
	if meta == nil {
		return nil, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("engagement: encode metadata: %w", err)
	}
	if bytes.Equal(data, []byte("{}")) {
		return nil, nil
	}
	return data, nil
}

func decodeStrict(raw json.RawMessage, out any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	return nil
}
