package po

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType 表示收件人互动事件类型。
type EventType string

// 互动事件类型常量。
const (
	EventDelivered       EventType = "delivered"
	EventOpened          EventType = "opened"
	EventGIFClicked      EventType = "gif_clicked"
	EventPageViewed      EventType = "page_viewed"
	EventVideoWatched25  EventType = "video_watched_25"
	EventVideoWatched50  EventType = "video_watched_50"
	EventVideoWatched75  EventType = "video_watched_75"
	EventVideoWatched100 EventType = "video_watched_100"
	EventCTAClicked      EventType = "cta_clicked"
	EventMeetingBooked   EventType = "meeting_booked"
)

// AllEventTypes 列出全部事件类型。
var AllEventTypes = []EventType{
	EventDelivered,
	EventOpened,
	EventGIFClicked,
	EventPageViewed,
	EventVideoWatched25,
	EventVideoWatched50,
	EventVideoWatched75,
	EventVideoWatched100,
	EventCTAClicked,
	EventMeetingBooked,
}

// Valid 判断事件类型是否已知。
func (t EventType) Valid() bool {
	for _, known := range AllEventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// WatchThreshold 返回观看进度事件对应的百分比阈值；非观看事件返回 0,false。
func (t EventType) WatchThreshold() (int, bool) {
	switch t {
	case EventVideoWatched25:
		return 25, true
	case EventVideoWatched50:
		return 50, true
	case EventVideoWatched75:
		return 75, true
	case EventVideoWatched100:
		return 100, true
	default:
		return 0, false
	}
}

// VideoEvent 表示 outreach.video_events 表中的一条不可变事件。
// 排序规则：OccurredAt 升序，相同时按 Seq（插入顺序）。
type VideoEvent struct {
	EventID    uuid.UUID       `db:"event_id"`
	Seq        int64           `db:"seq"`
	VideoID    uuid.UUID       `db:"video_id"`
	Type       EventType       `db:"event_type"`
	OccurredAt time.Time       `db:"occurred_at"`
	Metadata   json.RawMessage `db:"metadata"`
	CreatedAt  time.Time       `db:"created_at"`
}
