package mappers

import (
	"encoding/json"

	"github.com/bionicotaku/lingo-services-outreach/internal/models/po"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// VideoEventRow 与 outreach.video_events 的列对应。
type VideoEventRow struct {
	Seq        int64
	EventID    uuid.UUID
	VideoID    uuid.UUID
	EventType  string
	OccurredAt pgtype.Timestamptz
	Metadata   []byte
	CreatedAt  pgtype.Timestamptz
}

// ScanDest 返回供 pgx 扫描的目标指针。
func (r *VideoEventRow) ScanDest() []any {
	return []any{&r.Seq, &r.EventID, &r.VideoID, &r.EventType, &r.OccurredAt, &r.Metadata, &r.CreatedAt}
}

// VideoEventFromRow 将事件行转换为领域实体。
func VideoEventFromRow(row VideoEventRow) *po.VideoEvent {
	event := &po.VideoEvent{
		EventID:    row.EventID,
		Seq:        row.Seq,
		VideoID:    row.VideoID,
		Type:       po.EventType(row.EventType),
		OccurredAt: mustTimestamp(row.OccurredAt),
		CreatedAt:  mustTimestamp(row.CreatedAt),
	}
	if len(row.Metadata) > 0 {
		event.Metadata = json.RawMessage(append([]byte(nil), row.Metadata...))
	}
	return event
}
