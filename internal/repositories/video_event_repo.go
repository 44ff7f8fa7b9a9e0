package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bionicotaku/lingo-services-outreach/internal/models/po"
	"github.com/bionicotaku/lingo-services-outreach/internal/repositories/mappers"

	"github.com/bionicotaku/lingo-utils/txmanager"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicateEvent 表示 event_id 已存在于日志中（重复投递）。
var ErrDuplicateEvent = errors.New("video event already recorded")

const uniqueViolation = "23505"

const videoEventColumns = `seq, event_id, video_id, event_type, occurred_at, metadata, created_at`

const appendVideoEventSQL = `
INSERT INTO outreach.video_events (event_id, video_id, event_type, occurred_at, metadata)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + videoEventColumns

const listVideoEventsSQL = `SELECT ` + videoEventColumns + `
FROM outreach.video_events
WHERE video_id = $1
ORDER BY occurred_at, seq`

// VideoEventRepository 封装 outreach.video_events 追加日志。
type VideoEventRepository struct {
	db  *pgxpool.Pool
	log *log.Helper
}

// NewVideoEventRepository 构造 VideoEventRepository。
func NewVideoEventRepository(db *pgxpool.Pool, logger log.Logger) *VideoEventRepository {
	return &VideoEventRepository{
		db:  db,
		log: log.NewHelper(logger),
	}
}

// AppendEventInput 描述追加事件所需字段。
type AppendEventInput struct {
	EventID    uuid.UUID
	VideoID    uuid.UUID
	Type       po.EventType
	OccurredAt time.Time
	Metadata   json.RawMessage
}

// Append 追加一条不可变事件，Seq 由数据库按插入顺序分配。
func (r *VideoEventRepository) Append(ctx context.Context, sess txmanager.Session, input AppendEventInput) (*po.VideoEvent, error) {
	eventID := input.EventID
	if eventID == uuid.Nil {
		eventID = uuid.New()
	}
	occurredAt := input.OccurredAt.UTC()
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	var metadata []byte
	if len(input.Metadata) > 0 {
		metadata = input.Metadata
	}

	var row mappers.VideoEventRow
	err := pick(r.db, sess).QueryRow(ctx, appendVideoEventSQL,
		eventID,
		input.VideoID,
		string(input.Type),
		occurredAt,
		metadata,
	).Scan(row.ScanDest()...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			r.log.WithContext(ctx).Debugf("duplicate video event: event_id=%s", eventID)
			return nil, ErrDuplicateEvent
		}
		r.log.WithContext(ctx).Errorf("append video event failed: video_id=%s type=%s err=%v", input.VideoID, input.Type, err)
		return nil, fmt.Errorf("append video event: %w", err)
	}
	return mappers.VideoEventFromRow(row), nil
}

// ListByVideo 按 (occurred_at, seq) 返回视频的完整事件日志。
func (r *VideoEventRepository) ListByVideo(ctx context.Context, sess txmanager.Session, videoID uuid.UUID) ([]*po.VideoEvent, error) {
	rows, err := pick(r.db, sess).Query(ctx, listVideoEventsSQL, videoID)
	if err != nil {
		r.log.WithContext(ctx).Errorf("list video events failed: video_id=%s err=%v", videoID, err)
		return nil, fmt.Errorf("list video events: %w", err)
	}
	defer rows.Close()

	var events []*po.VideoEvent
	for rows.Next() {
		var row mappers.VideoEventRow
		if err := rows.Scan(row.ScanDest()...); err != nil {
			return nil, fmt.Errorf("scan video event: %w", err)
		}
		events = append(events, mappers.VideoEventFromRow(row))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate video events: %w", err)
	}
	return events, nil
}
