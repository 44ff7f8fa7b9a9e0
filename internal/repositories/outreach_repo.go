package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bionicotaku/lingo-services-outreach/internal/models/po"
	"github.com/bionicotaku/lingo-services-outreach/internal/repositories/mappers"

	"github.com/bionicotaku/lingo-utils/txmanager"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrOutreachNotFound 表示外联记录不存在。
	ErrOutreachNotFound = errors.New("video outreach not found")
	// ErrVersionConflict 表示 CAS 更新时版本号已被其他写入推进。
	ErrVersionConflict = errors.New("video outreach version conflict")
	// ErrIdempotencyMismatch 表示幂等键命中的既有记录与本次请求内容不一致。
	ErrIdempotencyMismatch = errors.New("idempotency key reused with different payload")
)

const outreachColumns = `video_id, owner_id, idempotency_key, public_token,
	recipient_person_id, recipient_name, recipient_company, recipient_title, recipient_email,
	title, personalization, cta,
	raw_video_path, preview_path, preview_generated, preview_skip_reason,
	duration_millis, file_size_bytes, resolution, landing_url,
	status, phase_completed, progress,
	failure_phase, failure_message, failure_upstream, failed_at, heartbeat_at,
	version, created_at, updated_at, sent_at`

const insertOutreachSQL = `
INSERT INTO outreach.video_outreach (
	video_id, owner_id, idempotency_key,
	recipient_person_id, recipient_name, recipient_company, recipient_title, recipient_email,
	title, personalization, cta, status
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (owner_id, idempotency_key) DO NOTHING
RETURNING ` + outreachColumns

const getOutreachByKeySQL = `SELECT ` + outreachColumns + `
FROM outreach.video_outreach
WHERE owner_id = $1 AND idempotency_key = $2`

const getOutreachByIDSQL = `SELECT ` + outreachColumns + `
FROM outreach.video_outreach
WHERE video_id = $1`

const getOutreachByTokenSQL = `SELECT ` + outreachColumns + `
FROM outreach.video_outreach
WHERE public_token = $1`

// 媒体字段与公开 token 通过 COALESCE 保证写后不变。
const updateOutreachSQL = `
UPDATE outreach.video_outreach SET
	public_token        = COALESCE(public_token, $3),
	raw_video_path      = COALESCE(raw_video_path, $4),
	preview_path        = COALESCE(preview_path, $5),
	preview_generated   = $6,
	preview_skip_reason = $7,
	duration_millis     = COALESCE(duration_millis, $8),
	file_size_bytes     = COALESCE(file_size_bytes, $9),
	resolution          = COALESCE(resolution, $10),
	landing_url         = COALESCE(landing_url, $11),
	status              = $12,
	phase_completed     = $13,
	progress            = GREATEST(progress, $14),
	failure_phase       = $15,
	failure_message     = $16,
	failure_upstream    = $17,
	failed_at           = $18,
	heartbeat_at        = $19,
	sent_at             = COALESCE(sent_at, $20),
	version             = version + 1
WHERE video_id = $1 AND version = $2
RETURNING ` + outreachColumns

const existsOutreachSQL = `SELECT version FROM outreach.video_outreach WHERE video_id = $1`

const listStaleOutreachSQL = `SELECT ` + outreachColumns + `
FROM outreach.video_outreach
WHERE status = 'processing'
  AND failure_phase IS NULL
  AND (heartbeat_at IS NULL OR heartbeat_at < $1)
ORDER BY heartbeat_at NULLS FIRST
LIMIT $2`

// OutreachRepository 封装 outreach.video_outreach 表的访问逻辑。
type OutreachRepository struct {
	db  *pgxpool.Pool
	log *log.Helper
}

// NewOutreachRepository 构造 OutreachRepository。
func NewOutreachRepository(db *pgxpool.Pool, logger log.Logger) *OutreachRepository {
	return &OutreachRepository{
		db:  db,
		log: log.NewHelper(logger),
	}
}

// CreateOutreachInput 描述建档所需字段。
type CreateOutreachInput struct {
	VideoID         uuid.UUID
	OwnerID         uuid.UUID
	IdempotencyKey  string
	Recipient       po.Recipient
	Title           string
	Personalization po.PersonalizationConfig
	CTA             po.CTAConfig
}

// Create 按 (owner_id, idempotency_key) 幂等建档，返回实体及是否新建的标记。
// 幂等键已存在时复用既有记录。
func (r *OutreachRepository) Create(ctx context.Context, sess txmanager.Session, input CreateOutreachInput) (*po.VideoOutreach, bool, error) {
	db := pick(r.db, sess)

	videoID := input.VideoID
	if videoID == uuid.Nil {
		videoID = uuid.New()
	}
	personalization, err := mappers.EncodeJSONB(input.Personalization)
	if err != nil {
		return nil, false, err
	}
	cta, err := mappers.EncodeJSONB(input.CTA)
	if err != nil {
		return nil, false, err
	}

	var row mappers.OutreachRow
	err = db.QueryRow(ctx, insertOutreachSQL,
		videoID,
		input.OwnerID,
		input.IdempotencyKey,
		input.Recipient.PersonID,
		input.Recipient.Name,
		input.Recipient.Company,
		input.Recipient.Title,
		input.Recipient.Email,
		input.Title,
		personalization,
		cta,
		string(po.OutreachStatusDraft),
	).Scan(row.ScanDest()...)
	if err == nil {
		outreach, mapErr := mappers.OutreachFromRow(row)
		return outreach, true, mapErr
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.log.WithContext(ctx).Errorf("insert outreach failed: owner_id=%s key=%s err=%v", input.OwnerID, input.IdempotencyKey, err)
		return nil, false, fmt.Errorf("insert outreach: %w", err)
	}

	existing, err := r.scanOne(ctx, db, getOutreachByKeySQL, input.OwnerID, input.IdempotencyKey)
	if err != nil {
		return nil, false, fmt.Errorf("get outreach by idempotency key: %w", err)
	}
	return existing, false, nil
}

// GetByID 查询指定 video_id 的外联记录。
func (r *OutreachRepository) GetByID(ctx context.Context, sess txmanager.Session, videoID uuid.UUID) (*po.VideoOutreach, error) {
	outreach, err := r.scanOne(ctx, pick(r.db, sess), getOutreachByIDSQL, videoID)
	if err != nil {
		if !errors.Is(err, ErrOutreachNotFound) {
			r.log.WithContext(ctx).Errorf("get outreach failed: video_id=%s err=%v", videoID, err)
		}
		return nil, err
	}
	return outreach, nil
}

// GetByToken 按公开 token 查询外联记录。
func (r *OutreachRepository) GetByToken(ctx context.Context, sess txmanager.Session, token string) (*po.VideoOutreach, error) {
	if token == "" {
		return nil, ErrOutreachNotFound
	}
	outreach, err := r.scanOne(ctx, pick(r.db, sess), getOutreachByTokenSQL, token)
	if err != nil {
		if !errors.Is(err, ErrOutreachNotFound) {
			r.log.WithContext(ctx).Errorf("get outreach by token failed: err=%v", err)
		}
		return nil, err
	}
	return outreach, nil
}

// Update 以 expectedVersion 做 compare-and-swap 写回实体，成功后版本号加一。
//
// 错误处理：
//   - 记录不存在 → ErrOutreachNotFound
//   - 版本不匹配 → ErrVersionConflict
func (r *OutreachRepository) Update(ctx context.Context, sess txmanager.Session, outreach *po.VideoOutreach, expectedVersion int64) (*po.VideoOutreach, error) {
	if outreach == nil {
		return nil, errors.New("update outreach: nil entity")
	}
	db := pick(r.db, sess)

	failurePhase, failureMessage, failureUpstream, failedAt := mappers.FailureColumns(outreach.Failure)
	progress := int32(outreach.Progress)

	var row mappers.OutreachRow
	err := db.QueryRow(ctx, updateOutreachSQL,
		outreach.VideoID,
		expectedVersion,
		mappers.ToPgText(outreach.PublicToken),
		mappers.ToPgText(outreach.RawVideoPath),
		mappers.ToPgText(outreach.PreviewPath),
		outreach.PreviewGenerated,
		mappers.ToPgText(outreach.PreviewSkipReason),
		mappers.ToPgInt8(outreach.DurationMillis),
		mappers.ToPgInt8(outreach.FileSizeBytes),
		mappers.ToPgText(outreach.Resolution),
		mappers.ToPgText(outreach.LandingURL),
		string(outreach.Status),
		string(outreach.PhaseCompleted),
		progress,
		failurePhase,
		failureMessage,
		failureUpstream,
		failedAt,
		mappers.ToPgTimestamptz(outreach.HeartbeatAt),
		mappers.ToPgTimestamptz(outreach.SentAt),
	).Scan(row.ScanDest()...)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			r.log.WithContext(ctx).Errorf("update outreach failed: video_id=%s err=%v", outreach.VideoID, err)
			return nil, fmt.Errorf("update outreach: %w", err)
		}
		var current int64
		if existsErr := db.QueryRow(ctx, existsOutreachSQL, outreach.VideoID).Scan(&current); existsErr != nil {
			if errors.Is(existsErr, pgx.ErrNoRows) {
				return nil, ErrOutreachNotFound
			}
			return nil, fmt.Errorf("check outreach version: %w", existsErr)
		}
		r.log.WithContext(ctx).Debugf("outreach version conflict: video_id=%s expected=%d current=%d", outreach.VideoID, expectedVersion, current)
		return nil, ErrVersionConflict
	}
	return mappers.OutreachFromRow(row)
}

// ListStale 返回心跳早于 before 且未记录失败的 processing 记录，供清扫任务标记中断。
func (r *OutreachRepository) ListStale(ctx context.Context, sess txmanager.Session, before time.Time, limit int) ([]*po.VideoOutreach, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := pick(r.db, sess).Query(ctx, listStaleOutreachSQL, before.UTC(), limit)
	if err != nil {
		r.log.WithContext(ctx).Errorf("list stale outreach failed: err=%v", err)
		return nil, fmt.Errorf("list stale outreach: %w", err)
	}
	defer rows.Close()

	var items []*po.VideoOutreach
	for rows.Next() {
		var row mappers.OutreachRow
		if err := rows.Scan(row.ScanDest()...); err != nil {
			return nil, fmt.Errorf("scan stale outreach: %w", err)
		}
		outreach, err := mappers.OutreachFromRow(row)
		if err != nil {
			return nil, err
		}
		items = append(items, outreach)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale outreach: %w", err)
	}
	return items, nil
}

func (r *OutreachRepository) scanOne(ctx context.Context, db DBTX, sql string, args ...any) (*po.VideoOutreach, error) {
	var row mappers.OutreachRow
	if err := db.QueryRow(ctx, sql, args...).Scan(row.ScanDest()...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOutreachNotFound
		}
		return nil, err
	}
	return mappers.OutreachFromRow(row)
}
