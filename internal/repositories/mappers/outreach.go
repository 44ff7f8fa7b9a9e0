// Package mappers 提供仓储层的模型转换工具，将 pgx 扫描结果映射为领域实体。
package mappers

import (
	"encoding/json"
	"fmt"

	"github.com/bionicotaku/lingo-services-outreach/internal/models/po"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// OutreachRow 与 outreach.video_outreach 的列一一对应，列顺序见 repositories.outreachColumns。
type OutreachRow struct {
	VideoID           uuid.UUID
	OwnerID           uuid.UUID
	IdempotencyKey    string
	PublicToken       pgtype.Text
	RecipientPersonID uuid.UUID
	RecipientName     string
	RecipientCompany  string
	RecipientTitle    string
	RecipientEmail    string
	Title             string
	Personalization   []byte
	CTA               []byte
	RawVideoPath      pgtype.Text
	PreviewPath       pgtype.Text
	PreviewGenerated  bool
	PreviewSkipReason pgtype.Text
	DurationMillis    pgtype.Int8
	FileSizeBytes     pgtype.Int8
	Resolution        pgtype.Text
	LandingURL        pgtype.Text
	Status            string
	PhaseCompleted    string
	Progress          int32
	FailurePhase      pgtype.Text
	FailureMessage    pgtype.Text
	FailureUpstream   bool
	FailedAt          pgtype.Timestamptz
	HeartbeatAt       pgtype.Timestamptz
	Version           int64
	CreatedAt         pgtype.Timestamptz
	UpdatedAt         pgtype.Timestamptz
	SentAt            pgtype.Timestamptz
}

// ScanDest 返回供 pgx.Row.Scan 使用的目标指针列表。
func (r *OutreachRow) ScanDest() []any {
	return []any{
		&r.VideoID,
		&r.OwnerID,
		&r.IdempotencyKey,
		&r.PublicToken,
		&r.RecipientPersonID,
		&r.RecipientName,
		&r.RecipientCompany,
		&r.RecipientTitle,
		&r.RecipientEmail,
		&r.Title,
		&r.Personalization,
		&r.CTA,
		&r.RawVideoPath,
		&r.PreviewPath,
		&r.PreviewGenerated,
		&r.PreviewSkipReason,
		&r.DurationMillis,
		&r.FileSizeBytes,
		&r.Resolution,
		&r.LandingURL,
		&r.Status,
		&r.PhaseCompleted,
		&r.Progress,
		&r.FailurePhase,
		&r.FailureMessage,
		&r.FailureUpstream,
		&r.FailedAt,
		&r.HeartbeatAt,
		&r.Version,
		&r.CreatedAt,
		&r.UpdatedAt,
		&r.SentAt,
	}
}

// OutreachFromRow 将扫描结果转换为领域实体。
func OutreachFromRow(row OutreachRow) (*po.VideoOutreach, error) {
	outreach := &po.VideoOutreach{
		VideoID:        row.VideoID,
		OwnerID:        row.OwnerID,
		IdempotencyKey: row.IdempotencyKey,
		PublicToken:    textPtr(row.PublicToken),
		Recipient: po.Recipient{
			PersonID: row.RecipientPersonID,
			Name:     row.RecipientName,
			Company:  row.RecipientCompany,
			Title:    row.RecipientTitle,
			Email:    row.RecipientEmail,
		},
		Title:             row.Title,
		RawVideoPath:      textPtr(row.RawVideoPath),
		PreviewPath:       textPtr(row.PreviewPath),
		PreviewGenerated:  row.PreviewGenerated,
		PreviewSkipReason: textPtr(row.PreviewSkipReason),
		DurationMillis:    int8Ptr(row.DurationMillis),
		FileSizeBytes:     int8Ptr(row.FileSizeBytes),
		Resolution:        textPtr(row.Resolution),
		LandingURL:        textPtr(row.LandingURL),
		Status:            po.OutreachStatus(row.Status),
		PhaseCompleted:    po.PipelinePhase(row.PhaseCompleted),
		Progress:          int(row.Progress),
		HeartbeatAt:       timestampPtr(row.HeartbeatAt),
		Version:           row.Version,
		CreatedAt:         mustTimestamp(row.CreatedAt),
		UpdatedAt:         mustTimestamp(row.UpdatedAt),
		SentAt:            timestampPtr(row.SentAt),
	}
	if len(row.Personalization) > 0 {
		if err := json.Unmarshal(row.Personalization, &outreach.Personalization); err != nil {
			return nil, fmt.Errorf("decode personalization: %w", err)
		}
	}
	if len(row.CTA) > 0 {
		if err := json.Unmarshal(row.CTA, &outreach.CTA); err != nil {
			return nil, fmt.Errorf("decode cta: %w", err)
		}
	}
	if row.FailurePhase.Valid {
		outreach.Failure = &po.PipelineFailure{
			Phase:    po.PipelinePhase(row.FailurePhase.String),
			Message:  row.FailureMessage.String,
			Upstream: row.FailureUpstream,
			FailedAt: mustTimestamp(row.FailedAt),
		}
	}
	return outreach, nil
}

// FailureColumns 将失败信息拆分为列值；nil 表示清空失败。
func FailureColumns(failure *po.PipelineFailure) (pgtype.Text, pgtype.Text, bool, pgtype.Timestamptz) {
	if failure == nil {
		return pgtype.Text{}, pgtype.Text{}, false, pgtype.Timestamptz{}
	}
	phase := string(failure.Phase)
	message := failure.Message
	failedAt := failure.FailedAt
	return ToPgText(&phase), ToPgText(&message), failure.Upstream, ToPgTimestamptz(&failedAt)
}

// EncodeJSONB 将配置结构编码为 jsonb 参数。
func EncodeJSONB(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode jsonb: %w", err)
	}
	return data, nil
}
