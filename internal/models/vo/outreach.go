// Package vo 定义视图对象（View Objects），用于向上层传递业务数据。
// VO 对象由 Service 层返回，经 Controller 层转换为 API 响应，隔离内部数据结构。
package vo

import (
	"time"

	"github.com/bionicotaku/lingo-services-outreach/internal/models/po"
	"github.com/google/uuid"
)

// AnalyticsAggregate 为从事件日志推导的互动指标，不单独持久化。
type AnalyticsAggregate struct {
	Views           int `json:"views"`
	Clicks          int `json:"clicks"`
	Bookings        int `json:"bookings"`
	AvgWatchPercent int `json:"avg_watch_percent"`
	Sessions        int `json:"sessions"`
	EventCount      int `json:"event_count"`
}

// RecommendationKind 标识建议类型。
type RecommendationKind string

// 建议类型常量。
const (
	RecommendDraftFollowUp RecommendationKind = "draft_follow_up"
	RecommendNudge         RecommendationKind = "nudge_alternate_angle"
	RecommendWaitThenBump  RecommendationKind = "wait_then_bump"
	RecommendMeetingPrep   RecommendationKind = "meeting_prep"
)

// Recommendation 为下一步建议，由规则引擎纯函数生成。
type Recommendation struct {
	Kind    RecommendationKind `json:"kind"`
	Title   string             `json:"title"`
	Message string             `json:"message"`
	WaitFor time.Duration      `json:"wait_for,omitempty"`
}

// PipelineFailureView 描述失败阶段，供 UI 展示重试入口。
type PipelineFailureView struct {
	Phase     string    `json:"phase"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	FailedAt  time.Time `json:"failed_at"`
}

// PipelineProgress 描述流水线当前进度，供轮询使用。
type PipelineProgress struct {
	VideoID          uuid.UUID            `json:"video_id"`
	Status           string               `json:"status"`
	PhaseCompleted   string               `json:"phase_completed"`
	NextPhase        string               `json:"next_phase,omitempty"`
	Progress         int                  `json:"progress"`
	PreviewGenerated bool                 `json:"preview_generated"`
	PublicToken      *string              `json:"public_token,omitempty"`
	Failure          *PipelineFailureView `json:"failure,omitempty"`
	Running          bool                 `json:"running"`
}

// NewPipelineProgress 从实体构造进度视图。
func NewPipelineProgress(outreach *po.VideoOutreach) *PipelineProgress {
	if outreach == nil {
		return nil
	}
	progress := &PipelineProgress{
		VideoID:          outreach.VideoID,
		Status:           string(outreach.Status),
		PhaseCompleted:   string(outreach.PhaseCompleted),
		NextPhase:        string(outreach.PhaseCompleted.Next()),
		Progress:         outreach.Progress,
		PreviewGenerated: outreach.PreviewGenerated,
		PublicToken:      copyString(outreach.PublicToken),
	}
	if outreach.Failure != nil {
		progress.Failure = &PipelineFailureView{
			Phase:     string(outreach.Failure.Phase),
			Message:   outreach.Failure.Message,
			Retryable: true,
			FailedAt:  outreach.Failure.FailedAt,
		}
	}
	return progress
}

// OutreachCreated 为建档结果。
type OutreachCreated struct {
	VideoID uuid.UUID `json:"video_id"`
	Status  string    `json:"status"`
	Reused  bool      `json:"reused"`
}

// RecipientView 为收件人快照。
type RecipientView struct {
	PersonID uuid.UUID `json:"person_id"`
	Name     string    `json:"name"`
	Company  string    `json:"company"`
	Title    string    `json:"title"`
	Email    string    `json:"email"`
}

// OutreachDetail 为发送者视角的完整视图。
type OutreachDetail struct {
	VideoID         uuid.UUID                `json:"video_id"`
	Title           string                   `json:"title"`
	Recipient       RecipientView            `json:"recipient"`
	Personalization po.PersonalizationConfig `json:"personalization"`
	CTA             po.CTAConfig             `json:"cta"`
	Status          string                   `json:"status"`
	Pipeline        *PipelineProgress        `json:"pipeline"`
	RawVideoPath    *string                  `json:"raw_video_path,omitempty"`
	PreviewPath     *string                  `json:"preview_path,omitempty"`
	DurationMillis  *int64                   `json:"duration_millis,omitempty"`
	FileSizeBytes   *int64                   `json:"file_size_bytes,omitempty"`
	Resolution      *string                  `json:"resolution,omitempty"`
	LandingURL      *string                  `json:"landing_url,omitempty"`
	Analytics       AnalyticsAggregate       `json:"analytics"`
	Recommendation  *Recommendation          `json:"recommendation,omitempty"`
	Version         int64                    `json:"version"`
	CreatedAt       time.Time                `json:"created_at"`
	SentAt          *time.Time               `json:"sent_at,omitempty"`
}

// NewOutreachDetail 组装发送者视图。
func NewOutreachDetail(outreach *po.VideoOutreach, aggregate AnalyticsAggregate, rec *Recommendation) *OutreachDetail {
	if outreach == nil {
		return nil
	}
	return &OutreachDetail{
		VideoID: outreach.VideoID,
		Title:   outreach.Title,
		Recipient: RecipientView{
			PersonID: outreach.Recipient.PersonID,
			Name:     outreach.Recipient.Name,
			Company:  outreach.Recipient.Company,
			Title:    outreach.Recipient.Title,
			Email:    outreach.Recipient.Email,
		},
		Personalization: outreach.Personalization,
		CTA:             outreach.CTA,
		Status:          string(outreach.Status),
		Pipeline:        NewPipelineProgress(outreach),
		RawVideoPath:    copyString(outreach.RawVideoPath),
		PreviewPath:     copyString(outreach.PreviewPath),
		DurationMillis:  outreach.DurationMillis,
		FileSizeBytes:   outreach.FileSizeBytes,
		Resolution:      copyString(outreach.Resolution),
		LandingURL:      copyString(outreach.LandingURL),
		Analytics:       aggregate,
		Recommendation:  rec,
		Version:         outreach.Version,
		CreatedAt:       outreach.CreatedAt,
		SentAt:          outreach.SentAt,
	}
}

// PublicOutreachView 为公开分享页读取的脱敏视图，不含内部 ID、邮箱、版本与错误信息。
type PublicOutreachView struct {
	Title            string                   `json:"title"`
	RecipientName    string                   `json:"recipient_name"`
	RecipientCompany string                   `json:"recipient_company"`
	Personalization  po.PersonalizationConfig `json:"personalization"`
	CTA              po.CTAConfig             `json:"cta"`
	VideoURL         string                   `json:"video_url"`
	PreviewURL       *string                  `json:"preview_url,omitempty"`
	DurationMillis   *int64                   `json:"duration_millis,omitempty"`
	URLExpiresAt     time.Time                `json:"url_expires_at"`
}

// IngestResult 为事件写入后的最新状态与指标。
type IngestResult struct {
	Status         string             `json:"status"`
	PreviousStatus string             `json:"previous_status"`
	Changed        bool               `json:"changed"`
	Duplicate      bool               `json:"duplicate,omitempty"`
	Analytics      AnalyticsAggregate `json:"analytics"`
}

// StatusPatched 为显式设置状态的结果。
type StatusPatched struct {
	VideoID        uuid.UUID `json:"video_id"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status"`
	Changed        bool      `json:"changed"`
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
