// Package po 定义面向持久化的数据对象（Persistent Objects），由 Repository 层使用。
// PO 对象映射数据库表结构，不直接暴露给上层调用方。
package po

import (
	"time"

	"github.com/google/uuid"
)

// OutreachStatus 表示视频外联记录的生命周期状态，按 Rank 单调推进。
type OutreachStatus string

// 生命周期状态常量定义（按等级从低到高）。
const (
	OutreachStatusDraft      OutreachStatus = "draft"      // 记录已创建，流水线尚未开始
	OutreachStatusProcessing OutreachStatus = "processing" // 流水线执行中
	OutreachStatusReady      OutreachStatus = "ready"      // 流水线完成，已签发公开 token
	OutreachStatusSent       OutreachStatus = "sent"       // 已发送给收件人
	OutreachStatusViewed     OutreachStatus = "viewed"     // 收件人打开或观看
	OutreachStatusClicked    OutreachStatus = "clicked"    // 收件人点击 CTA
	OutreachStatusBooked     OutreachStatus = "booked"     // 收件人预约会议
)

var statusRanks = map[OutreachStatus]int{
	OutreachStatusDraft:      0,
	OutreachStatusProcessing: 1,
	OutreachStatusReady:      2,
	OutreachStatusSent:       3,
	OutreachStatusViewed:     4,
	OutreachStatusClicked:    5,
	OutreachStatusBooked:     6,
}

// orderedStatuses 按等级排列，下标即 rank。
var orderedStatuses = []OutreachStatus{
	OutreachStatusDraft,
	OutreachStatusProcessing,
	OutreachStatusReady,
	OutreachStatusSent,
	OutreachStatusViewed,
	OutreachStatusClicked,
	OutreachStatusBooked,
}

// Rank 返回状态等级；未知状态返回 -1。
func (s OutreachStatus) Rank() int {
	if rank, ok := statusRanks[s]; ok {
		return rank
	}
	return -1
}

// Valid 判断是否为已知状态。
func (s OutreachStatus) Valid() bool {
	return s.Rank() >= 0
}

// StatusFromRank 根据等级还原状态。
func StatusFromRank(rank int) (OutreachStatus, bool) {
	if rank < 0 || rank >= len(orderedStatuses) {
		return "", false
	}
	return orderedStatuses[rank], true
}

// MaxStatus 返回两者中等级较高的状态。
func MaxStatus(a, b OutreachStatus) OutreachStatus {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// PipelinePhase 表示流水线阶段，严格按顺序推进。
type PipelinePhase string

// 流水线阶段常量定义。
const (
	PhaseNone              PipelinePhase = ""                   // 尚无阶段完成
	PhaseUploading         PipelinePhase = "uploading"          // 建档并上传原始视频
	PhaseGeneratingPreview PipelinePhase = "generating_preview" // 生成循环预览
	PhaseCreatingLanding   PipelinePhase = "creating_landing"   // 分配公开 token 与落地页
	PhaseDone              PipelinePhase = "done"               // 全部完成，状态 ready
)

// PipelinePhases 为阶段执行顺序。
var PipelinePhases = []PipelinePhase{
	PhaseUploading,
	PhaseGeneratingPreview,
	PhaseCreatingLanding,
	PhaseDone,
}

// phaseProgress 为每个阶段完成时上报的进度百分比。
var phaseProgress = map[PipelinePhase]int{
	PhaseNone:              0,
	PhaseUploading:         40,
	PhaseGeneratingPreview: 70,
	PhaseCreatingLanding:   90,
	PhaseDone:              100,
}

// Index 返回阶段在执行顺序中的位置；PhaseNone 为 -1。
func (p PipelinePhase) Index() int {
	for i, phase := range PipelinePhases {
		if phase == p {
			return i
		}
	}
	return -1
}

// Progress 返回该阶段完成时的进度。
func (p PipelinePhase) Progress() int {
	return phaseProgress[p]
}

// Next 返回下一个待执行阶段；已完成全部阶段时返回 PhaseNone。
func (p PipelinePhase) Next() PipelinePhase {
	idx := p.Index()
	if idx+1 >= len(PipelinePhases) {
		return PhaseNone
	}
	return PipelinePhases[idx+1]
}

// CTAType 表示落地页行动按钮类型。
type CTAType string

// CTA 类型常量。
const (
	CTABookMeeting CTAType = "book-meeting"
	CTAReply       CTAType = "reply"
	CTAForward     CTAType = "forward"
)

// Valid 判断 CTA 类型是否合法。
func (t CTAType) Valid() bool {
	switch t {
	case CTABookMeeting, CTAReply, CTAForward:
		return true
	default:
		return false
	}
}

// PersonalizationConfig 描述个性化录制参数，生成阶段完成后不可变。
type PersonalizationConfig struct {
	TargetURL         string `json:"target_url"`
	HighlightSection  string `json:"highlight_section,omitempty"`
	AutoScroll        bool   `json:"auto_scroll"`
	OverlayCallouts   bool   `json:"overlay_callouts"`
	AddLogo           bool   `json:"add_logo"`
	AddNameLowerThird bool   `json:"add_name_lower_third"`
}

// CTAConfig 描述落地页 CTA。
type CTAConfig struct {
	Type           CTAType `json:"type"`
	Label          string  `json:"label"`
	SchedulingLink *string `json:"scheduling_link,omitempty"`
}

// Recipient 为收件人的去规范化快照，展示时无需联表。
type Recipient struct {
	PersonID uuid.UUID
	Name     string
	Company  string
	Title    string
	Email    string
}

// PipelineFailure 记录最近一次流水线失败。
type PipelineFailure struct {
	Phase    PipelinePhase
	Message  string
	Upstream bool
	FailedAt time.Time
}

// VideoOutreach 表示 outreach.video_outreach 表的数据库实体。
type VideoOutreach struct {
	// ============================================
	// 身份
	// ============================================
	VideoID        uuid.UUID `db:"video_id"`        // 主键
	OwnerID        uuid.UUID `db:"owner_id"`        // 发送者
	IdempotencyKey string    `db:"idempotency_key"` // 建档幂等键（owner 维度唯一）
	PublicToken    *string   `db:"public_token"`    // 公开访问 token，landing 阶段签发

	// ============================================
	// 收件人快照
	// ============================================
	Recipient Recipient

	Title           string                `db:"title"`
	Personalization PersonalizationConfig `db:"personalization"`
	CTA             CTAConfig             `db:"cta"`

	// ============================================
	// 媒体（流水线写入，写后不变）
	// ============================================
	RawVideoPath      *string `db:"raw_video_path"`
	PreviewPath       *string `db:"preview_path"`
	PreviewGenerated  bool    `db:"preview_generated"`
	PreviewSkipReason *string `db:"preview_skip_reason"`
	DurationMillis    *int64  `db:"duration_millis"`
	FileSizeBytes     *int64  `db:"file_size_bytes"`
	Resolution        *string `db:"resolution"`
	LandingURL        *string `db:"landing_url"`

	// ============================================
	// 状态与流水线
	// ============================================
	Status         OutreachStatus   `db:"status"`
	PhaseCompleted PipelinePhase    `db:"phase_completed"`
	Progress       int              `db:"progress"`
	Failure        *PipelineFailure `db:"-"`
	HeartbeatAt    *time.Time       `db:"heartbeat_at"`

	// ============================================
	// 并发控制与审计
	// ============================================
	Version   int64      `db:"version"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
	SentAt    *time.Time `db:"sent_at"`
}

// Clone 返回深拷贝，避免调用方修改共享指针。
func (v *VideoOutreach) Clone() *VideoOutreach {
	if v == nil {
		return nil
	}
	out := *v
	out.PublicToken = cloneString(v.PublicToken)
	out.CTA.SchedulingLink = cloneString(v.CTA.SchedulingLink)
	out.RawVideoPath = cloneString(v.RawVideoPath)
	out.PreviewPath = cloneString(v.PreviewPath)
	out.PreviewSkipReason = cloneString(v.PreviewSkipReason)
	out.DurationMillis = cloneInt64(v.DurationMillis)
	out.FileSizeBytes = cloneInt64(v.FileSizeBytes)
	out.Resolution = cloneString(v.Resolution)
	out.LandingURL = cloneString(v.LandingURL)
	out.HeartbeatAt = cloneTime(v.HeartbeatAt)
	out.SentAt = cloneTime(v.SentAt)
	if v.Failure != nil {
		failure := *v.Failure
		out.Failure = &failure
	}
	return &out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt64(i *int64) *int64 {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
