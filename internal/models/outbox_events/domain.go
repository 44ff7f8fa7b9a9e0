// Package outboxevents 提供领域事件构造与元数据辅助函数，统一事件命名、载荷编码与 Pub/Sub 属性。
package outboxevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bionicotaku/lingo-services-outreach/internal/models/po"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

const (
	// AggregateTypeOutreach 标识视频外联聚合类型。
	AggregateTypeOutreach = "video_outreach"
	// SchemaVersionV1 描述事件载荷的当前 schema 版本。
	SchemaVersionV1 = "v1"
)

var (
	// ErrNilOutreach 在构建事件时实体为空。
	ErrNilOutreach = errors.New("event builder: outreach is nil")
	// ErrInvalidEventID 表示未提供合法的事件 ID。
	ErrInvalidEventID = errors.New("event builder: event id is required")
)

// Kind 标识领域事件类型。
type Kind int

// 领域事件类型常量。
const (
	// KindUnknown 表示未识别的事件类型。
	KindUnknown Kind = iota
	// KindOutreachCreated 表示外联记录创建。
	KindOutreachCreated
	// KindOutreachReady 表示流水线完成。
	KindOutreachReady
	// KindStatusChanged 表示生命周期状态推进。
	KindStatusChanged
	// KindPipelineFailed 表示某个流水线阶段失败。
	KindPipelineFailed
)

func (k Kind) String() string {
	switch k {
	case KindOutreachCreated:
		return "outreach.created"
	case KindOutreachReady:
		return "outreach.ready"
	case KindStatusChanged:
		return "outreach.status_changed"
	case KindPipelineFailed:
		return "outreach.pipeline_failed"
	default:
		return "outreach.unknown"
	}
}

// DomainEvent 表示领域层生成的标准事件。
type DomainEvent struct {
	EventID       uuid.UUID
	Kind          Kind
	AggregateID   uuid.UUID
	AggregateType string
	Version       int64
	OccurredAt    time.Time
	Payload       any
}

// OutreachCreated 描述创建事件载荷。
type OutreachCreated struct {
	VideoID  uuid.UUID `json:"video_id"`
	OwnerID  uuid.UUID `json:"owner_id"`
	PersonID uuid.UUID `json:"person_id"`
	Title    string    `json:"title"`
	Status   string    `json:"status"`
}

// OutreachReady 描述流水线完成事件载荷。
type OutreachReady struct {
	VideoID          uuid.UUID `json:"video_id"`
	LandingURL       *string   `json:"landing_url,omitempty"`
	PreviewGenerated bool      `json:"preview_generated"`
}

// StatusChanged 描述状态推进事件载荷。
type StatusChanged struct {
	VideoID   uuid.UUID `json:"video_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Cause     string    `json:"cause"`
	EventType *string   `json:"event_type,omitempty"`
}

// PipelineFailed 描述阶段失败事件载荷。
type PipelineFailed struct {
	VideoID   uuid.UUID `json:"video_id"`
	Phase     string    `json:"phase"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
}

// 状态推进的触发来源。
const (
	CauseEvent     = "event"
	CauseManual    = "manual"
	CauseRecompute = "recompute"
)

// NewOutreachCreatedEvent 基于持久化实体构建创建事件。
func NewOutreachCreatedEvent(outreach *po.VideoOutreach, eventID uuid.UUID, occurredAt time.Time) (*DomainEvent, error) {
	if err := checkInputs(outreach, eventID); err != nil {
		return nil, err
	}
	return newEvent(KindOutreachCreated, outreach, eventID, occurredAt, &OutreachCreated{
		VideoID:  outreach.VideoID,
		OwnerID:  outreach.OwnerID,
		PersonID: outreach.Recipient.PersonID,
		Title:    outreach.Title,
		Status:   string(outreach.Status),
	}), nil
}

// NewOutreachReadyEvent 构建流水线完成事件。
func NewOutreachReadyEvent(outreach *po.VideoOutreach, eventID uuid.UUID, occurredAt time.Time) (*DomainEvent, error) {
	if err := checkInputs(outreach, eventID); err != nil {
		return nil, err
	}
	return newEvent(KindOutreachReady, outreach, eventID, occurredAt, &OutreachReady{
		VideoID:          outreach.VideoID,
		LandingURL:       outreach.LandingURL,
		PreviewGenerated: outreach.PreviewGenerated,
	}), nil
}

// NewStatusChangedEvent 构建状态推进事件；cause 取 CauseEvent、CauseManual 或 CauseRecompute。
func NewStatusChangedEvent(outreach *po.VideoOutreach, from po.OutreachStatus, cause string, eventType *po.EventType, eventID uuid.UUID, occurredAt time.Time) (*DomainEvent, error) {
	if err := checkInputs(outreach, eventID); err != nil {
		return nil, err
	}
	payload := &StatusChanged{
		VideoID: outreach.VideoID,
		From:    string(from),
		To:      string(outreach.Status),
		Cause:   cause,
	}
	if eventType != nil {
		value := string(*eventType)
		payload.EventType = &value
	}
	return newEvent(KindStatusChanged, outreach, eventID, occurredAt, payload), nil
}

// NewPipelineFailedEvent 构建阶段失败事件。
func NewPipelineFailedEvent(outreach *po.VideoOutreach, eventID uuid.UUID, occurredAt time.Time) (*DomainEvent, error) {
	if err := checkInputs(outreach, eventID); err != nil {
		return nil, err
	}
	if outreach.Failure == nil {
		return nil, fmt.Errorf("event builder: outreach %s has no failure recorded", outreach.VideoID)
	}
	return newEvent(KindPipelineFailed, outreach, eventID, occurredAt, &PipelineFailed{
		VideoID:   outreach.VideoID,
		Phase:     string(outreach.Failure.Phase),
		Message:   outreach.Failure.Message,
		Retryable: true,
	}), nil
}

func checkInputs(outreach *po.VideoOutreach, eventID uuid.UUID) error {
	if outreach == nil {
		return ErrNilOutreach
	}
	if eventID == uuid.Nil {
		return ErrInvalidEventID
	}
	return nil
}

func newEvent(kind Kind, outreach *po.VideoOutreach, eventID uuid.UUID, occurredAt time.Time, payload any) *DomainEvent {
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	return &DomainEvent{
		EventID:       eventID,
		Kind:          kind,
		AggregateID:   outreach.VideoID,
		AggregateType: AggregateTypeOutreach,
		Version:       outreach.Version,
		OccurredAt:    occurredAt.UTC(),
		Payload:       payload,
	}
}

// envelope 为 Pub/Sub 载荷的 JSON 外壳。
type envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Version       int64           `json:"version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// Marshal 将领域事件编码为 JSON 载荷。
func Marshal(event *DomainEvent) ([]byte, error) {
	if event == nil {
		return nil, errors.New("event builder: event is nil")
	}
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return json.Marshal(envelope{
		EventID:       event.EventID.String(),
		EventType:     event.Kind.String(),
		AggregateID:   event.AggregateID.String(),
		AggregateType: event.AggregateType,
		Version:       event.Version,
		OccurredAt:    event.OccurredAt.UTC(),
		Payload:       payload,
	})
}

// BuildAttributes 构造符合 Pub/Sub 约定的 message attributes。
func BuildAttributes(event *DomainEvent, schemaVersion string, traceID string) map[string]string {
	if schemaVersion == "" {
		schemaVersion = SchemaVersionV1
	}
	attrs := map[string]string{
		"event_id":       event.EventID.String(),
		"event_type":     event.Kind.String(),
		"aggregate_id":   event.AggregateID.String(),
		"aggregate_type": event.AggregateType,
		"version":        strconv.FormatInt(event.Version, 10),
		"occurred_at":    event.OccurredAt.UTC().Format(time.RFC3339),
		"schema_version": schemaVersion,
	}
	if traceID != "" {
		attrs["trace_id"] = traceID
	}
	return attrs
}

// TraceIDFromContext 提取 OTel Trace ID，若不存在返回空字符串。
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() || !spanCtx.HasTraceID() {
		return ""
	}
	return spanCtx.TraceID().String()
}
