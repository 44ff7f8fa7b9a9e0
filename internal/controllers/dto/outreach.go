// Package dto 提供控制器层的请求解析与响应构造工具。
// 单独的 dto 层可以隔离 HTTP 报文与业务用例之间的转换逻辑。
package dto

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/bionicotaku/lingo-services-outreach/internal/models/po"
	"github.com/bionicotaku/lingo-services-outreach/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// RecipientRequest 为收件人快照。
type RecipientRequest struct {
	PersonID string `json:"person_id" validate:"required,uuid"`
	Name     string `json:"name" validate:"required,max=200"`
	Company  string `json:"company" validate:"max=200"`
	Title    string `json:"title" validate:"max=200"`
	Email    string `json:"email" validate:"omitempty,email"`
}

// PersonalizationRequest 为个性化录制参数。
type PersonalizationRequest struct {
	TargetURL         string `json:"target_url" validate:"omitempty,url"`
	HighlightSection  string `json:"highlight_section" validate:"max=200"`
	AutoScroll        bool   `json:"auto_scroll"`
	OverlayCallouts   bool   `json:"overlay_callouts"`
	AddLogo           bool   `json:"add_logo"`
	AddNameLowerThird bool   `json:"add_name_lower_third"`
}

// CTARequest 为落地页 CTA 配置。
type CTARequest struct {
	Type           string  `json:"type" validate:"required,oneof=book-meeting reply forward"`
	Label          string  `json:"label" validate:"required,max=80"`
	SchedulingLink *string `json:"scheduling_link" validate:"omitempty,url"`
}

// CreateOutreachRequest 为 POST /v1/outreach 的请求体。
type CreateOutreachRequest struct {
	OwnerID         string                 `json:"owner_id" validate:"omitempty,uuid"`
	IdempotencyKey  string                 `json:"idempotency_key" validate:"max=128"`
	Recipient       RecipientRequest       `json:"recipient"`
	Title           string                 `json:"title" validate:"required,max=300"`
	Personalization PersonalizationRequest `json:"personalization"`
	CTA             CTARequest             `json:"cta"`
}

// PatchStatusRequest 为 PATCH /v1/outreach/{id}/status 的请求体。
type PatchStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// IngestEventRequest 为事件上报请求体。
type IngestEventRequest struct {
	EventID   string          `json:"event_id" validate:"omitempty,uuid"`
	EventType string          `json:"event_type" validate:"required"`
	Metadata  json.RawMessage `json:"metadata"`
}

// ToCreateOutreachInput 将请求体与请求头映射为服务层输入；请求头中的 owner 与幂等键优先。
func ToCreateOutreachInput(req *CreateOutreachRequest, headerOwner, headerKey string) (services.CreateOutreachInput, error) {
	if err := Validate(req); err != nil {
		return services.CreateOutreachInput{}, err
	}
	rawOwner := firstNonEmpty(headerOwner, req.OwnerID)
	if rawOwner == "" {
		return services.CreateOutreachInput{}, services.NewValidationError("owner_id is required")
	}
	ownerID, err := uuid.Parse(rawOwner)
	if err != nil {
		return services.CreateOutreachInput{}, services.NewValidationError("invalid owner_id: %v", err)
	}
	personID, err := uuid.Parse(req.Recipient.PersonID)
	if err != nil {
		return services.CreateOutreachInput{}, services.NewValidationError("invalid recipient person_id: %v", err)
	}

	return services.CreateOutreachInput{
		OwnerID:        ownerID,
		IdempotencyKey: firstNonEmpty(headerKey, req.IdempotencyKey),
		Recipient: po.Recipient{
			PersonID: personID,
			Name:     req.Recipient.Name,
			Company:  req.Recipient.Company,
			Title:    req.Recipient.Title,
			Email:    req.Recipient.Email,
		},
		Title: req.Title,
		Personalization: po.PersonalizationConfig{
			TargetURL:         req.Personalization.TargetURL,
			HighlightSection:  req.Personalization.HighlightSection,
			AutoScroll:        req.Personalization.AutoScroll,
			OverlayCallouts:   req.Personalization.OverlayCallouts,
			AddLogo:           req.Personalization.AddLogo,
			AddNameLowerThird: req.Personalization.AddNameLowerThird,
		},
		CTA: po.CTAConfig{
			Type:           po.CTAType(req.CTA.Type),
			Label:          req.CTA.Label,
			SchedulingLink: req.CTA.SchedulingLink,
		},
	}, nil
}

// ToIngestEventInput 将事件上报请求映射为服务层输入；videoID 与 token 由路由决定。
func ToIngestEventInput(req *IngestEventRequest, videoID uuid.UUID, token, headerEventID string) (services.IngestEventInput, error) {
	if err := Validate(req); err != nil {
		return services.IngestEventInput{}, err
	}
	input := services.IngestEventInput{
		VideoID:     videoID,
		PublicToken: token,
		EventType:   req.EventType,
		Metadata:    req.Metadata,
	}
	if raw := firstNonEmpty(headerEventID, req.EventID); raw != "" {
		eventID, err := uuid.Parse(raw)
		if err != nil {
			return services.IngestEventInput{}, services.NewValidationError("invalid event_id: %v", err)
		}
		input.EventID = eventID
	}
	return input, nil
}

// ParseVideoID 解析路径中的视频 ID。
func ParseVideoID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, services.NewValidationError("invalid video id: %v", err)
	}
	return id, nil
}

// Validate 执行结构体校验，并把首个失败字段转换为 ValidationError。
func Validate(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return services.NewValidationError("%s", describeFieldError(fe))
	}
	return services.NewValidationError("%v", err)
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if idx := strings.Index(field, "."); idx >= 0 {
		field = field[idx+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s exceeds %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
