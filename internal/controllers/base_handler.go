package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/metadata"
)

// Budget 表示请求的超时预算类别。
type Budget int

const (
	// BudgetDefault 未归类的请求，沿用命令预算。
	BudgetDefault Budget = iota
	// BudgetCommand 建档、流水线、状态修改等写请求。
	BudgetCommand
	// BudgetQuery 详情、进度、公开页读取。
	BudgetQuery
	// BudgetIngest 互动事件上报；分享页不应被埋点阻塞，预算最短。
	BudgetIngest

	budgetCount
)

// HandlerTimeouts 为各类请求配置的超时；零值使用回退值。
type HandlerTimeouts struct {
	Default time.Duration
	Command time.Duration
	Query   time.Duration
	Ingest  time.Duration
}

const (
	fallbackCommandTimeout = 5 * time.Second
	fallbackQueryTimeout   = 3 * time.Second
	fallbackIngestTimeout  = 2 * time.Second

	headerOwnerID        = "x-md-global-user-id"
	headerIdempotencyKey = "x-md-idempotency-key"
	headerEventID        = "x-md-event-id"
)

// BaseHandler 提供超时预算与 x-md-* 请求头解析，供外联与追踪 Handler 内嵌。
type BaseHandler struct {
	budgets [budgetCount]time.Duration
}

// NewBaseHandler 解析超时配置：Command 缺省时取 Default，Default 缺省时取 Command。
func NewBaseHandler(timeouts HandlerTimeouts) *BaseHandler {
	command := firstPositive(timeouts.Command, timeouts.Default, fallbackCommandTimeout)
	h := &BaseHandler{}
	h.budgets[BudgetDefault] = firstPositive(timeouts.Default, command)
	h.budgets[BudgetCommand] = command
	h.budgets[BudgetQuery] = firstPositive(timeouts.Query, fallbackQueryTimeout)
	h.budgets[BudgetIngest] = firstPositive(timeouts.Ingest, fallbackIngestTimeout)
	return h
}

// WithTimeout 按预算类别为 ctx 绑定超时。
func (h *BaseHandler) WithTimeout(ctx context.Context, budget Budget) (context.Context, context.CancelFunc) {
	if h == nil {
		return context.WithTimeout(ctx, fallbackCommandTimeout)
	}
	if budget < 0 || budget >= budgetCount {
		budget = BudgetDefault
	}
	return context.WithTimeout(ctx, h.budgets[budget])
}

// RequestMetadata 为 metadata 中间件透传的发送者身份、幂等键与事件 ID。
type RequestMetadata struct {
	OwnerID        string
	IdempotencyKey string
	EventID        string
}

// IsZero 判断是否未携带任何请求头。
func (m RequestMetadata) IsZero() bool {
	return m == RequestMetadata{}
}

// ExtractMetadata 从服务端 ctx 读取 x-md-* 请求头，值去除首尾空白。
func (h *BaseHandler) ExtractMetadata(ctx context.Context) RequestMetadata {
	md, ok := metadata.FromServerContext(ctx)
	if !ok {
		return RequestMetadata{}
	}
	get := func(key string) string { return strings.TrimSpace(md.Get(key)) }
	return RequestMetadata{
		OwnerID:        get(headerOwnerID),
		IdempotencyKey: get(headerIdempotencyKey),
		EventID:        get(headerEventID),
	}
}

type requestMetadataKey struct{}

// WithRequestMetadata 将请求头信息挂到 ctx 上；空值不注入。
func WithRequestMetadata(ctx context.Context, meta RequestMetadata) context.Context {
	if meta.IsZero() {
		return ctx
	}
	return context.WithValue(ctx, requestMetadataKey{}, meta)
}

// RequestMetadataFromContext 读取 WithRequestMetadata 注入的信息。
func RequestMetadataFromContext(ctx context.Context) (RequestMetadata, bool) {
	if ctx == nil {
		return RequestMetadata{}, false
	}
	meta, ok := ctx.Value(requestMetadataKey{}).(RequestMetadata)
	return meta, ok
}

func firstPositive(values ...time.Duration) time.Duration {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
