// Package logger 构建带 trace/span 标注的 Kratos 日志实例。
package logger

import (
	"context"

	loader "github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/config_loader"

	gclog "github.com/bionicotaku/lingo-utils/gclog"
	"github.com/go-kratos/kratos/v2/log"
	"go.opentelemetry.io/otel/trace"
)

// NewLogger builds a Kratos-compatible logger with trace/span enrichment.
func NewLogger(meta loader.ServiceMetadata) (log.Logger, error) {
	baseLogger, err := gclog.NewLogger(
		gclog.WithService(meta.Name),
		gclog.WithVersion(meta.Version),
		gclog.WithEnvironment(meta.Environment),
		gclog.WithStaticLabels(map[string]string{"service.id": meta.InstanceID}),
		gclog.EnableSourceLocation(),
	)
	if err != nil {
		return nil, err
	}
	return WithTrace(baseLogger), nil
}

// WithTrace 为日志附加 trace_id/span_id 字段，取自 ctx 中的 span。
func WithTrace(base log.Logger) log.Logger {
	return log.With(
		base,
		"trace_id", log.Valuer(func(ctx context.Context) interface{} {
			sc := trace.SpanContextFromContext(ctx)
			if sc.HasTraceID() {
				return sc.TraceID().String()
			}
			return ""
		}),
		"span_id", log.Valuer(func(ctx context.Context) interface{} {
			sc := trace.SpanContextFromContext(ctx)
			if sc.HasSpanID() {
				return sc.SpanID().String()
			}
			return ""
		}),
	)
}
