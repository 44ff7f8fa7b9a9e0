package services

import (
	stderrors "errors"
	"fmt"

	"github.com/bionicotaku/lingo-services-outreach/internal/models/po"
	"github.com/go-kratos/kratos/v2/errors"
)

// 错误原因常量，作为 Kratos Error.Reason 对外暴露。
const (
	ReasonValidation        = "OUTREACH_VALIDATION_FAILED"
	ReasonNotFound          = "OUTREACH_NOT_FOUND"
	ReasonConflict          = "OUTREACH_CONFLICT"
	ReasonVersionConflict   = "OUTREACH_VERSION_CONFLICT"
	ReasonPipelineFailed    = "OUTREACH_PIPELINE_FAILED"
	ReasonUpstream          = "OUTREACH_UPSTREAM_UNAVAILABLE"
	ReasonIllegalTransition = "OUTREACH_ILLEGAL_TRANSITION"
	ReasonInternal          = "OUTREACH_INTERNAL"
	ReasonTimeout           = "OUTREACH_TIMEOUT"
	ReasonUnavailable       = "OUTREACH_UNAVAILABLE"
)

// ErrOutreachNotFound 是当外联记录或 token 未命中时返回的哨兵错误。
var ErrOutreachNotFound = errors.NotFound(ReasonNotFound, "video outreach not found")

// ErrRunnerStopped 表示服务正在停机，不再接受新的流水线运行。
var ErrRunnerStopped = errors.ServiceUnavailable(ReasonUnavailable, "pipeline runner is shutting down")

// ErrTranscodeUnsupported 表示转码服务明确拒绝该输入（非临时性失败）。
var ErrTranscodeUnsupported = stderrors.New("transcode: unsupported input")

// NewValidationError 构造参数校验错误，调用方不得产生任何写入。
func NewValidationError(format string, args ...any) *errors.Error {
	return errors.BadRequest(ReasonValidation, fmt.Sprintf(format, args...))
}

// NewConflictError 构造冲突错误（幂等键不匹配等）。
func NewConflictError(format string, args ...any) *errors.Error {
	return errors.Conflict(ReasonConflict, fmt.Sprintf(format, args...))
}

// NewVersionConflictError 表示乐观并发版本校验失败。
func NewVersionConflictError(cause error) *errors.Error {
	return errors.Conflict(ReasonVersionConflict, "concurrent modification detected").WithCause(cause)
}

// NewIllegalTransitionError 表示请求的状态推进在当前生命周期下不被允许。
func NewIllegalTransitionError(current, target po.OutreachStatus) *errors.Error {
	return errors.Conflict(ReasonIllegalTransition, fmt.Sprintf("cannot move outreach from %s to %s", current, target)).
		WithMetadata(map[string]string{"current": string(current), "target": string(target)})
}

// UpstreamError 表示存储/转码等共享外部资源不可用，可重试。
type UpstreamError struct {
	Service string
	Err     error
}

// NewUpstreamError 包装外部依赖错误。
func NewUpstreamError(service string, err error) *UpstreamError {
	return &UpstreamError{Service: service, Err: err}
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s unavailable: %v", e.Service, e.Err)
}

// Unwrap 暴露底层错误。
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// toKratos 转换为可重试的 503 错误。
func (e *UpstreamError) toKratos() *errors.Error {
	return errors.ServiceUnavailable(ReasonUpstream, e.Error()).
		WithMetadata(map[string]string{"service": e.Service, "retryable": "true"}).
		WithCause(e)
}

// PipelineError 描述某个具名阶段的失败。
type PipelineError struct {
	Phase po.PipelinePhase
	Cause error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline phase %s failed: %v", e.Phase, e.Cause)
}

// Unwrap 暴露底层错误，支持 errors.Is/As 链式查询。
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Upstream 判断失败是否由外部依赖不可用导致。
func (e *PipelineError) Upstream() bool {
	return IsUpstream(e.Cause)
}

// toKratos 将阶段失败转换为对外错误，保留阶段信息与 cause。
func (e *PipelineError) toKratos() *errors.Error {
	meta := map[string]string{"phase": string(e.Phase), "retryable": "true"}
	if e.Upstream() {
		return errors.ServiceUnavailable(ReasonUpstream, e.Error()).WithMetadata(meta).WithCause(e)
	}
	return errors.InternalServer(ReasonPipelineFailed, e.Error()).WithMetadata(meta).WithCause(e)
}

// IsValidation 判断是否为参数校验错误。
func IsValidation(err error) bool {
	return errors.Reason(err) == ReasonValidation
}

// IsNotFound 判断是否为未找到错误。
func IsNotFound(err error) bool {
	return errors.Reason(err) == ReasonNotFound
}

// IsConflict 判断是否为冲突类错误（含版本冲突）。
func IsConflict(err error) bool {
	reason := errors.Reason(err)
	return reason == ReasonConflict || reason == ReasonVersionConflict
}

// IsIllegalTransition 判断是否为非法状态推进。
func IsIllegalTransition(err error) bool {
	return errors.Reason(err) == ReasonIllegalTransition
}

// IsUpstream 判断错误链中是否包含外部依赖不可用。
func IsUpstream(err error) bool {
	if err == nil {
		return false
	}
	var upstream *UpstreamError
	if stderrors.As(err, &upstream) {
		return true
	}
	return errors.Reason(err) == ReasonUpstream
}

// AsPipelineError 从错误链中提取阶段失败信息。
func AsPipelineError(err error) (*PipelineError, bool) {
	var pipelineErr *PipelineError
	if stderrors.As(err, &pipelineErr) {
		return pipelineErr, true
	}
	return nil, false
}
