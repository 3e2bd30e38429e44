package processor

import (
	"errors"
	"fmt"

	"resume-analyzer/internal/llm"
	"resume-analyzer/internal/parser"
	"resume-analyzer/internal/types"
)

// 定义基础错误类型
var (
	ErrUnsupportedFormat  = parser.ErrUnsupportedFormat
	ErrExtractionFailure  = parser.ErrExtractionFailure
	ErrFieldExtraction    = errors.New("字段提取失败")
	ErrServiceUnavailable = llm.ErrServiceUnavailable
	ErrRateLimited        = llm.ErrRateLimited
	ErrSessionFailed      = errors.New("分析会话建立失败")
	ErrCleanup            = errors.New("会话清理失败")
)

// AnalysisError 包含详细错误信息的自定义错误
// BaseErr 用于归类，Cause 保留底层原因（例如限流），两者都可被 errors.Is 匹配。
type AnalysisError struct {
	SessionID string
	Op        string
	BaseErr   error
	Cause     error
	Detail    string
}

func (e *AnalysisError) Error() string {
	msg := fmt.Sprintf("%s (操作:%s", e.BaseErr, e.Op)
	if e.SessionID != "" {
		msg += ", 会话:" + e.SessionID
	}
	msg += ")"
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *AnalysisError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *AnalysisError) Is(target error) bool {
	if errors.Is(e.BaseErr, target) {
		return true
	}
	return e.Cause != nil && errors.Is(e.Cause, target)
}

// NewReadError 文档读取失败，按底层错误归类为格式不支持或提取失败
func NewReadError(name string, err error) error {
	base := ErrExtractionFailure
	if errors.Is(err, ErrUnsupportedFormat) {
		base = ErrUnsupportedFormat
	}
	return &AnalysisError{
		Op:      "read",
		BaseErr: base,
		Cause:   err,
		Detail:  name,
	}
}

// NewSessionError 会话或会话索引无法建立
func NewSessionError(sessionID string, err error) error {
	return &AnalysisError{
		SessionID: sessionID,
		Op:        "session",
		BaseErr:   ErrSessionFailed,
		Cause:     err,
	}
}

// NewFieldError 单个字段提取失败
func NewFieldError(sessionID string, field types.FieldName, err error) error {
	return &AnalysisError{
		SessionID: sessionID,
		Op:        "extract",
		BaseErr:   ErrFieldExtraction,
		Cause:     err,
		Detail:    string(field),
	}
}

// NewCleanupError 会话清理失败，只记录日志不向上返回
func NewCleanupError(sessionID, detail string, err error) error {
	return &AnalysisError{
		SessionID: sessionID,
		Op:        "cleanup",
		BaseErr:   ErrCleanup,
		Cause:     err,
		Detail:    detail,
	}
}

// fieldErrorValue 字段在结果中的错误取值，只保留底层原因
func fieldErrorValue(err error) string {
	var ae *AnalysisError
	if errors.As(err, &ae) && ae.Cause != nil {
		return types.FieldErrorValue(ae.Cause)
	}
	return types.FieldErrorValue(err)
}
