package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrServiceUnavailable 语言模型或向量化服务不可用
	ErrServiceUnavailable = errors.New("语义服务不可用")
	// ErrRateLimited 语言模型或向量化服务限流
	ErrRateLimited = errors.New("语义服务限流")
)

// APIError 外部服务返回的错误，可通过 errors.Is 归类为 ErrRateLimited 或 ErrServiceUnavailable
type APIError struct {
	StatusCode int    // HTTP状态码，网络错误时为0
	Message    string // 服务端错误信息或底层错误描述
	retryable  bool
	kind       error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.kind, e.Message)
	}
	return fmt.Sprintf("%s (状态码: %d): %s", e.kind, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.kind
}

// Retryable 是否值得重试
func (e *APIError) Retryable() bool {
	return e.retryable
}

// StatusError 按HTTP状态码构造错误
func StatusError(statusCode int, message string) *APIError {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return &APIError{StatusCode: statusCode, Message: message, retryable: true, kind: ErrRateLimited}
	case statusCode >= 500 || statusCode == http.StatusRequestTimeout:
		return &APIError{StatusCode: statusCode, Message: message, retryable: true, kind: ErrServiceUnavailable}
	default:
		// 鉴权失败、参数错误等，重试无意义
		return &APIError{StatusCode: statusCode, Message: message, kind: ErrServiceUnavailable}
	}
}

// TransportError 包装网络层错误；上下文取消或超时不重试
func TransportError(err error) *APIError {
	retryable := !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	return &APIError{Message: err.Error(), retryable: retryable, kind: ErrServiceUnavailable}
}

// IsRetryable 判断错误是否可以重试
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}

// IsServiceError 判断错误是否来自外部语义服务
func IsServiceError(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrRateLimited)
}
