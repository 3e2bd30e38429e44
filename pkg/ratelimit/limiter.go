package ratelimit

import (
	"context"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Limiter 基于令牌桶的限流器，附带指数退避重试
type Limiter struct {
	limiter       *rate.Limiter
	retryWaitTime time.Duration // 首次重试等待时间，之后逐次翻倍
	maxRetries    int           // 最大重试次数
	retryable     func(error) bool
}

// Option 限流器配置选项
type Option func(*Limiter)

// WithRetryPolicy 设置重试策略
func WithRetryPolicy(waitTime time.Duration, maxRetries int) Option {
	return func(l *Limiter) {
		if waitTime > 0 {
			l.retryWaitTime = waitTime
		}
		if maxRetries >= 0 {
			l.maxRetries = maxRetries
		}
	}
}

// WithRetryable 替换默认的可重试错误判断
func WithRetryable(fn func(error) bool) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.retryable = fn
		}
	}
}

// NewLimiter 按每分钟请求数创建限流器；qpm<=0 表示不限流
// 桶容量默认为QPM的一半，允许一定的突发流量
func NewLimiter(qpm int, options ...Option) *Limiter {
	limit := rate.Inf
	burst := 1
	if qpm > 0 {
		limit = rate.Limit(float64(qpm) / 60.0)
		burst = max(qpm/2, 1)
	}

	l := &Limiter{
		limiter:       rate.NewLimiter(limit, burst),
		retryWaitTime: 1 * time.Second,
		maxRetries:    3,
		retryable:     isRetryableError,
	}
	for _, option := range options {
		option(l)
	}
	return l
}

// Allow 判断是否允许立即通过一个请求
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Wait 等待直到有令牌可用
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// RetryWithBackoff 使用退避策略执行函数并在需要时重试
func (l *Limiter) RetryWithBackoff(ctx context.Context, fn func() error) error {
	var err error

	for retry := 0; retry <= l.maxRetries; retry++ {
		// 等待获取令牌
		if err = l.Wait(ctx); err != nil {
			return err
		}

		err = fn()
		if err == nil {
			return nil
		}

		if !l.retryable(err) || retry >= l.maxRetries {
			return err
		}

		backoffTime := l.retryWaitTime * time.Duration(1<<uint(retry))

		timer := time.NewTimer(backoffTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return err
}

// isRetryableError 根据错误消息判断是否可重试
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	return contains(err.Error(), []string{
		"timeout",
		"deadline exceeded",
		"connection reset",
		"EOF",
		"connection refused",
		"429 Too Many Requests",
		"rate limit",
		"no such host",
		"服务器繁忙",
		"请求超过限额",
	})
}

// contains 检查字符串是否包含列表中的任何一个子串
func contains(s string, substrs []string) bool {
	for _, substr := range substrs {
		if substr != "" && strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
