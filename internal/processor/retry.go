package processor

import (
	"context"
	"errors"
)

// ErrExhausted 所有尝试的结果都不可接受
var ErrExhausted = errors.New("重试次数已用尽")

// Retry 最多执行 maxTries 次 fn，直到 acceptable 接受其结果
// fn 返回错误时立即停止，不再重试；返回值依次为最后一次结果、实际尝试次数、错误。
func Retry[T any](ctx context.Context, maxTries int, fn func(ctx context.Context, attempt int) (T, error), acceptable func(T) bool) (T, int, error) {
	if maxTries < 1 {
		maxTries = 1
	}

	var last T
	for attempt := 1; attempt <= maxTries; attempt++ {
		if err := ctx.Err(); err != nil {
			return last, attempt - 1, err
		}
		v, err := fn(ctx, attempt)
		if err != nil {
			return v, attempt, err
		}
		last = v
		if acceptable == nil || acceptable(v) {
			return v, attempt, nil
		}
	}
	return last, maxTries, ErrExhausted
}
